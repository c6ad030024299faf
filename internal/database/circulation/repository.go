// Package circulation provides queries over borrowing records, fines and login logs.
package circulation

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/libdesk/libdesk/internal/entities"
)

var (
	ErrFineNotFound    = errors.New("fine record not found")
	ErrFineAlreadyPaid = errors.New("fine record already paid")
	ErrNoUnpaidFines   = errors.New("no unpaid fines")
	ErrRecordNotFound  = errors.New("borrowing record not found")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) recordQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("borrowing_records AS br").
		Select("br.*, bk.title AS book_title, bo.name AS borrower_name, bo.identity_type AS identity_type").
		Joins("LEFT JOIN books bk ON bk.book_id = br.book_id").
		Joins("LEFT JOIN borrowers bo ON bo.uid = br.borrower_id")
}

func (r *Repository) fineQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("fine_records AS fr").
		Select("fr.*, bk.title AS book_title, bo.name AS borrower_name, bo.identity_type AS identity_type").
		Joins("LEFT JOIN books bk ON bk.book_id = fr.book_id").
		Joins("LEFT JOIN borrowers bo ON bo.uid = fr.borrower_id")
}

// GetRecord returns a single borrowing record.
func (r *Repository) GetRecord(ctx context.Context, recordID uint) (*entities.BorrowingRecord, error) {
	var record entities.BorrowingRecord
	err := r.db.WithContext(ctx).Where("record_id = ?", recordID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// CurrentRecords returns a borrower's outstanding loans, most recent first.
func (r *Repository) CurrentRecords(ctx context.Context, uid string) ([]entities.BorrowingRecordView, error) {
	var records []entities.BorrowingRecordView
	err := r.recordQuery(ctx).
		Where("br.borrower_id = ? AND br.return_date IS NULL", uid).
		Order("br.borrow_date DESC").
		Scan(&records).Error
	return records, err
}

// RecordsForBorrower returns a borrower's full loan history, most recent first.
func (r *Repository) RecordsForBorrower(ctx context.Context, uid string) ([]entities.BorrowingRecordView, error) {
	var records []entities.BorrowingRecordView
	err := r.recordQuery(ctx).
		Where("br.borrower_id = ?", uid).
		Order("br.borrow_date DESC").
		Scan(&records).Error
	return records, err
}

// FinesForBorrower returns a borrower's fines, unpaid first.
func (r *Repository) FinesForBorrower(ctx context.Context, uid string) ([]entities.FineRecordView, error) {
	var fines []entities.FineRecordView
	err := r.fineQuery(ctx).
		Where("fr.borrower_id = ?", uid).
		Order("fr.payment_status DESC, fr.fine_id DESC").
		Scan(&fines).Error
	return fines, err
}

// PayFine settles one unpaid fine owned by uid. UNPAID to PAID is terminal.
func (r *Repository) PayFine(ctx context.Context, uid string, fineID uint, paidAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var fine entities.FineRecord
		err := tx.Where("fine_id = ? AND borrower_id = ?", fineID, uid).First(&fine).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrFineNotFound
		}
		if err != nil {
			return err
		}
		if fine.PaymentStatus == entities.PaymentPaid {
			return ErrFineAlreadyPaid
		}
		return tx.Model(&entities.FineRecord{}).
			Where("fine_id = ? AND payment_status = ?", fineID, entities.PaymentUnpaid).
			Updates(map[string]any{"payment_status": entities.PaymentPaid, "paid_at": paidAt}).Error
	})
}

// PayAllFines settles every unpaid fine owned by uid and returns how many were paid.
func (r *Repository) PayAllFines(ctx context.Context, uid string, paidAt time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&entities.FineRecord{}).
		Where("borrower_id = ? AND payment_status = ?", uid, entities.PaymentUnpaid).
		Updates(map[string]any{"payment_status": entities.PaymentPaid, "paid_at": paidAt})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, ErrNoUnpaidFines
	}
	return result.RowsAffected, nil
}

// ListRecords returns every borrowing record for administrators.
func (r *Repository) ListRecords(ctx context.Context) ([]entities.BorrowingRecordView, error) {
	var records []entities.BorrowingRecordView
	err := r.recordQuery(ctx).Order("br.borrow_date DESC").Scan(&records).Error
	return records, err
}

// ListFines returns every fine record for administrators.
func (r *Repository) ListFines(ctx context.Context) ([]entities.FineRecordView, error) {
	var fines []entities.FineRecordView
	err := r.fineQuery(ctx).Order("fr.fine_id DESC").Scan(&fines).Error
	return fines, err
}

// ListLoginLogs returns the most recent logins, capped at limit.
func (r *Repository) ListLoginLogs(ctx context.Context, limit int) ([]entities.LoginLogView, error) {
	if limit <= 0 {
		limit = 100
	}
	var logs []entities.LoginLogView
	err := r.db.WithContext(ctx).
		Table("login_logs AS ll").
		Select("ll.*, bo.name AS user_name, bo.identity_type AS identity_type").
		Joins("LEFT JOIN borrowers bo ON bo.uid = ll.user_id").
		Order("ll.login_time DESC").
		Limit(limit).
		Scan(&logs).Error
	return logs, err
}

// OverdueLoans returns outstanding loans borrowed before cutoff.
func (r *Repository) OverdueLoans(ctx context.Context, cutoff time.Time) ([]entities.BorrowingRecordView, error) {
	var records []entities.BorrowingRecordView
	err := r.recordQuery(ctx).
		Where("br.return_date IS NULL AND br.borrow_date < ?", cutoff).
		Order("br.borrow_date ASC").
		Scan(&records).Error
	return records, err
}
