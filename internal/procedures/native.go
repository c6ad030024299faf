package procedures

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/libdesk/libdesk/internal/auth"
	"github.com/libdesk/libdesk/internal/database/books"
	"github.com/libdesk/libdesk/internal/database/borrowers"
	"github.com/libdesk/libdesk/internal/entities"
)

// Messages reported by the native procedures.
const (
	MsgRegistered          = "registration successful"
	MsgRegistrationFields  = "uid, name and password are required"
	MsgIdentityType        = "identity type must be 1 (student) or 2 (staff)"
	MsgUserExists          = "user id already exists"
	MsgLoginOK             = "login successful"
	MsgBadCredentials      = "invalid user id or password"
	MsgUserNotFound        = "user not found"
	MsgUserUpdated         = "user updated"
	MsgNameRequired        = "name is required"
	MsgBookFields          = "book id and title are required"
	MsgBookExists          = "book id or ISBN already exists"
	MsgBookNotFound        = "book not found"
	MsgPublisherNotFound   = "publisher not found"
	MsgNegativeStock       = "stock cannot be negative"
	MsgCurrentOverTotal    = "current stock cannot exceed total stock"
	MsgStockBelowLoans     = "total stock cannot be lower than outstanding loans"
	MsgBookHasLoans        = "book has outstanding loans"
	MsgBookAdded           = "book added"
	MsgBookUpdated         = "book updated"
	MsgBookDeleted         = "book deleted"
	MsgBorrowerNotFound    = "borrower not found"
	MsgBorrowerSuspended   = "borrowing privileges are suspended"
	MsgNoCopies            = "no copies available"
	MsgLoanLimit           = "loan limit reached"
	MsgAlreadyBorrowed     = "book already borrowed by this borrower"
	MsgBorrowed            = "book borrowed"
	MsgRecordNotFound      = "borrowing record not found"
	MsgAlreadyReturned     = "book already returned"
	MsgReturned            = "book returned"
	MsgReturnedWithPenalty = "book returned %d day(s) late, fine %.2f"
)

// Native implements Procedures in-process on gorm.
type Native struct {
	db         *gorm.DB
	policy     LoanPolicy
	bcryptCost int
	now        func() time.Time
}

var _ Procedures = (*Native)(nil)

func NewNative(db *gorm.DB, policy LoanPolicy, bcryptCost int) *Native {
	return &Native{db: db, policy: policy, bcryptCost: bcryptCost, now: time.Now}
}

// WithClock replaces the time source used for registration and login stamps.
func (n *Native) WithClock(now func() time.Time) *Native {
	n.now = now
	return n
}

// rejection carries a domain Result out of a transaction so it rolls back.
type rejection struct {
	result Result
}

func (r *rejection) Error() string { return r.result.Message }

// transact runs fn in a transaction. A non-OK Result rolls the transaction back
// and is returned without an error.
func (n *Native) transact(ctx context.Context, fn func(tx *gorm.DB) (Result, error)) (Result, error) {
	var result Result
	err := n.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := fn(tx)
		if err != nil {
			return err
		}
		if !r.OK() {
			return &rejection{result: r}
		}
		result = r
		return nil
	})

	var rej *rejection
	if errors.As(err, &rej) {
		return rej.result, nil
	}
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (n *Native) RegisterUser(ctx context.Context, reg Registration) (Result, error) {
	uid := strings.TrimSpace(reg.UID)
	name := strings.TrimSpace(reg.Name)
	if uid == "" || name == "" || reg.Password == "" {
		return reject(KindValidation, MsgRegistrationFields), nil
	}
	if reg.IdentityType != entities.IdentityStudent && reg.IdentityType != entities.IdentityStaff {
		return reject(KindValidation, MsgIdentityType), nil
	}

	hash, err := auth.HashPassword(reg.Password, n.bcryptCost)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return reject(KindValidation, err.Error()), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to hash password: %w", err)
	}

	return n.transact(ctx, func(tx *gorm.DB) (Result, error) {
		repo := borrowers.NewRepository(tx)
		exists, err := repo.Exists(ctx, uid)
		if err != nil {
			return Result{}, err
		}
		if exists {
			return reject(KindConflict, MsgUserExists), nil
		}

		borrower := &entities.Borrower{
			UID:              uid,
			Name:             name,
			Phone:            strings.TrimSpace(reg.Phone),
			IdentityType:     reg.IdentityType,
			StudentID:        optional(reg.StudentID),
			EmployeeID:       optional(reg.EmployeeID),
			RegistrationDate: n.now(),
			BorrowingStatus:  entities.BorrowingActive,
		}
		if err := repo.Create(ctx, borrower, hash); err != nil {
			return Result{}, err
		}
		return ok(MsgRegistered), nil
	})
}

func (n *Native) Login(ctx context.Context, uid, password string) (LoginResult, error) {
	invalid := LoginResult{Result: reject(KindUnauthorized, MsgBadCredentials)}
	if uid == "" || password == "" {
		return invalid, nil
	}

	repo := borrowers.NewRepository(n.db)
	creds, err := repo.GetCredentials(ctx, uid)
	if errors.Is(err, borrowers.ErrNotFound) {
		return invalid, nil
	}
	if err != nil {
		return LoginResult{}, err
	}

	if err := auth.CheckPassword(password, creds.PasswordHash); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			return invalid, nil
		}
		return LoginResult{}, err
	}

	profile, err := repo.GetProfile(ctx, uid)
	if errors.Is(err, borrowers.ErrNotFound) {
		return invalid, nil
	}
	if err != nil {
		return LoginResult{}, err
	}

	entry := &entities.LoginLog{UserID: uid, LoginTime: n.now()}
	if err := n.db.WithContext(ctx).Create(entry).Error; err != nil {
		return LoginResult{}, fmt.Errorf("failed to record login: %w", err)
	}

	return LoginResult{
		Result:          ok(MsgLoginOK),
		Name:            profile.Name,
		IdentityType:    profile.IdentityType,
		TypeName:        profile.TypeName,
		BorrowingStatus: profile.BorrowingStatus,
	}, nil
}

func (n *Native) GetUserByID(ctx context.Context, uid string) (UserResult, error) {
	profile, err := borrowers.NewRepository(n.db).GetProfile(ctx, uid)
	if errors.Is(err, borrowers.ErrNotFound) {
		return UserResult{Result: reject(KindNotFound, MsgUserNotFound)}, nil
	}
	if err != nil {
		return UserResult{}, err
	}
	return UserResult{Result: ok(""), Profile: profile}, nil
}

func (n *Native) UpdateUser(ctx context.Context, uid, name, phone string) (Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return reject(KindValidation, MsgNameRequired), nil
	}
	err := borrowers.NewRepository(n.db).UpdateContact(ctx, uid, name, strings.TrimSpace(phone))
	if errors.Is(err, borrowers.ErrNotFound) {
		return reject(KindNotFound, MsgUserNotFound), nil
	}
	if err != nil {
		return Result{}, err
	}
	return ok(MsgUserUpdated), nil
}

func (n *Native) GetAllBooks(ctx context.Context) ([]entities.Book, error) {
	return books.NewRepository(n.db).List(ctx)
}

func (n *Native) SearchBooks(ctx context.Context, field books.SearchField, query string) ([]entities.Book, error) {
	return books.NewRepository(n.db).Search(ctx, field, query)
}

func (n *Native) GetBookByID(ctx context.Context, bookID string) (BookResult, error) {
	book, err := books.NewRepository(n.db).GetByID(ctx, bookID)
	if errors.Is(err, books.ErrNotFound) {
		return BookResult{Result: reject(KindNotFound, MsgBookNotFound)}, nil
	}
	if err != nil {
		return BookResult{}, err
	}
	return BookResult{Result: ok(""), Book: book}, nil
}

// resolvePublisher picks an explicit publisher id over a publisher name.
func resolvePublisher(ctx context.Context, tx *gorm.DB, input BookInput) (*uint, *Result, error) {
	if input.PublisherID != nil {
		var count int64
		if err := tx.Model(&entities.Publisher{}).Where("publisher_id = ?", *input.PublisherID).Count(&count).Error; err != nil {
			return nil, nil, err
		}
		if count == 0 {
			r := reject(KindValidation, MsgPublisherNotFound)
			return nil, &r, nil
		}
		return input.PublisherID, nil, nil
	}
	id, err := books.NewRepository(tx).EnsurePublisher(ctx, input.PublisherName)
	return id, nil, err
}

func (n *Native) AddBook(ctx context.Context, input BookInput) (Result, error) {
	bookID := strings.TrimSpace(input.BookID)
	title := strings.TrimSpace(input.Title)
	if bookID == "" || title == "" {
		return reject(KindValidation, MsgBookFields), nil
	}
	if input.TotalStock < 0 {
		return reject(KindValidation, MsgNegativeStock), nil
	}

	return n.transact(ctx, func(tx *gorm.DB) (Result, error) {
		repo := books.NewRepository(tx)
		exists, err := repo.Exists(ctx, bookID, strings.TrimSpace(input.ISBN))
		if err != nil {
			return Result{}, err
		}
		if exists {
			return reject(KindConflict, MsgBookExists), nil
		}

		publisherID, rejected, err := resolvePublisher(ctx, tx, input)
		if err != nil || rejected != nil {
			return deref(rejected), err
		}

		book := &entities.Book{
			BookID:          bookID,
			Title:           title,
			ISBN:            strings.TrimSpace(input.ISBN),
			PublisherID:     publisherID,
			PublicationYear: input.PublicationYear,
			TotalStock:      input.TotalStock,
			CurrentStock:    input.TotalStock,
			Location:        strings.TrimSpace(input.Location),
		}
		if err := tx.Omit("Authors", "Publisher").Create(book).Error; err != nil {
			return Result{}, fmt.Errorf("failed to create book: %w", err)
		}

		if len(input.Authors) > 0 {
			authors, err := repo.EnsureAuthors(ctx, input.Authors)
			if err != nil {
				return Result{}, err
			}
			if err := repo.ReplaceAuthors(ctx, book, authors); err != nil {
				return Result{}, fmt.Errorf("failed to attach authors: %w", err)
			}
		}
		return ok(MsgBookAdded), nil
	})
}

func (n *Native) UpdateBook(ctx context.Context, bookID string, input BookInput) (Result, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return reject(KindValidation, MsgBookFields), nil
	}
	if input.TotalStock < 0 || (input.CurrentStock != nil && *input.CurrentStock < 0) {
		return reject(KindValidation, MsgNegativeStock), nil
	}

	return n.transact(ctx, func(tx *gorm.DB) (Result, error) {
		var book entities.Book
		err := tx.Where("book_id = ?", bookID).First(&book).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return reject(KindNotFound, MsgBookNotFound), nil
		}
		if err != nil {
			return Result{}, err
		}

		repo := books.NewRepository(tx)
		outstanding, err := repo.OutstandingLoans(ctx, bookID)
		if err != nil {
			return Result{}, err
		}
		if int64(input.TotalStock) < outstanding {
			return reject(KindValidation, MsgStockBelowLoans), nil
		}

		current := input.TotalStock - int(outstanding)
		if input.CurrentStock != nil {
			current = *input.CurrentStock
		}
		if current > input.TotalStock {
			return reject(KindValidation, MsgCurrentOverTotal), nil
		}

		isbn := strings.TrimSpace(input.ISBN)
		if isbn != "" && isbn != book.ISBN {
			var clash int64
			if err := tx.Model(&entities.Book{}).Where("isbn = ? AND book_id <> ?", isbn, bookID).Count(&clash).Error; err != nil {
				return Result{}, err
			}
			if clash > 0 {
				return reject(KindConflict, MsgBookExists), nil
			}
		}

		publisherID, rejected, err := resolvePublisher(ctx, tx, input)
		if err != nil || rejected != nil {
			return deref(rejected), err
		}

		updates := map[string]any{
			"title":            title,
			"isbn":             isbn,
			"publisher_id":     publisherID,
			"publication_year": input.PublicationYear,
			"total_stock":      input.TotalStock,
			"current_stock":    current,
			"location":         strings.TrimSpace(input.Location),
		}
		if err := tx.Model(&entities.Book{}).Where("book_id = ?", bookID).Updates(updates).Error; err != nil {
			return Result{}, fmt.Errorf("failed to update book: %w", err)
		}

		if input.Authors != nil {
			authors, err := repo.EnsureAuthors(ctx, input.Authors)
			if err != nil {
				return Result{}, err
			}
			if err := repo.ReplaceAuthors(ctx, &book, authors); err != nil {
				return Result{}, fmt.Errorf("failed to replace authors: %w", err)
			}
		}
		return ok(MsgBookUpdated), nil
	})
}

func (n *Native) DeleteBook(ctx context.Context, bookID string) (Result, error) {
	return n.transact(ctx, func(tx *gorm.DB) (Result, error) {
		var book entities.Book
		err := tx.Where("book_id = ?", bookID).First(&book).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return reject(KindNotFound, MsgBookNotFound), nil
		}
		if err != nil {
			return Result{}, err
		}

		outstanding, err := books.NewRepository(tx).OutstandingLoans(ctx, bookID)
		if err != nil {
			return Result{}, err
		}
		if outstanding > 0 {
			return reject(KindConflict, MsgBookHasLoans), nil
		}

		if err := tx.Model(&book).Association("Authors").Clear(); err != nil {
			return Result{}, fmt.Errorf("failed to detach authors: %w", err)
		}
		if err := tx.Where("book_id = ?", bookID).Delete(&entities.Book{}).Error; err != nil {
			return Result{}, fmt.Errorf("failed to delete book: %w", err)
		}
		return ok(MsgBookDeleted), nil
	})
}

// BorrowBook checks availability, decrements stock, bumps the borrower's
// counter and inserts the borrowing record in one transaction.
func (n *Native) BorrowBook(ctx context.Context, borrowerID, bookID string, date time.Time) (BorrowResult, error) {
	var recordID uint
	result, err := n.transact(ctx, func(tx *gorm.DB) (Result, error) {
		var borrower entities.Borrower
		err := tx.Where("uid = ?", borrowerID).First(&borrower).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return reject(KindNotFound, MsgBorrowerNotFound), nil
		}
		if err != nil {
			return Result{}, err
		}
		if borrower.BorrowingStatus == entities.BorrowingSuspended {
			return reject(KindValidation, MsgBorrowerSuspended), nil
		}

		var book entities.Book
		err = tx.Where("book_id = ?", bookID).First(&book).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return reject(KindNotFound, MsgBookNotFound), nil
		}
		if err != nil {
			return Result{}, err
		}
		if book.CurrentStock <= 0 {
			return reject(KindConflict, MsgNoCopies), nil
		}

		var held, sameBook int64
		if err := tx.Model(&entities.BorrowingRecord{}).
			Where("borrower_id = ? AND return_date IS NULL", borrowerID).
			Count(&held).Error; err != nil {
			return Result{}, err
		}
		if held >= int64(n.policy.MaxLoans(borrower.IdentityType)) {
			return reject(KindConflict, MsgLoanLimit), nil
		}
		if err := tx.Model(&entities.BorrowingRecord{}).
			Where("borrower_id = ? AND book_id = ? AND return_date IS NULL", borrowerID, bookID).
			Count(&sameBook).Error; err != nil {
			return Result{}, err
		}
		if sameBook > 0 {
			return reject(KindConflict, MsgAlreadyBorrowed), nil
		}

		// The stock guard in the WHERE clause keeps concurrent borrows from
		// driving current_stock below zero.
		dec := tx.Model(&entities.Book{}).
			Where("book_id = ? AND current_stock > 0", bookID).
			UpdateColumn("current_stock", gorm.Expr("current_stock - 1"))
		if dec.Error != nil {
			return Result{}, dec.Error
		}
		if dec.RowsAffected == 0 {
			return reject(KindConflict, MsgNoCopies), nil
		}

		if err := tx.Model(&entities.Borrower{}).Where("uid = ?", borrowerID).
			UpdateColumn("borrowed_count", gorm.Expr("borrowed_count + 1")).Error; err != nil {
			return Result{}, err
		}

		record := &entities.BorrowingRecord{BookID: bookID, BorrowerID: borrowerID, BorrowDate: date}
		if err := tx.Create(record).Error; err != nil {
			return Result{}, fmt.Errorf("failed to create borrowing record: %w", err)
		}
		recordID = record.RecordID
		return ok(MsgBorrowed), nil
	})
	if err != nil {
		return BorrowResult{}, err
	}
	return BorrowResult{Result: result, RecordID: recordID}, nil
}

// ReturnBook closes a loan, raises at most one fine when it is overdue and
// puts the copy back on the shelf.
func (n *Native) ReturnBook(ctx context.Context, recordID uint, date time.Time) (ReturnResult, error) {
	var out ReturnResult
	result, err := n.transact(ctx, func(tx *gorm.DB) (Result, error) {
		var record entities.BorrowingRecord
		err := tx.Where("record_id = ?", recordID).First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return reject(KindNotFound, MsgRecordNotFound), nil
		}
		if err != nil {
			return Result{}, err
		}
		if !record.IsOutstanding() {
			return reject(KindConflict, MsgAlreadyReturned), nil
		}

		closed := tx.Model(&entities.BorrowingRecord{}).
			Where("record_id = ? AND return_date IS NULL", recordID).
			Update("return_date", date)
		if closed.Error != nil {
			return Result{}, closed.Error
		}
		if closed.RowsAffected == 0 {
			return reject(KindConflict, MsgAlreadyReturned), nil
		}

		overdue := n.policy.OverdueDays(record.BorrowDate, date)
		message := MsgReturned
		if overdue > 0 {
			fine := &entities.FineRecord{
				RecordID:      record.RecordID,
				BookID:        record.BookID,
				BorrowerID:    record.BorrowerID,
				BorrowDate:    record.BorrowDate,
				OverdueDays:   overdue,
				Amount:        n.policy.Fine(overdue),
				PaymentStatus: entities.PaymentUnpaid,
			}
			if err := tx.Create(fine).Error; err != nil {
				return Result{}, fmt.Errorf("failed to create fine record: %w", err)
			}
			out.OverdueDays = overdue
			out.FineAmount = fine.Amount
			out.FineRecordID = &fine.FineID
			message = fmt.Sprintf(MsgReturnedWithPenalty, overdue, fine.Amount)
		}

		if err := tx.Model(&entities.Book{}).
			Where("book_id = ? AND current_stock < total_stock", record.BookID).
			UpdateColumn("current_stock", gorm.Expr("current_stock + 1")).Error; err != nil {
			return Result{}, err
		}
		if err := tx.Model(&entities.Borrower{}).
			Where("uid = ? AND borrowed_count > 0", record.BorrowerID).
			UpdateColumn("borrowed_count", gorm.Expr("borrowed_count - 1")).Error; err != nil {
			return Result{}, err
		}
		return ok(message), nil
	})
	if err != nil {
		return ReturnResult{}, err
	}
	out.Result = result
	if !result.OK() {
		return ReturnResult{Result: result}, nil
	}
	return out, nil
}

func deref(r *Result) Result {
	if r == nil {
		return Result{}
	}
	return *r
}
