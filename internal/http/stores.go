package http

import (
	"context"
	"time"

	"github.com/libdesk/libdesk/internal/entities"
)

// BorrowerStore defines the borrower account operations the user and admin
// controllers need beyond the procedures.
type BorrowerStore interface {
	GetProfile(ctx context.Context, uid string) (*entities.BorrowerProfile, error)
	ListProfiles(ctx context.Context) ([]entities.BorrowerProfile, error)
	SetStatus(ctx context.Context, uid string, status entities.BorrowingStatus) error
	Promote(ctx context.Context, uid string) error
	Demote(ctx context.Context, uid string) error
	DeleteCascade(ctx context.Context, uid string) error
}

// CirculationStore defines read access to loans, fines and login logs, plus fine payment.
type CirculationStore interface {
	GetRecord(ctx context.Context, recordID uint) (*entities.BorrowingRecord, error)
	CurrentRecords(ctx context.Context, uid string) ([]entities.BorrowingRecordView, error)
	RecordsForBorrower(ctx context.Context, uid string) ([]entities.BorrowingRecordView, error)
	FinesForBorrower(ctx context.Context, uid string) ([]entities.FineRecordView, error)
	PayFine(ctx context.Context, uid string, fineID uint, paidAt time.Time) error
	PayAllFines(ctx context.Context, uid string, paidAt time.Time) (int64, error)
	ListRecords(ctx context.Context) ([]entities.BorrowingRecordView, error)
	ListFines(ctx context.Context) ([]entities.FineRecordView, error)
	ListLoginLogs(ctx context.Context, limit int) ([]entities.LoginLogView, error)
}
