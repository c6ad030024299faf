package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/sirupsen/logrus"

	"github.com/libdesk/libdesk/internal/entities"
	"github.com/libdesk/libdesk/internal/procedures"
)

// OverdueLoanFinder lists outstanding loans borrowed before a cutoff.
type OverdueLoanFinder interface {
	OverdueLoans(ctx context.Context, cutoff time.Time) ([]entities.BorrowingRecordView, error)
}

// OverdueNotifier records a notice for one overdue loan.
type OverdueNotifier interface {
	LogOverdue(ctx context.Context, record entities.BorrowingRecordView, overdueDays int) error
}

// OverdueScanner finds loans past the loan period and notifies each borrower.
type OverdueScanner struct {
	Loans    OverdueLoanFinder
	Notifier OverdueNotifier
	Policy   procedures.LoanPolicy
	Logger   logrus.FieldLogger
}

// ScanSummary reports the outcome of one overdue scan.
type ScanSummary struct {
	Overdue  int `json:"overdue"`
	Notified int `json:"notified"`
	Failed   int `json:"failed"`
}

// Scan notifies every loan overdue as of now. A failed notice is logged and
// counted; the scan only errors when the loans cannot be listed.
func (s *OverdueScanner) Scan(ctx context.Context, now time.Time) (ScanSummary, error) {
	var summary ScanSummary

	cutoff := now.AddDate(0, 0, -s.Policy.PeriodDays)
	loans, err := s.Loans.OverdueLoans(ctx, cutoff)
	if err != nil {
		return summary, fmt.Errorf("list overdue loans: %w", err)
	}

	for _, loan := range loans {
		days := s.Policy.OverdueDays(loan.BorrowDate, now)
		if days == 0 {
			continue
		}
		summary.Overdue++

		if err := s.Notifier.LogOverdue(ctx, loan, days); err != nil {
			summary.Failed++
			s.Logger.WithError(err).WithField("record_id", loan.RecordID).Warn("Failed to record overdue notice")
			continue
		}
		summary.Notified++

		s.Logger.WithFields(logrus.Fields{
			"record_id":    loan.RecordID,
			"borrower_id":  loan.BorrowerID,
			"book_id":      loan.BookID,
			"overdue_days": days,
		}).Info("Loan overdue")
	}

	return summary, nil
}

// OverdueNoticesTask scans for overdue loans. AsOf defaults to the time the task runs.
type OverdueNoticesTask struct {
	AsOf *time.Time `json:"as_of,omitempty"`
}

// Config returns the queue configuration for overdue notices.
func (t OverdueNoticesTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "overdue_notices",
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     10 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   7 * 24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// OverdueNoticesProcessor creates a processor function for OverdueNoticesTask.
func OverdueNoticesProcessor(scanner *OverdueScanner) backlite.QueueProcessor[OverdueNoticesTask] {
	return func(ctx context.Context, task OverdueNoticesTask) error {
		if scanner == nil {
			return fmt.Errorf("overdue scanner not configured")
		}

		now := time.Now()
		if task.AsOf != nil {
			now = *task.AsOf
		}

		summary, err := scanner.Scan(ctx, now)
		if err != nil {
			return err
		}

		scanner.Logger.WithFields(logrus.Fields{
			"overdue":  summary.Overdue,
			"notified": summary.Notified,
			"failed":   summary.Failed,
		}).Info("Overdue scan finished")
		return nil
	}
}

// NewOverdueNoticesQueue creates a backlite queue for overdue notices.
func NewOverdueNoticesQueue(scanner *OverdueScanner) backlite.Queue {
	return backlite.NewQueue(OverdueNoticesProcessor(scanner))
}
