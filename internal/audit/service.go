package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/libdesk/libdesk/internal/database/audit"
	"github.com/libdesk/libdesk/internal/entities"
)

// Service provides high-level audit logging functionality.
type Service struct {
	repo   *audit.Repository
	logger logrus.FieldLogger
	wg     sync.WaitGroup
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository, logger logrus.FieldLogger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Log records a generic audit event.
func (s *Service) Log(ctx context.Context, event *entities.AuditEvent) error {
	return s.repo.LogEvent(ctx, event)
}

// LogAsync records an audit event in the background (non-blocking).
func (s *Service) LogAsync(event *entities.AuditEvent) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.repo.LogEvent(context.Background(), event); err != nil {
			s.logger.WithError(err).WithField("action", event.Action).Warn("Failed to log audit event")
		}
	}()
}

// Wait blocks until every pending LogAsync write has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// LogAuth records an authentication event.
func (s *Service) LogAuth(userID, action, ipAddr, userAgent string, success bool) {
	event := &entities.AuditEvent{
		UserID:     userID,
		EventType:  entities.AuditEventAuth,
		Action:     action,
		EntityType: "borrower",
		EntityID:   userID,
		IPAddress:  ipAddr,
		UserAgent:  truncate(userAgent, 500),
		Status:     entities.AuditStatusSuccess,
	}

	if !success {
		event.Status = entities.AuditStatusFailed
	}

	s.LogAsync(event)
}

// LogAdmin records an administrative action performed by actorID on a target borrower.
func (s *Service) LogAdmin(actorID, action, targetUID string, err error) {
	event := &entities.AuditEvent{
		UserID:      actorID,
		EventType:   entities.AuditEventAdmin,
		Action:      action,
		Description: action + " " + targetUID,
		EntityType:  "borrower",
		EntityID:    targetUID,
		Status:      entities.AuditStatusSuccess,
	}

	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}

	s.LogAsync(event)
}

// LogLoan records a borrow or return.
func (s *Service) LogLoan(userID, action string, recordID uint, bookID string, metadata map[string]any) {
	event := &entities.AuditEvent{
		UserID:      userID,
		EventType:   entities.AuditEventLoan,
		Action:      action,
		Description: action + " " + bookID,
		EntityType:  "borrowing_record",
		EntityID:    uintToString(recordID),
		Status:      entities.AuditStatusSuccess,
	}

	if len(metadata) > 0 {
		if mdBytes, e := json.Marshal(metadata); e == nil {
			event.Metadata = string(mdBytes)
		}
	}

	s.LogAsync(event)
}

// LogOverdue records an overdue notice for an outstanding loan.
func (s *Service) LogOverdue(ctx context.Context, record entities.BorrowingRecordView, overdueDays int) error {
	metadata, _ := json.Marshal(map[string]any{
		"book_id":      record.BookID,
		"book_title":   record.BookTitle,
		"overdue_days": overdueDays,
	})
	return s.Log(ctx, &entities.AuditEvent{
		UserID:      record.BorrowerID,
		EventType:   entities.AuditEventOverdue,
		Action:      "overdue_notice",
		Description: "Loan of " + record.BookTitle + " is overdue",
		EntityType:  "borrowing_record",
		EntityID:    uintToString(record.RecordID),
		Metadata:    string(metadata),
		Status:      entities.AuditStatusSuccess,
	})
}

// LogSchedule records the outcome of a scheduled job.
func (s *Service) LogSchedule(action, description string, err error) {
	event := &entities.AuditEvent{
		EventType:   entities.AuditEventSchedule,
		Action:      action,
		Description: description,
		Status:      entities.AuditStatusSuccess,
	}

	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}

	s.LogAsync(event)
}

// GetEvents retrieves paginated audit events.
func (s *Service) GetEvents(ctx context.Context, filter audit.Filter) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEvents(ctx, filter)
}

// DeleteOldEvents removes events older than the specified duration.
func (s *Service) DeleteOldEvents(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	return s.repo.DeleteOldEvents(ctx, cutoff)
}

func uintToString(v uint) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(v), 10)
}

// truncate shortens a string to max length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
