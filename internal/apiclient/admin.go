package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/libdesk/libdesk/internal/entities"
)

// AdminService covers /admin. Every call needs an administrator token.
type AdminService struct {
	client *Client
}

type UserAction string

const (
	ActivateUser UserAction = "activate"
	SuspendUser  UserAction = "suspend"
	DeleteUser   UserAction = "delete"
)

type AdminAction string

const (
	PromoteAdmin AdminAction = "promote"
	DemoteAdmin  AdminAction = "demote"
)

// AuditPage is one page of the audit trail.
type AuditPage struct {
	Data    []entities.AuditEvent `json:"data"`
	Total   int64                 `json:"total"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
	HasMore bool                  `json:"has_more"`
}

func (s *AdminService) Users(ctx context.Context) ([]entities.BorrowerProfile, error) {
	var out envelope[[]entities.BorrowerProfile]
	err := s.client.do(ctx, http.MethodGet, "/admin/users", nil, &out)
	return out.Data, err
}

func (s *AdminService) BorrowingRecords(ctx context.Context) ([]entities.BorrowingRecordView, error) {
	var out envelope[[]entities.BorrowingRecordView]
	err := s.client.do(ctx, http.MethodGet, "/admin/borrowing-records", nil, &out)
	return out.Data, err
}

func (s *AdminService) FineRecords(ctx context.Context) ([]entities.FineRecordView, error) {
	var out envelope[[]entities.FineRecordView]
	err := s.client.do(ctx, http.MethodGet, "/admin/fine-records", nil, &out)
	return out.Data, err
}

func (s *AdminService) LoginLogs(ctx context.Context, limit int) ([]entities.LoginLogView, error) {
	path := "/admin/login-logs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out envelope[[]entities.LoginLogView]
	err := s.client.do(ctx, http.MethodGet, path, nil, &out)
	return out.Data, err
}

func (s *AdminService) AuditEvents(ctx context.Context, userID string, limit, offset int) (*AuditPage, error) {
	q := url.Values{}
	if userID != "" {
		q.Set("user_id", userID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/admin/audit-events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out AuditPage
	if err := s.client.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *AdminService) ManageUser(ctx context.Context, uid string, action UserAction) (*Message, error) {
	var out Message
	body := map[string]string{"uid": uid, "action": string(action)}
	if err := s.client.do(ctx, http.MethodPost, "/admin/manage-user", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *AdminService) ManageAdmin(ctx context.Context, uid string, action AdminAction) (*Message, error) {
	var out Message
	body := map[string]string{"uid": uid, "action": string(action)}
	if err := s.client.do(ctx, http.MethodPost, "/admin/manage-admin", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
