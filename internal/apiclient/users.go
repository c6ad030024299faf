package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/libdesk/libdesk/internal/entities"
)

// UsersService covers /users.
type UsersService struct {
	client *Client
}

type Registration struct {
	UID          string                `json:"uid"`
	Name         string                `json:"name"`
	Phone        string                `json:"phone,omitempty"`
	IdentityType entities.IdentityType `json:"identity_type"`
	StudentID    string                `json:"student_id,omitempty"`
	EmployeeID   string                `json:"employee_id,omitempty"`
	Password     string                `json:"password"`
}

type UserSummary struct {
	UID              string                   `json:"uid"`
	Name             string                   `json:"name"`
	IdentityType     entities.IdentityType    `json:"identity_type"`
	IdentityTypeName string                   `json:"identity_type_name"`
	BorrowingStatus  entities.BorrowingStatus `json:"borrowing_status"`
}

type LoginResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    UserSummary `json:"user"`
}

type PayAllResult struct {
	Paid int64 `json:"paid"`
}

func (s *UsersService) Register(ctx context.Context, reg Registration) (*Message, error) {
	var out Message
	if err := s.client.do(ctx, http.MethodPost, "/users/register", reg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login stores the issued token on success. A 401 here leaves the stored token alone.
func (s *UsersService) Login(ctx context.Context, uid, password string) (*LoginResult, error) {
	var out LoginResult
	body := map[string]string{"uid": uid, "password": password}
	if err := s.client.do(ctx, http.MethodPost, "/users/login", body, &out); err != nil {
		return nil, err
	}
	s.client.tokens.SetToken(out.Token)
	return &out, nil
}

// Logout revokes the token server-side and forgets it locally.
func (s *UsersService) Logout(ctx context.Context) error {
	err := s.client.do(ctx, http.MethodPost, "/users/logout", nil, nil)
	s.client.tokens.Clear()
	return err
}

func (s *UsersService) Info(ctx context.Context) (*entities.BorrowerProfile, error) {
	var out envelope[entities.BorrowerProfile]
	if err := s.client.do(ctx, http.MethodGet, "/users/info", nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (s *UsersService) CurrentRecords(ctx context.Context) ([]entities.BorrowingRecordView, error) {
	var out envelope[[]entities.BorrowingRecordView]
	err := s.client.do(ctx, http.MethodGet, "/users/borrowing-records/current", nil, &out)
	return out.Data, err
}

func (s *UsersService) AllRecords(ctx context.Context) ([]entities.BorrowingRecordView, error) {
	var out envelope[[]entities.BorrowingRecordView]
	err := s.client.do(ctx, http.MethodGet, "/users/borrowing-records/all", nil, &out)
	return out.Data, err
}

func (s *UsersService) Fines(ctx context.Context) ([]entities.FineRecordView, error) {
	var out envelope[[]entities.FineRecordView]
	err := s.client.do(ctx, http.MethodGet, "/users/fine-records", nil, &out)
	return out.Data, err
}

func (s *UsersService) PayFine(ctx context.Context, fineID uint) (*Message, error) {
	var out Message
	if err := s.client.do(ctx, http.MethodPost, "/users/fine-records/pay", map[string]uint{"fine_id": fineID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *UsersService) PayAllFines(ctx context.Context) (int64, error) {
	var out envelope[PayAllResult]
	if err := s.client.do(ctx, http.MethodPost, "/users/fine-records/pay-all", nil, &out); err != nil {
		return 0, err
	}
	return out.Data.Paid, nil
}

func (s *UsersService) Get(ctx context.Context, uid string) (*entities.BorrowerProfile, error) {
	var out entities.BorrowerProfile
	if err := s.client.do(ctx, http.MethodGet, "/users/"+url.PathEscape(uid), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *UsersService) Update(ctx context.Context, uid, name, phone string) (*Message, error) {
	var out Message
	body := map[string]string{"name": name, "phone": phone}
	if err := s.client.do(ctx, http.MethodPut, "/users/"+url.PathEscape(uid), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *UsersService) Records(ctx context.Context, uid string) ([]entities.BorrowingRecordView, error) {
	var out []entities.BorrowingRecordView
	err := s.client.do(ctx, http.MethodGet, "/users/"+url.PathEscape(uid)+"/borrowing-records", nil, &out)
	return out, err
}

func (s *UsersService) UserFines(ctx context.Context, uid string) ([]entities.FineRecordView, error) {
	var out []entities.FineRecordView
	err := s.client.do(ctx, http.MethodGet, "/users/"+url.PathEscape(uid)+"/fine-records", nil, &out)
	return out, err
}
