package http

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/libdesk/libdesk/internal/entities"
	"github.com/libdesk/libdesk/internal/procedures"
)

// flexID accepts an identifier sent either as a JSON string or a JSON number.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func (f flexID) String() string { return string(f) }

// Uint parses the id as a record number.
func (f flexID) Uint() (uint, bool) {
	v, err := strconv.ParseUint(string(f), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(v), true
}

// firstOf returns the first non-empty alias.
func firstOf(ids ...flexID) string {
	for _, id := range ids {
		if id != "" {
			return id.String()
		}
	}
	return ""
}

type registerRequest struct {
	UID          flexID `json:"uid"`
	Username     flexID `json:"username"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	IdentityType flexID `json:"identity_type"`
	StudentID    flexID `json:"student_id"`
	EmployeeID   flexID `json:"employee_id"`
	Password     string `json:"password"`
}

// registration folds the request into the procedure input. ok is false when
// identity_type is missing or not an integer.
func (r registerRequest) registration() (reg procedures.Registration, ok bool) {
	v, err := strconv.Atoi(r.IdentityType.String())
	return procedures.Registration{
		UID:          firstOf(r.UID, r.Username),
		Name:         strings.TrimSpace(r.Name),
		Phone:        strings.TrimSpace(r.Phone),
		IdentityType: entities.IdentityType(v),
		StudentID:    r.StudentID.String(),
		EmployeeID:   r.EmployeeID.String(),
		Password:     r.Password,
	}, err == nil
}

type loginRequest struct {
	UID      flexID `json:"uid"`
	Username flexID `json:"username"`
	UserID   flexID `json:"userId"`
	Password string `json:"password"`
}

func (r loginRequest) userID() string { return firstOf(r.UID, r.Username, r.UserID) }

type updateUserRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type bookRequest struct {
	BookID          flexID   `json:"book_id"`
	BookIDCamel     flexID   `json:"bookId"`
	Title           string   `json:"title"`
	ISBN            string   `json:"isbn"`
	PublisherID     flexID   `json:"publisher_id"`
	Publisher       string   `json:"publisher"`
	Authors         []string `json:"authors"`
	Author          string   `json:"author"`
	PublicationYear int      `json:"publication_year"`
	TotalStock      int      `json:"total_stock"`
	CurrentStock    *int     `json:"current_stock"`
	Location        string   `json:"location"`
}

// input folds the request into the procedure input. A single "author" string
// is accepted alongside the "authors" list.
func (r bookRequest) input() procedures.BookInput {
	in := procedures.BookInput{
		BookID:          firstOf(r.BookID, r.BookIDCamel),
		Title:           strings.TrimSpace(r.Title),
		ISBN:            strings.TrimSpace(r.ISBN),
		PublisherName:   strings.TrimSpace(r.Publisher),
		Authors:         r.Authors,
		PublicationYear: r.PublicationYear,
		TotalStock:      r.TotalStock,
		CurrentStock:    r.CurrentStock,
		Location:        strings.TrimSpace(r.Location),
	}
	if id, ok := r.PublisherID.Uint(); ok {
		in.PublisherID = &id
	}
	if author := strings.TrimSpace(r.Author); author != "" {
		in.Authors = append(in.Authors, author)
	}
	return in
}

type borrowRequest struct {
	BookID      flexID `json:"book_id"`
	BookIDCamel flexID `json:"bookId"`
	BorrowerID  flexID `json:"borrower_id"`
}

func (r borrowRequest) bookID() string { return firstOf(r.BookID, r.BookIDCamel) }

type returnRequest struct {
	RecordID      flexID `json:"record_id"`
	RecordIDCamel flexID `json:"recordId"`
}

func (r returnRequest) recordID() (uint, bool) {
	return flexID(firstOf(r.RecordID, r.RecordIDCamel)).Uint()
}

type payFineRequest struct {
	FineID      flexID `json:"fine_id"`
	FineIDCamel flexID `json:"fineId"`
}

func (r payFineRequest) fineID() (uint, bool) {
	return flexID(firstOf(r.FineID, r.FineIDCamel)).Uint()
}

type manageRequest struct {
	UID    flexID `json:"uid"`
	UserID flexID `json:"userId"`
	Action string `json:"action"`
}

func (r manageRequest) target() string { return firstOf(r.UID, r.UserID) }
