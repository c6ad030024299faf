// Package procedures holds the library's business rules behind one typed contract.
//
// Every operation reports its domain outcome as a Result: code 0 is success, code 1
// is an expected rule violation (bad input, unknown entity, rejected loan) and any
// other code is an unexpected failure. Infrastructure failures (lost connection,
// failed commit) come back as a Go error instead.
//
// Two implementations exist. Native runs the rules in-process on gorm, wrapping each
// mutation in a transaction. Stored calls the equivalent MySQL stored procedures and
// reads their OUT variables on a single pinned connection.
package procedures

import (
	"context"
	"time"

	"github.com/libdesk/libdesk/internal/database/books"
	"github.com/libdesk/libdesk/internal/entities"
)

// Result codes.
const (
	CodeOK          = 0
	CodeDomainError = 1
	CodeFailure     = 2
)

// Kind refines a domain error so callers can pick a status code.
type Kind int

const (
	KindNone Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnauthorized
)

// Result is the (code, message) pair every procedure reports.
type Result struct {
	Code    int
	Message string
	Kind    Kind
}

func (r Result) OK() bool { return r.Code == CodeOK }

// IsDomainError reports an expected rule violation.
func (r Result) IsDomainError() bool { return r.Code == CodeDomainError }

func ok(message string) Result {
	return Result{Code: CodeOK, Message: message}
}

func reject(kind Kind, message string) Result {
	return Result{Code: CodeDomainError, Message: message, Kind: kind}
}

// Registration is the input of RegisterUser.
type Registration struct {
	UID          string
	Name         string
	Phone        string
	IdentityType entities.IdentityType
	StudentID    string
	EmployeeID   string
	Password     string
}

// LoginResult carries the borrower summary returned on a successful login.
type LoginResult struct {
	Result
	Name            string
	IdentityType    entities.IdentityType
	TypeName        string
	BorrowingStatus entities.BorrowingStatus
}

// UserResult carries a borrower profile.
type UserResult struct {
	Result
	Profile *entities.BorrowerProfile
}

// BookInput is the input of AddBook and UpdateBook.
type BookInput struct {
	BookID          string
	Title           string
	ISBN            string
	PublisherID     *uint
	PublisherName   string
	Authors         []string
	PublicationYear int
	TotalStock      int
	// CurrentStock is only honored by UpdateBook; AddBook starts with TotalStock on the shelf.
	CurrentStock *int
	Location     string
}

// BookResult carries a single book.
type BookResult struct {
	Result
	Book *entities.Book
}

// BorrowResult carries the id of the borrowing record a successful borrow created.
type BorrowResult struct {
	Result
	RecordID uint
}

// ReturnResult carries the overdue outcome of a return.
type ReturnResult struct {
	Result
	OverdueDays  int
	FineAmount   float64
	FineRecordID *uint
}

// Procedures is the contract controllers depend on.
type Procedures interface {
	RegisterUser(ctx context.Context, reg Registration) (Result, error)
	Login(ctx context.Context, uid, password string) (LoginResult, error)
	GetUserByID(ctx context.Context, uid string) (UserResult, error)
	UpdateUser(ctx context.Context, uid, name, phone string) (Result, error)

	GetAllBooks(ctx context.Context) ([]entities.Book, error)
	SearchBooks(ctx context.Context, field books.SearchField, query string) ([]entities.Book, error)
	GetBookByID(ctx context.Context, bookID string) (BookResult, error)
	AddBook(ctx context.Context, input BookInput) (Result, error)
	UpdateBook(ctx context.Context, bookID string, input BookInput) (Result, error)
	DeleteBook(ctx context.Context, bookID string) (Result, error)

	BorrowBook(ctx context.Context, borrowerID, bookID string, date time.Time) (BorrowResult, error)
	ReturnBook(ctx context.Context, recordID uint, date time.Time) (ReturnResult, error)
}
