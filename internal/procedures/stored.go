package procedures

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/libdesk/libdesk/internal/database/books"
	"github.com/libdesk/libdesk/internal/database/borrowers"
	"github.com/libdesk/libdesk/internal/entities"
)

// Stored implements Procedures by calling the library's MySQL stored procedures.
// Catalogue reads go straight to the books repository.
//
// Session variables are scoped to a connection, so each CALL and the SELECT that
// reads its OUT variables share one pinned connection.
type Stored struct {
	db    *gorm.DB
	books *books.Repository
	users *borrowers.Repository
}

var _ Procedures = (*Stored)(nil)

func NewStored(db *gorm.DB) *Stored {
	return &Stored{
		db:    db,
		books: books.NewRepository(db),
		users: borrowers.NewRepository(db),
	}
}

// outVars is the (code, message) pair every procedure leaves behind.
type outVars struct {
	Code    sql.NullInt64
	Message sql.NullString
}

func (o outVars) result(kind Kind) Result {
	code := int(o.Code.Int64)
	if !o.Code.Valid {
		code = CodeFailure
	}
	switch code {
	case CodeOK:
		return ok(o.Message.String)
	case CodeDomainError:
		return reject(kind, o.Message.String)
	default:
		msg := o.Message.String
		if msg == "" {
			msg = "procedure failed"
		}
		return Result{Code: CodeFailure, Message: msg}
	}
}

// callStatement builds "CALL name(?, ?, @result_code, @result_message, @extra...)".
func callStatement(name string, inputs int, extra ...string) string {
	args := make([]string, 0, inputs+2+len(extra))
	for i := 0; i < inputs; i++ {
		args = append(args, "?")
	}
	args = append(args, "@result_code", "@result_message")
	for _, e := range extra {
		args = append(args, "@"+e)
	}
	return fmt.Sprintf("CALL %s(%s)", name, strings.Join(args, ", "))
}

// selectStatement reads the standard OUT variables plus any extra ones, each
// aliased to its own name.
func selectStatement(extra ...string) string {
	cols := []string{"@result_code AS code", "@result_message AS message"}
	for _, e := range extra {
		cols = append(cols, fmt.Sprintf("@%s AS %s", e, e))
	}
	return "SELECT " + strings.Join(cols, ", ")
}

// call runs one procedure and scans its OUT variables into dest.
func (s *Stored) call(ctx context.Context, name string, args []any, dest any, extra ...string) error {
	return s.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := conn.Exec(callStatement(name, len(args), extra...), args...).Error; err != nil {
			return fmt.Errorf("failed to call %s: %w", name, err)
		}
		if err := conn.Raw(selectStatement(extra...)).Scan(dest).Error; err != nil {
			return fmt.Errorf("failed to read %s results: %w", name, err)
		}
		return nil
	})
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func (s *Stored) RegisterUser(ctx context.Context, reg Registration) (Result, error) {
	var out outVars
	err := s.call(ctx, "userRegister", []any{
		reg.UID, reg.Name, reg.Phone, int(reg.IdentityType),
		nullable(reg.StudentID), nullable(reg.EmployeeID),
		reg.Password, time.Now(),
	}, &out)
	if err != nil {
		return Result{}, err
	}
	return out.result(KindValidation), nil
}

// loginVars are the OUT variables of userLogin. user_type carries the type
// name, not its id.
type loginVars struct {
	Code            sql.NullInt64
	Message         sql.NullString
	UserName        sql.NullString `gorm:"column:user_name"`
	UserType        sql.NullString `gorm:"column:user_type"`
	BorrowingStatus sql.NullString `gorm:"column:borrowing_status"`
}

func (v loginVars) login() LoginResult {
	result := outVars{v.Code, v.Message}.result(KindUnauthorized)
	if !result.OK() {
		return LoginResult{Result: result}
	}
	return LoginResult{
		Result:          result,
		Name:            v.UserName.String,
		TypeName:        v.UserType.String,
		BorrowingStatus: entities.BorrowingStatus(v.BorrowingStatus.String),
	}
}

func (s *Stored) Login(ctx context.Context, uid, password string) (LoginResult, error) {
	var out loginVars
	err := s.call(ctx, "userLogin", []any{uid, password}, &out, "user_name", "user_type", "borrowing_status")
	if err != nil {
		return LoginResult{}, err
	}

	login := out.login()
	if !login.OK() {
		return login, nil
	}
	// The identity type id comes from the borrower row.
	profile, err := s.users.GetProfile(ctx, uid)
	if errors.Is(err, borrowers.ErrNotFound) {
		return LoginResult{Result: reject(KindUnauthorized, MsgBadCredentials)}, nil
	}
	if err != nil {
		return LoginResult{}, err
	}
	login.IdentityType = profile.IdentityType
	if login.TypeName == "" {
		login.TypeName = profile.TypeName
	}
	return login, nil
}

func (s *Stored) GetUserByID(ctx context.Context, uid string) (UserResult, error) {
	var out outVars
	if err := s.call(ctx, "getUserById", []any{uid}, &out); err != nil {
		return UserResult{}, err
	}
	result := out.result(KindNotFound)
	if !result.OK() {
		return UserResult{Result: result}, nil
	}

	profile, err := s.users.GetProfile(ctx, uid)
	if errors.Is(err, borrowers.ErrNotFound) {
		return UserResult{Result: reject(KindNotFound, MsgUserNotFound)}, nil
	}
	if err != nil {
		return UserResult{}, err
	}
	return UserResult{Result: result, Profile: profile}, nil
}

func (s *Stored) UpdateUser(ctx context.Context, uid, name, phone string) (Result, error) {
	var out outVars
	if err := s.call(ctx, "updateUser", []any{uid, name, phone}, &out); err != nil {
		return Result{}, err
	}
	return out.result(KindNotFound), nil
}

func (s *Stored) GetAllBooks(ctx context.Context) ([]entities.Book, error) {
	return s.books.List(ctx)
}

func (s *Stored) SearchBooks(ctx context.Context, field books.SearchField, query string) ([]entities.Book, error) {
	return s.books.Search(ctx, field, query)
}

func (s *Stored) GetBookByID(ctx context.Context, bookID string) (BookResult, error) {
	var out outVars
	if err := s.call(ctx, "getBookById", []any{bookID}, &out); err != nil {
		return BookResult{}, err
	}
	result := out.result(KindNotFound)
	if !result.OK() {
		return BookResult{Result: result}, nil
	}

	book, err := s.books.GetByID(ctx, bookID)
	if errors.Is(err, books.ErrNotFound) {
		return BookResult{Result: reject(KindNotFound, MsgBookNotFound)}, nil
	}
	if err != nil {
		return BookResult{}, err
	}
	return BookResult{Result: result, Book: book}, nil
}

func (s *Stored) publisherFor(ctx context.Context, input BookInput) (*uint, error) {
	if input.PublisherID != nil {
		return input.PublisherID, nil
	}
	return s.books.EnsurePublisher(ctx, input.PublisherName)
}

// attachAuthors links authors after a successful add or update. The procedures
// only know about the books table.
func (s *Stored) attachAuthors(ctx context.Context, bookID string, names []string) error {
	if names == nil {
		return nil
	}
	authors, err := s.books.EnsureAuthors(ctx, names)
	if err != nil {
		return err
	}
	return s.books.ReplaceAuthors(ctx, &entities.Book{BookID: bookID}, authors)
}

func (s *Stored) AddBook(ctx context.Context, input BookInput) (Result, error) {
	publisherID, err := s.publisherFor(ctx, input)
	if err != nil {
		return Result{}, err
	}

	var out outVars
	err = s.call(ctx, "addBook", []any{
		input.BookID, input.Title, input.ISBN, publisherID,
		input.PublicationYear, input.TotalStock, input.Location,
	}, &out)
	if err != nil {
		return Result{}, err
	}

	result := out.result(KindValidation)
	if result.OK() && len(input.Authors) > 0 {
		if err := s.attachAuthors(ctx, input.BookID, input.Authors); err != nil {
			return Result{}, fmt.Errorf("failed to attach authors: %w", err)
		}
	}
	return result, nil
}

func (s *Stored) UpdateBook(ctx context.Context, bookID string, input BookInput) (Result, error) {
	publisherID, err := s.publisherFor(ctx, input)
	if err != nil {
		return Result{}, err
	}

	current := input.TotalStock
	if input.CurrentStock != nil {
		current = *input.CurrentStock
	}

	var out outVars
	err = s.call(ctx, "updateBook", []any{
		bookID, input.Title, input.ISBN, publisherID,
		input.PublicationYear, input.TotalStock, current, input.Location,
	}, &out)
	if err != nil {
		return Result{}, err
	}

	result := out.result(KindNotFound)
	if result.OK() {
		if err := s.attachAuthors(ctx, bookID, input.Authors); err != nil {
			return Result{}, fmt.Errorf("failed to replace authors: %w", err)
		}
	}
	return result, nil
}

func (s *Stored) DeleteBook(ctx context.Context, bookID string) (Result, error) {
	var out outVars
	if err := s.call(ctx, "deleteBook", []any{bookID}, &out); err != nil {
		return Result{}, err
	}
	return out.result(KindNotFound), nil
}

func (s *Stored) BorrowBook(ctx context.Context, borrowerID, bookID string, date time.Time) (BorrowResult, error) {
	var out struct {
		Code     sql.NullInt64
		Message  sql.NullString
		RecordID sql.NullInt64 `gorm:"column:record_id"`
	}
	err := s.call(ctx, "borrowBook", []any{borrowerID, bookID, date}, &out, "record_id")
	if err != nil {
		return BorrowResult{}, err
	}
	return BorrowResult{
		Result:   outVars{out.Code, out.Message}.result(KindConflict),
		RecordID: uint(out.RecordID.Int64),
	}, nil
}

// ReturnBook lets the procedure stamp the return date itself; date is ignored.
func (s *Stored) ReturnBook(ctx context.Context, recordID uint, _ time.Time) (ReturnResult, error) {
	var out struct {
		Code         sql.NullInt64
		Message      sql.NullString
		OverdueDays  sql.NullInt64   `gorm:"column:overdue_days"`
		FineAmount   sql.NullFloat64 `gorm:"column:fine_amount"`
		FineRecordID sql.NullInt64   `gorm:"column:fine_record_id"`
	}
	err := s.call(ctx, "returnBook", []any{recordID}, &out, "overdue_days", "fine_amount", "fine_record_id")
	if err != nil {
		return ReturnResult{}, err
	}

	result := ReturnResult{
		Result:      outVars{out.Code, out.Message}.result(KindConflict),
		OverdueDays: int(out.OverdueDays.Int64),
		FineAmount:  out.FineAmount.Float64,
	}
	if out.FineRecordID.Valid && out.FineRecordID.Int64 > 0 {
		id := uint(out.FineRecordID.Int64)
		result.FineRecordID = &id
	}
	return result, nil
}
