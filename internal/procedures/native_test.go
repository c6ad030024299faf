package procedures

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/libdesk/libdesk/internal/database"
	"github.com/libdesk/libdesk/internal/database/books"
	"github.com/libdesk/libdesk/internal/entities"
)

var testNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func setupNative(t *testing.T) (*Native, *gorm.DB) {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "procedures.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	n := NewNative(db.DB, DefaultLoanPolicy(), bcrypt.MinCost).WithClock(func() time.Time { return testNow })
	return n, db.DB
}

func register(t *testing.T, n *Native, uid string, identity entities.IdentityType) {
	t.Helper()
	res, err := n.RegisterUser(context.Background(), Registration{
		UID: uid, Name: "User " + uid, Password: "secret-" + uid, IdentityType: identity,
	})
	require.NoError(t, err)
	require.True(t, res.OK(), res.Message)
}

func addBook(t *testing.T, n *Native, id string, stock int) {
	t.Helper()
	res, err := n.AddBook(context.Background(), BookInput{BookID: id, Title: "Title " + id, TotalStock: stock})
	require.NoError(t, err)
	require.True(t, res.OK(), res.Message)
}

func loadBook(t *testing.T, db *gorm.DB, id string) entities.Book {
	t.Helper()
	var book entities.Book
	require.NoError(t, db.Where("book_id = ?", id).First(&book).Error)
	return book
}

func loadBorrower(t *testing.T, db *gorm.DB, uid string) entities.Borrower {
	t.Helper()
	var b entities.Borrower
	require.NoError(t, db.Where("uid = ?", uid).First(&b).Error)
	return b
}

func TestNative_RegisterUser(t *testing.T) {
	n, db := setupNative(t)
	ctx := context.Background()

	res, err := n.RegisterUser(ctx, Registration{
		UID: "s1", Name: "Ada", Phone: "555", IdentityType: entities.IdentityStudent,
		StudentID: "S-1", Password: "pw",
	})
	require.NoError(t, err)
	assert.Equal(t, CodeOK, res.Code)
	assert.Equal(t, MsgRegistered, res.Message)

	var auth entities.UserAuth
	require.NoError(t, db.Where("user_id = ?", "s1").First(&auth).Error)
	assert.NotEqual(t, "pw", auth.PasswordHash)
	assert.False(t, auth.IsAdmin)

	borrower := loadBorrower(t, db, "s1")
	assert.Equal(t, testNow.Unix(), borrower.RegistrationDate.Unix())
	require.NotNil(t, borrower.StudentID)
	assert.Nil(t, borrower.EmployeeID)

	tests := []struct {
		name string
		reg  Registration
		kind Kind
	}{
		{"duplicate uid", Registration{UID: "s1", Name: "Other", Password: "x", IdentityType: entities.IdentityStudent}, KindConflict},
		{"missing password", Registration{UID: "s2", Name: "Bob", IdentityType: entities.IdentityStudent}, KindValidation},
		{"missing name", Registration{UID: "s2", Password: "x", IdentityType: entities.IdentityStudent}, KindValidation},
		{"admin type", Registration{UID: "s2", Name: "Bob", Password: "x", IdentityType: entities.IdentityAdmin}, KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := n.RegisterUser(ctx, tt.reg)
			require.NoError(t, err)
			assert.Equal(t, CodeDomainError, res.Code)
			assert.Equal(t, tt.kind, res.Kind)
		})
	}
}

func TestNative_Login(t *testing.T) {
	n, db := setupNative(t)
	ctx := context.Background()
	register(t, n, "t1", entities.IdentityStaff)

	t.Run("success records a login", func(t *testing.T) {
		res, err := n.Login(ctx, "t1", "secret-t1")
		require.NoError(t, err)
		require.True(t, res.OK())
		assert.Equal(t, "User t1", res.Name)
		assert.Equal(t, entities.IdentityStaff, res.IdentityType)
		assert.Equal(t, "staff", res.TypeName)
		assert.Equal(t, entities.BorrowingActive, res.BorrowingStatus)

		var logs int64
		require.NoError(t, db.Model(&entities.LoginLog{}).Where("user_id = ?", "t1").Count(&logs).Error)
		assert.Equal(t, int64(1), logs)
	})

	t.Run("wrong password and unknown uid look the same", func(t *testing.T) {
		wrong, err := n.Login(ctx, "t1", "nope")
		require.NoError(t, err)
		unknown, err := n.Login(ctx, "ghost", "nope")
		require.NoError(t, err)

		assert.Equal(t, CodeDomainError, wrong.Code)
		assert.Equal(t, KindUnauthorized, wrong.Kind)
		assert.Equal(t, wrong.Message, unknown.Message)
	})

	t.Run("empty input", func(t *testing.T) {
		res, err := n.Login(ctx, "", "")
		require.NoError(t, err)
		assert.False(t, res.OK())
	})
}

func TestNative_Users(t *testing.T) {
	n, _ := setupNative(t)
	ctx := context.Background()
	register(t, n, "u1", entities.IdentityStudent)

	user, err := n.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	require.True(t, user.OK())
	assert.Equal(t, "student", user.Profile.TypeName)

	missing, err := n.GetUserByID(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, KindNotFound, missing.Kind)

	res, err := n.UpdateUser(ctx, "u1", "Renamed", "123")
	require.NoError(t, err)
	assert.True(t, res.OK())

	res, err = n.UpdateUser(ctx, "ghost", "x", "")
	require.NoError(t, err)
	assert.Equal(t, KindNotFound, res.Kind)

	res, err = n.UpdateUser(ctx, "u1", "  ", "")
	require.NoError(t, err)
	assert.Equal(t, KindValidation, res.Kind)
}

func TestNative_Books(t *testing.T) {
	n, db := setupNative(t)
	ctx := context.Background()

	res, err := n.AddBook(ctx, BookInput{
		BookID: "B1", Title: "The Hobbit", ISBN: "978-0", PublisherName: "Allen & Unwin",
		Authors: []string{"J.R.R. Tolkien"}, PublicationYear: 1937, TotalStock: 2, Location: "A1",
	})
	require.NoError(t, err)
	require.True(t, res.OK(), res.Message)

	t.Run("stock starts full with relations", func(t *testing.T) {
		got, err := n.GetBookByID(ctx, "B1")
		require.NoError(t, err)
		require.True(t, got.OK())
		assert.Equal(t, 2, got.Book.CurrentStock)
		require.NotNil(t, got.Book.Publisher)
		assert.Equal(t, "Allen & Unwin", got.Book.Publisher.Name)
		require.Len(t, got.Book.Authors, 1)
	})

	t.Run("duplicates and bad input are rejected", func(t *testing.T) {
		for _, input := range []BookInput{
			{BookID: "B1", Title: "Again"},
			{BookID: "B9", Title: "Same isbn", ISBN: "978-0"},
		} {
			res, err := n.AddBook(ctx, input)
			require.NoError(t, err)
			assert.Equal(t, KindConflict, res.Kind)
		}

		res, err := n.AddBook(ctx, BookInput{BookID: "B9"})
		require.NoError(t, err)
		assert.Equal(t, KindValidation, res.Kind)

		res, err = n.AddBook(ctx, BookInput{BookID: "B9", Title: "Neg", TotalStock: -1})
		require.NoError(t, err)
		assert.Equal(t, KindValidation, res.Kind)

		missing := uint(404)
		res, err = n.AddBook(ctx, BookInput{BookID: "B9", Title: "Pub", PublisherID: &missing})
		require.NoError(t, err)
		assert.Equal(t, KindValidation, res.Kind)
	})

	t.Run("search by author", func(t *testing.T) {
		found, err := n.SearchBooks(ctx, books.FieldAuthor, "tolkien")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "B1", found[0].BookID)

		all, err := n.GetAllBooks(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("update validates stock", func(t *testing.T) {
		three := 3
		res, err := n.UpdateBook(ctx, "B1", BookInput{Title: "The Hobbit", TotalStock: 2, CurrentStock: &three})
		require.NoError(t, err)
		assert.Equal(t, KindValidation, res.Kind)

		res, err = n.UpdateBook(ctx, "nope", BookInput{Title: "x"})
		require.NoError(t, err)
		assert.Equal(t, KindNotFound, res.Kind)

		res, err = n.UpdateBook(ctx, "B1", BookInput{Title: "The Hobbit", TotalStock: 4, Authors: []string{"Tolkien", "Editor"}})
		require.NoError(t, err)
		require.True(t, res.OK(), res.Message)

		book := loadBook(t, db, "B1")
		assert.Equal(t, 4, book.TotalStock)
		assert.Equal(t, 4, book.CurrentStock)
		assert.Nil(t, book.PublisherID, "update replaces the publisher")
	})

	t.Run("delete", func(t *testing.T) {
		res, err := n.DeleteBook(ctx, "B1")
		require.NoError(t, err)
		assert.True(t, res.OK())

		res, err = n.DeleteBook(ctx, "B1")
		require.NoError(t, err)
		assert.Equal(t, KindNotFound, res.Kind)

		var links int64
		require.NoError(t, db.Table("book_authors").Where("book_id = ?", "B1").Count(&links).Error)
		assert.Zero(t, links)
	})
}

func TestNative_BorrowAndReturn(t *testing.T) {
	n, db := setupNative(t)
	ctx := context.Background()
	register(t, n, "u1", entities.IdentityStudent)
	addBook(t, n, "B1", 1)

	borrowed, err := n.BorrowBook(ctx, "u1", "B1", testNow)
	require.NoError(t, err)
	require.True(t, borrowed.OK(), borrowed.Message)
	assert.NotZero(t, borrowed.RecordID)

	assert.Equal(t, 0, loadBook(t, db, "B1").CurrentStock)
	assert.Equal(t, 1, loadBorrower(t, db, "u1").BorrowedCount)

	var record entities.BorrowingRecord
	require.NoError(t, db.First(&record, borrowed.RecordID).Error)
	assert.True(t, record.IsOutstanding())

	t.Run("no stock left", func(t *testing.T) {
		register(t, n, "u2", entities.IdentityStudent)
		res, err := n.BorrowBook(ctx, "u2", "B1", testNow)
		require.NoError(t, err)
		assert.Equal(t, CodeDomainError, res.Code)
		assert.Equal(t, MsgNoCopies, res.Message)
		assert.Zero(t, res.RecordID)
	})

	t.Run("on time return has no fine", func(t *testing.T) {
		res, err := n.ReturnBook(ctx, borrowed.RecordID, testNow.AddDate(0, 0, 10))
		require.NoError(t, err)
		require.True(t, res.OK(), res.Message)
		assert.Zero(t, res.OverdueDays)
		assert.Nil(t, res.FineRecordID)

		assert.Equal(t, 1, loadBook(t, db, "B1").CurrentStock)
		assert.Equal(t, 0, loadBorrower(t, db, "u1").BorrowedCount)
	})

	t.Run("second return is rejected", func(t *testing.T) {
		res, err := n.ReturnBook(ctx, borrowed.RecordID, testNow.AddDate(0, 0, 11))
		require.NoError(t, err)
		assert.Equal(t, KindConflict, res.Kind)
		assert.Equal(t, 1, loadBook(t, db, "B1").CurrentStock, "stock is not restored twice")
	})

	t.Run("unknown record", func(t *testing.T) {
		res, err := n.ReturnBook(ctx, 9999, testNow)
		require.NoError(t, err)
		assert.Equal(t, KindNotFound, res.Kind)
	})
}

func TestNative_LateReturnRaisesOneFine(t *testing.T) {
	n, db := setupNative(t)
	ctx := context.Background()
	register(t, n, "u1", entities.IdentityStudent)
	addBook(t, n, "B1", 2)

	borrowed, err := n.BorrowBook(ctx, "u1", "B1", testNow)
	require.NoError(t, err)
	require.True(t, borrowed.OK())

	res, err := n.ReturnBook(ctx, borrowed.RecordID, testNow.AddDate(0, 0, 35))
	require.NoError(t, err)
	require.True(t, res.OK(), res.Message)
	assert.Equal(t, 5, res.OverdueDays)
	assert.Equal(t, 2.5, res.FineAmount)
	require.NotNil(t, res.FineRecordID)

	var fines []entities.FineRecord
	require.NoError(t, db.Where("borrower_id = ?", "u1").Find(&fines).Error)
	require.Len(t, fines, 1)
	assert.Equal(t, *res.FineRecordID, fines[0].FineID)
	assert.Equal(t, entities.PaymentUnpaid, fines[0].PaymentStatus)
	assert.Equal(t, borrowed.RecordID, fines[0].RecordID)
	assert.Equal(t, 2, loadBook(t, db, "B1").CurrentStock)
}

func TestNative_BorrowRules(t *testing.T) {
	n, db := setupNative(t)
	ctx := context.Background()
	n.policy.MaxLoansStudent = 1
	register(t, n, "u1", entities.IdentityStudent)
	addBook(t, n, "B1", 5)
	addBook(t, n, "B2", 5)

	first, err := n.BorrowBook(ctx, "u1", "B1", testNow)
	require.NoError(t, err)
	require.True(t, first.OK())

	tests := []struct {
		name     string
		borrower string
		book     string
		message  string
	}{
		{"loan limit", "u1", "B2", MsgLoanLimit},
		{"unknown borrower", "ghost", "B1", MsgBorrowerNotFound},
		{"unknown book", "u1", "B404", MsgBookNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := n.BorrowBook(ctx, tt.borrower, tt.book, testNow)
			require.NoError(t, err)
			assert.Equal(t, CodeDomainError, res.Code)
			assert.Equal(t, tt.message, res.Message)
		})
	}

	t.Run("same book twice", func(t *testing.T) {
		n.policy.MaxLoansStudent = 5
		res, err := n.BorrowBook(ctx, "u1", "B1", testNow)
		require.NoError(t, err)
		assert.Equal(t, MsgAlreadyBorrowed, res.Message)
	})

	t.Run("suspended borrower", func(t *testing.T) {
		require.NoError(t, db.Model(&entities.Borrower{}).Where("uid = ?", "u1").
			Update("borrowing_status", entities.BorrowingSuspended).Error)
		res, err := n.BorrowBook(ctx, "u1", "B2", testNow)
		require.NoError(t, err)
		assert.Equal(t, MsgBorrowerSuspended, res.Message)
	})

	t.Run("rejections leave stock untouched", func(t *testing.T) {
		assert.Equal(t, 4, loadBook(t, db, "B1").CurrentStock)
		assert.Equal(t, 5, loadBook(t, db, "B2").CurrentStock)
	})

	t.Run("book with loans cannot be deleted or shrunk", func(t *testing.T) {
		res, err := n.DeleteBook(ctx, "B1")
		require.NoError(t, err)
		assert.Equal(t, KindConflict, res.Kind)

		res, err = n.UpdateBook(ctx, "B1", BookInput{Title: "Title B1", TotalStock: 0})
		require.NoError(t, err)
		assert.Equal(t, MsgStockBelowLoans, res.Message)
	})
}
