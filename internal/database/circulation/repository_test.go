package circulation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/libdesk/libdesk/internal/database"
	"github.com/libdesk/libdesk/internal/entities"
)

func setupTestDB(t *testing.T) (*Repository, *gorm.DB) {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "circulation.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.DB.Create(&entities.Borrower{
		UID: "u1", Name: "Ada", IdentityType: entities.IdentityStudent,
		RegistrationDate: time.Now(), BorrowingStatus: entities.BorrowingActive,
	}).Error)
	require.NoError(t, db.DB.Create(&entities.Borrower{
		UID: "u2", Name: "Grace", IdentityType: entities.IdentityStaff,
		RegistrationDate: time.Now(), BorrowingStatus: entities.BorrowingActive,
	}).Error)
	require.NoError(t, db.DB.Create(&entities.Book{BookID: "B1", Title: "Dune", TotalStock: 3, CurrentStock: 3}).Error)
	require.NoError(t, db.DB.Create(&entities.Book{BookID: "B2", Title: "Emma", TotalStock: 3, CurrentStock: 3}).Error)

	return NewRepository(db.DB), db.DB
}

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestRepository_Records(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()

	returned := day(10)
	require.NoError(t, db.Create(&entities.BorrowingRecord{BookID: "B1", BorrowerID: "u1", BorrowDate: day(0), ReturnDate: &returned}).Error)
	require.NoError(t, db.Create(&entities.BorrowingRecord{BookID: "B2", BorrowerID: "u1", BorrowDate: day(5)}).Error)
	require.NoError(t, db.Create(&entities.BorrowingRecord{BookID: "B1", BorrowerID: "u2", BorrowDate: day(40)}).Error)

	t.Run("current holds only outstanding loans", func(t *testing.T) {
		records, err := repo.CurrentRecords(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "B2", records[0].BookID)
		assert.Equal(t, "Emma", records[0].BookTitle)
		assert.True(t, records[0].IsOutstanding())
	})

	t.Run("history includes returned loans", func(t *testing.T) {
		records, err := repo.RecordsForBorrower(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "B2", records[0].BookID)
		assert.False(t, records[1].IsOutstanding())
	})

	t.Run("admin listing joins borrower", func(t *testing.T) {
		records, err := repo.ListRecords(ctx)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "Grace", records[0].BorrowerName)
		assert.Equal(t, entities.IdentityStaff, records[0].IdentityType)
	})

	t.Run("overdue loans are outstanding and older than cutoff", func(t *testing.T) {
		records, err := repo.OverdueLoans(ctx, day(30))
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "u1", records[0].BorrowerID)
	})

	t.Run("get record", func(t *testing.T) {
		records, err := repo.ListRecords(ctx)
		require.NoError(t, err)
		record, err := repo.GetRecord(ctx, records[0].RecordID)
		require.NoError(t, err)
		assert.Equal(t, "u2", record.BorrowerID)

		_, err = repo.GetRecord(ctx, 9999)
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})
}

func TestRepository_PayFine(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()

	fine := entities.FineRecord{BookID: "B1", BorrowerID: "u1", OverdueDays: 4, Amount: 2, PaymentStatus: entities.PaymentUnpaid}
	require.NoError(t, db.Create(&fine).Error)

	t.Run("other borrower cannot pay it", func(t *testing.T) {
		assert.ErrorIs(t, repo.PayFine(ctx, "u2", fine.FineID, day(1)), ErrFineNotFound)
	})

	t.Run("owner pays once", func(t *testing.T) {
		require.NoError(t, repo.PayFine(ctx, "u1", fine.FineID, day(1)))

		var stored entities.FineRecord
		require.NoError(t, db.First(&stored, fine.FineID).Error)
		assert.Equal(t, entities.PaymentPaid, stored.PaymentStatus)
		require.NotNil(t, stored.PaidAt)
	})

	t.Run("paid is terminal", func(t *testing.T) {
		assert.ErrorIs(t, repo.PayFine(ctx, "u1", fine.FineID, day(2)), ErrFineAlreadyPaid)
	})

	t.Run("unknown fine", func(t *testing.T) {
		assert.ErrorIs(t, repo.PayFine(ctx, "u1", 9999, day(2)), ErrFineNotFound)
	})
}

func TestRepository_PayAllFines(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()

	for _, amount := range []float64{1, 2.5} {
		require.NoError(t, db.Create(&entities.FineRecord{BookID: "B1", BorrowerID: "u1", Amount: amount, PaymentStatus: entities.PaymentUnpaid}).Error)
	}
	require.NoError(t, db.Create(&entities.FineRecord{BookID: "B2", BorrowerID: "u2", Amount: 3, PaymentStatus: entities.PaymentUnpaid}).Error)

	paid, err := repo.PayAllFines(ctx, "u1", day(1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), paid)

	_, err = repo.PayAllFines(ctx, "u1", day(2))
	assert.ErrorIs(t, err, ErrNoUnpaidFines)

	fines, err := repo.FinesForBorrower(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, fines, 1)
	assert.Equal(t, entities.PaymentUnpaid, fines[0].PaymentStatus)
	assert.Equal(t, "Emma", fines[0].BookTitle)

	all, err := repo.ListFines(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRepository_ListLoginLogs(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&entities.LoginLog{UserID: "u1", LoginTime: day(0)}).Error)
	require.NoError(t, db.Create(&entities.LoginLog{UserID: "u2", LoginTime: day(1)}).Error)
	require.NoError(t, db.Create(&entities.LoginLog{UserID: "u1", LoginTime: day(2)}).Error)

	logs, err := repo.ListLoginLogs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "Ada", logs[0].UserName)
	assert.Equal(t, "Grace", logs[1].UserName)
}
