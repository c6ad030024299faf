package borrowers

import (
	"context"
	"errors"
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
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "borrowers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db.DB), db.DB
}

func seedBorrower(t *testing.T, db *gorm.DB, uid string, identity entities.IdentityType, employeeID *string) {
	t.Helper()
	require.NoError(t, db.Create(&entities.Borrower{
		UID:              uid,
		Name:             "Borrower " + uid,
		IdentityType:     identity,
		EmployeeID:       employeeID,
		RegistrationDate: time.Now(),
		BorrowingStatus:  entities.BorrowingActive,
	}).Error)
	require.NoError(t, db.Create(&entities.UserAuth{
		UserID:       uid,
		PasswordHash: "hash",
		IsAdmin:      identity.IsAdmin(),
	}).Error)
}

func TestRepository_GetProfile(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()
	seedBorrower(t, db, "u1", entities.IdentityStudent, nil)
	seedBorrower(t, db, "a1", entities.IdentityAdmin, nil)

	t.Run("joins type name and admin flag", func(t *testing.T) {
		profile, err := repo.GetProfile(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, "a1", profile.UID)
		assert.Equal(t, "admin", profile.TypeName)
		assert.True(t, profile.IsAdmin)
	})

	t.Run("unknown uid", func(t *testing.T) {
		_, err := repo.GetProfile(ctx, "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("lists every borrower", func(t *testing.T) {
		profiles, err := repo.ListProfiles(ctx)
		require.NoError(t, err)
		assert.Len(t, profiles, 2)
	})
}

func TestRepository_UpdateContact(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()
	seedBorrower(t, db, "u1", entities.IdentityStudent, nil)

	require.NoError(t, repo.UpdateContact(ctx, "u1", "Renamed", "555-0100"))
	borrower, err := repo.GetByUID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", borrower.Name)
	assert.Equal(t, "555-0100", borrower.Phone)

	assert.ErrorIs(t, repo.UpdateContact(ctx, "ghost", "x", ""), ErrNotFound)
	assert.ErrorIs(t, repo.UpdateContact(ctx, "u1", "", ""), ErrInvalidProfile)
}

func TestRepository_SetStatus(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()
	seedBorrower(t, db, "u1", entities.IdentityStudent, nil)

	require.NoError(t, repo.SetStatus(ctx, "u1", entities.BorrowingSuspended))
	borrower, err := repo.GetByUID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, entities.BorrowingSuspended, borrower.BorrowingStatus)

	require.NoError(t, repo.SetStatus(ctx, "u1", entities.BorrowingActive))
	require.NoError(t, repo.SetStatus(ctx, "u1", entities.BorrowingActive))

	assert.ErrorIs(t, repo.SetStatus(ctx, "ghost", entities.BorrowingActive), ErrNotFound)
	assert.ErrorIs(t, repo.SetStatus(ctx, "u1", "frozen"), ErrUnknownStatus)
}

func TestRepository_PromoteDemote(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()
	employeeID := "E-7"
	seedBorrower(t, db, "staff", entities.IdentityStaff, &employeeID)
	seedBorrower(t, db, "student", entities.IdentityStudent, nil)
	seedBorrower(t, db, "root", entities.IdentitySuperAdmin, nil)

	t.Run("promote then demote restores staff", func(t *testing.T) {
		require.NoError(t, repo.Promote(ctx, "staff"))
		profile, err := repo.GetProfile(ctx, "staff")
		require.NoError(t, err)
		assert.Equal(t, entities.IdentitySeniorAdmin, profile.IdentityType)
		assert.True(t, profile.IsAdmin)

		require.NoError(t, repo.Demote(ctx, "staff"))
		profile, err = repo.GetProfile(ctx, "staff")
		require.NoError(t, err)
		assert.Equal(t, entities.IdentityStaff, profile.IdentityType)
		assert.False(t, profile.IsAdmin)
	})

	t.Run("demote without employee id lands on student", func(t *testing.T) {
		require.NoError(t, repo.Promote(ctx, "student"))
		require.NoError(t, repo.Demote(ctx, "student"))
		borrower, err := repo.GetByUID(ctx, "student")
		require.NoError(t, err)
		assert.Equal(t, entities.IdentityStudent, borrower.IdentityType)
	})

	t.Run("rejected transitions", func(t *testing.T) {
		assert.ErrorIs(t, repo.Promote(ctx, "root"), ErrAlreadyAdmin)
		assert.ErrorIs(t, repo.Demote(ctx, "root"), ErrSuperAdmin)
		assert.ErrorIs(t, repo.Demote(ctx, "student"), ErrNotAdmin)
		assert.ErrorIs(t, repo.Promote(ctx, "ghost"), ErrNotFound)
		assert.ErrorIs(t, repo.Demote(ctx, "ghost"), ErrNotFound)
	})
}

func seedHistory(t *testing.T, db *gorm.DB, uid string) {
	t.Helper()
	record := entities.BorrowingRecord{BookID: "B1", BorrowerID: uid, BorrowDate: time.Now()}
	require.NoError(t, db.Create(&record).Error)
	require.NoError(t, db.Create(&entities.FineRecord{
		RecordID: record.RecordID, BookID: "B1", BorrowerID: uid, Amount: 1.5,
		PaymentStatus: entities.PaymentUnpaid,
	}).Error)
	require.NoError(t, db.Create(&entities.LoginLog{UserID: uid, LoginTime: time.Now()}).Error)
}

func countFor(t *testing.T, db *gorm.DB, model any, column, uid string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Where(column+" = ?", uid).Count(&n).Error)
	return n
}

func TestRepository_DeleteCascade(t *testing.T) {
	t.Run("removes borrower and dependents", func(t *testing.T) {
		repo, db := setupTestDB(t)
		ctx := context.Background()
		seedBorrower(t, db, "u1", entities.IdentityStudent, nil)
		seedBorrower(t, db, "u2", entities.IdentityStudent, nil)
		seedHistory(t, db, "u1")
		seedHistory(t, db, "u2")

		require.NoError(t, repo.DeleteCascade(ctx, "u1"))

		assert.Zero(t, countFor(t, db, &entities.Borrower{}, "uid", "u1"))
		assert.Zero(t, countFor(t, db, &entities.UserAuth{}, "user_id", "u1"))
		assert.Zero(t, countFor(t, db, &entities.BorrowingRecord{}, "borrower_id", "u1"))
		assert.Zero(t, countFor(t, db, &entities.FineRecord{}, "borrower_id", "u1"))
		assert.Zero(t, countFor(t, db, &entities.LoginLog{}, "user_id", "u1"))

		assert.Equal(t, int64(1), countFor(t, db, &entities.Borrower{}, "uid", "u2"))
		assert.Equal(t, int64(1), countFor(t, db, &entities.LoginLog{}, "user_id", "u2"))
	})

	t.Run("unknown borrower", func(t *testing.T) {
		repo, _ := setupTestDB(t)
		assert.ErrorIs(t, repo.DeleteCascade(context.Background(), "ghost"), ErrNotFound)
	})

	t.Run("failure in a late step rolls back earlier deletes", func(t *testing.T) {
		repo, db := setupTestDB(t)
		ctx := context.Background()
		seedBorrower(t, db, "u1", entities.IdentityStudent, nil)
		seedHistory(t, db, "u1")

		injected := errors.New("login log delete failed")
		require.NoError(t, db.Callback().Delete().Before("gorm:delete").Register("test:fail_login_logs", func(tx *gorm.DB) {
			if tx.Statement.Table == "login_logs" {
				_ = tx.AddError(injected)
			}
		}))

		err := repo.DeleteCascade(ctx, "u1")
		require.Error(t, err)
		assert.ErrorIs(t, err, injected)

		assert.Equal(t, int64(1), countFor(t, db, &entities.Borrower{}, "uid", "u1"))
		assert.Equal(t, int64(1), countFor(t, db, &entities.UserAuth{}, "user_id", "u1"))
		assert.Equal(t, int64(1), countFor(t, db, &entities.BorrowingRecord{}, "borrower_id", "u1"))
		assert.Equal(t, int64(1), countFor(t, db, &entities.FineRecord{}, "borrower_id", "u1"))
	})
}

func TestRepository_CreateAndCredentials(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	borrower := &entities.Borrower{
		UID: "root", Name: "Root", IdentityType: entities.IdentitySuperAdmin,
		RegistrationDate: time.Now(), BorrowingStatus: entities.BorrowingActive,
	}
	require.NoError(t, repo.Create(ctx, borrower, "hash"))

	exists, err := repo.Exists(ctx, "root")
	require.NoError(t, err)
	assert.True(t, exists)

	creds, err := repo.GetCredentials(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, "hash", creds.PasswordHash)
	assert.True(t, creds.IsAdmin)

	_, err = repo.GetCredentials(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, repo.Create(ctx, borrower, "hash"), "duplicate uid must fail")
}
