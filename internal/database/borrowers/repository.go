// Package borrowers provides database operations for borrower accounts.
//
// # Usage
//
//	repo := borrowers.NewRepository(db)
//	profile, err := repo.GetProfile(ctx, "u1001")
package borrowers

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/libdesk/libdesk/internal/entities"
)

var (
	ErrNotFound       = errors.New("borrower not found")
	ErrAlreadyAdmin   = errors.New("borrower is already an administrator")
	ErrNotAdmin       = errors.New("borrower is not an administrator")
	ErrSuperAdmin     = errors.New("super administrators cannot be demoted")
	ErrUnknownStatus  = errors.New("unknown borrowing status")
	ErrInvalidProfile = errors.New("invalid borrower profile")
)

// Repository handles borrower, credential and admin-status queries.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) profileQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("borrowers AS b").
		Select("b.*, ut.type_name AS type_name, COALESCE(ua.is_admin, ?) AS is_admin", false).
		Joins("LEFT JOIN user_types ut ON ut.type_id = b.identity_type").
		Joins("LEFT JOIN user_auth ua ON ua.user_id = b.uid")
}

// Create inserts a borrower together with its credentials. The admin flag
// follows the identity type.
func (r *Repository) Create(ctx context.Context, borrower *entities.Borrower, passwordHash string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(borrower).Error; err != nil {
			return fmt.Errorf("failed to create borrower: %w", err)
		}
		creds := &entities.UserAuth{
			UserID:       borrower.UID,
			PasswordHash: passwordHash,
			IsAdmin:      borrower.IdentityType.IsAdmin(),
		}
		if err := tx.Create(creds).Error; err != nil {
			return fmt.Errorf("failed to create credentials: %w", err)
		}
		return nil
	})
}

// Exists reports whether a borrower with the given uid is registered.
func (r *Repository) Exists(ctx context.Context, uid string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.Borrower{}).Where("uid = ?", uid).Count(&count).Error
	return count > 0, err
}

// GetCredentials returns the stored password hash and admin flag.
func (r *Repository) GetCredentials(ctx context.Context, uid string) (*entities.UserAuth, error) {
	var creds entities.UserAuth
	err := r.db.WithContext(ctx).Where("user_id = ?", uid).First(&creds).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &creds, nil
}

// GetByUID returns the bare borrower row.
func (r *Repository) GetByUID(ctx context.Context, uid string) (*entities.Borrower, error) {
	var borrower entities.Borrower
	err := r.db.WithContext(ctx).Where("uid = ?", uid).First(&borrower).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &borrower, nil
}

// GetProfile returns a borrower joined with its type name and admin flag.
func (r *Repository) GetProfile(ctx context.Context, uid string) (*entities.BorrowerProfile, error) {
	var profiles []entities.BorrowerProfile
	if err := r.profileQuery(ctx).Where("b.uid = ?", uid).Limit(1).Scan(&profiles).Error; err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, ErrNotFound
	}
	return &profiles[0], nil
}

// ListProfiles returns every borrower, newest registration first.
func (r *Repository) ListProfiles(ctx context.Context) ([]entities.BorrowerProfile, error) {
	var profiles []entities.BorrowerProfile
	err := r.profileQuery(ctx).Order("b.registration_date DESC").Scan(&profiles).Error
	return profiles, err
}

// UpdateContact changes the editable contact fields of a borrower.
func (r *Repository) UpdateContact(ctx context.Context, uid, name, phone string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProfile)
	}
	result := r.db.WithContext(ctx).Model(&entities.Borrower{}).
		Where("uid = ?", uid).
		Updates(map[string]any{"name": name, "phone": phone})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.ensureExists(ctx, uid)
	}
	return nil
}

// SetStatus activates or suspends a borrower.
func (r *Repository) SetStatus(ctx context.Context, uid string, status entities.BorrowingStatus) error {
	if status != entities.BorrowingActive && status != entities.BorrowingSuspended {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	result := r.db.WithContext(ctx).Model(&entities.Borrower{}).
		Where("uid = ?", uid).
		Update("borrowing_status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.ensureExists(ctx, uid)
	}
	return nil
}

// ensureExists tells a missing borrower apart from an update that changed nothing,
// which MySQL also reports as zero affected rows.
func (r *Repository) ensureExists(ctx context.Context, uid string) error {
	_, err := r.GetByUID(ctx, uid)
	return err
}

// Promote raises a borrower to senior administrator and sets the admin flag.
func (r *Repository) Promote(ctx context.Context, uid string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var borrower entities.Borrower
		if err := findBorrower(tx, uid, &borrower); err != nil {
			return err
		}
		if borrower.IdentityType.IsAdmin() {
			return ErrAlreadyAdmin
		}
		if err := tx.Model(&entities.Borrower{}).Where("uid = ?", uid).
			Update("identity_type", entities.IdentitySeniorAdmin).Error; err != nil {
			return err
		}
		return tx.Model(&entities.UserAuth{}).Where("user_id = ?", uid).Update("is_admin", true).Error
	})
}

// Demote drops an administrator back to staff when an employee id is on file, otherwise to student.
func (r *Repository) Demote(ctx context.Context, uid string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var borrower entities.Borrower
		if err := findBorrower(tx, uid, &borrower); err != nil {
			return err
		}
		if borrower.IdentityType.IsSuperAdmin() {
			return ErrSuperAdmin
		}
		if !borrower.IdentityType.IsAdmin() {
			return ErrNotAdmin
		}

		target := entities.IdentityStudent
		if borrower.EmployeeID != nil && *borrower.EmployeeID != "" {
			target = entities.IdentityStaff
		}
		if err := tx.Model(&entities.Borrower{}).Where("uid = ?", uid).
			Update("identity_type", target).Error; err != nil {
			return err
		}
		return tx.Model(&entities.UserAuth{}).Where("user_id = ?", uid).Update("is_admin", false).Error
	})
}

// DeleteCascade removes a borrower and everything that references it inside one
// transaction. Any failing step rolls back the whole delete.
func (r *Repository) DeleteCascade(ctx context.Context, uid string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var borrower entities.Borrower
		if err := findBorrower(tx, uid, &borrower); err != nil {
			return err
		}

		steps := []struct {
			name  string
			model any
			where string
		}{
			{"user_auth", &entities.UserAuth{}, "user_id = ?"},
			{"borrowing_records", &entities.BorrowingRecord{}, "borrower_id = ?"},
			{"fine_records", &entities.FineRecord{}, "borrower_id = ?"},
			{"login_logs", &entities.LoginLog{}, "user_id = ?"},
			{"borrowers", &entities.Borrower{}, "uid = ?"},
		}
		for _, step := range steps {
			if err := tx.Where(step.where, uid).Delete(step.model).Error; err != nil {
				return fmt.Errorf("failed to delete %s: %w", step.name, err)
			}
		}
		return nil
	})
}

func findBorrower(tx *gorm.DB, uid string, borrower *entities.Borrower) error {
	err := tx.Where("uid = ?", uid).First(borrower).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
