package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/libdesk/libdesk/internal/auth"
	"github.com/libdesk/libdesk/internal/config"
	"github.com/libdesk/libdesk/internal/database"
	"github.com/libdesk/libdesk/internal/database/borrowers"
	"github.com/libdesk/libdesk/internal/entities"
	"github.com/libdesk/libdesk/internal/logging"
)

var ErrAccountExists = errors.New("an account with this uid already exists")

// CreateAdminCommand bootstraps a super administrator. Registration only
// creates students and staff, and promotion needs an existing super administrator.
type CreateAdminCommand struct {
	UID      string
	Name     string
	Phone    string
	Password string
}

func newCreateAdminCommand() *cobra.Command {
	c := &CreateAdminCommand{}

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a super administrator account directly in the database",
		Example: "  libdesk create-admin --uid root --name \"Head Librarian\" --password s3cret\n" +
			"  DB_DRIVER=mysql DB_HOST=db libdesk create-admin --uid root --name Root --password s3cret",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Run(cmd.Context(), config.NewConfig(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&c.UID, "uid", "", "Account id used to log in (required)")
	cmd.Flags().StringVar(&c.Name, "name", "", "Display name (required)")
	cmd.Flags().StringVar(&c.Phone, "phone", "", "Contact phone")
	cmd.Flags().StringVar(&c.Password, "password", "", "Initial password (required)")
	_ = cmd.MarkFlagRequired("uid")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func (c *CreateAdminCommand) validate() error {
	c.UID = strings.TrimSpace(c.UID)
	c.Name = strings.TrimSpace(c.Name)
	if c.UID == "" || c.Name == "" || c.Password == "" {
		return fmt.Errorf("uid, name and password are required")
	}
	return nil
}

func (c *CreateAdminCommand) Run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if err := c.validate(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := database.NewDatabase(cfg.Database, logging.New(cfg.Logging))
	if err != nil {
		return err
	}
	defer db.Close()

	repo := borrowers.NewRepository(db.DB)
	exists, err := repo.Exists(ctx, c.UID)
	if err != nil {
		return fmt.Errorf("check existing account: %w", err)
	}
	if exists {
		return ErrAccountExists
	}

	hash, err := auth.HashPassword(c.Password, cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}

	borrower := &entities.Borrower{
		UID:              c.UID,
		Name:             c.Name,
		Phone:            c.Phone,
		IdentityType:     entities.IdentitySuperAdmin,
		RegistrationDate: time.Now(),
		BorrowingStatus:  entities.BorrowingActive,
	}
	if err := repo.Create(ctx, borrower, hash); err != nil {
		return err
	}

	fmt.Fprintf(out, "Created super administrator %q (%s)\n", c.UID, c.Name)
	return nil
}
