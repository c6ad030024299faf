package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/libdesk/libdesk/internal/config"
	"github.com/libdesk/libdesk/internal/database"
	"github.com/libdesk/libdesk/internal/database/circulation"
	"github.com/libdesk/libdesk/internal/entrypoint"
	"github.com/libdesk/libdesk/internal/logging"
)

// SweepOverdueCommand runs one overdue scan outside the scheduler.
type SweepOverdueCommand struct {
	AsOf string
}

func newSweepOverdueCommand() *cobra.Command {
	c := &SweepOverdueCommand{}

	cmd := &cobra.Command{
		Use:   "sweep-overdue",
		Short: "Record an overdue notice for every loan past the loan period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Run(cmd.Context(), config.NewConfig(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&c.AsOf, "as-of", "", "Evaluate loans as of this date (YYYY-MM-DD), default now")
	return cmd
}

func (c *SweepOverdueCommand) now() (time.Time, error) {
	if c.AsOf == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.DateOnly, c.AsOf)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of date %q: %w", c.AsOf, err)
	}
	return t, nil
}

func (c *SweepOverdueCommand) Run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	now, err := c.now()
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	logger := logging.New(cfg.Logging)
	db, err := database.NewDatabase(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	auditService := entrypoint.NewAuditService(db, logger)
	scanner := entrypoint.NewOverdueScanner(cfg, circulation.NewRepository(db.DB), auditService, logger)

	summary, err := scanner.Scan(ctx, now)
	auditService.LogSchedule("overdue_scan", fmt.Sprintf("Manual sweep notified %d of %d overdue loans", summary.Notified, summary.Overdue), err)
	auditService.Wait()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Overdue loans: %d, notified: %d, failed: %d\n", summary.Overdue, summary.Notified, summary.Failed)
	return nil
}
