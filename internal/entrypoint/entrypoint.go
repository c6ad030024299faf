package entrypoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/libdesk/libdesk/internal/audit"
	"github.com/libdesk/libdesk/internal/auth"
	"github.com/libdesk/libdesk/internal/config"
	"github.com/libdesk/libdesk/internal/database"
	dbaudit "github.com/libdesk/libdesk/internal/database/audit"
	"github.com/libdesk/libdesk/internal/database/borrowers"
	"github.com/libdesk/libdesk/internal/database/circulation"
	http_controllers "github.com/libdesk/libdesk/internal/http"
	"github.com/libdesk/libdesk/internal/logging"
	"github.com/libdesk/libdesk/internal/procedures"
	"github.com/libdesk/libdesk/internal/scheduler"
	"github.com/libdesk/libdesk/internal/tasks"
)

// ErrStoredNeedsMySQL is returned when stored procedures are requested on another driver.
var ErrStoredNeedsMySQL = errors.New("stored procedures mode requires the mysql driver")

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// App holds every long-lived component of the server.
type App struct {
	Config      *config.Config
	Logger      *logrus.Logger
	DB          *database.Database
	Procedures  procedures.Procedures
	Borrowers   *borrowers.Repository
	Circulation *circulation.Repository
	Audit       *audit.Service
	Tasks       *tasks.Client // nil when disabled
	Scheduler   *scheduler.Scheduler
	RateLimiter *auth.RateLimiter
	Router      *gin.Engine

	redis *redis.Client
}

// NewProcedures picks the procedures implementation for the configured mode.
func NewProcedures(cfg *config.Config, db *database.Database) (procedures.Procedures, error) {
	switch cfg.Procedures.Mode {
	case config.ProceduresStored:
		if db.Driver != database.DriverMySQL {
			return nil, ErrStoredNeedsMySQL
		}
		return procedures.NewStored(db.DB), nil
	case config.ProceduresNative, "":
		return procedures.NewNative(db.DB, procedures.LoanPolicyFromConfig(cfg.Loans), cfg.Auth.BcryptCost), nil
	default:
		return nil, fmt.Errorf("unknown procedures mode %q", cfg.Procedures.Mode)
	}
}

// NewOverdueScanner builds the scan shared by the task queue, the scheduler and the CLI.
func NewOverdueScanner(cfg *config.Config, loans *circulation.Repository, auditService *audit.Service, logger logrus.FieldLogger) *tasks.OverdueScanner {
	return &tasks.OverdueScanner{
		Loans:    loans,
		Notifier: auditService,
		Policy:   procedures.LoanPolicyFromConfig(cfg.Loans),
		Logger:   logger.WithField("component", "overdue"),
	}
}

// NewAuditService wires the audit trail onto the gateway.
func NewAuditService(db *database.Database, logger logrus.FieldLogger) *audit.Service {
	return audit.NewService(dbaudit.NewRepository(db.DB), logger)
}

func (a *App) denylist(ctx context.Context) auth.Denylist {
	if a.Config.Redis.Addr == "" {
		return auth.NewMemoryDenylist()
	}

	client, err := auth.NewRedisClient(ctx, a.Config.Redis.Addr, a.Config.Redis.Password, a.Config.Redis.DB)
	if err != nil {
		a.Logger.WithError(err).WithField("addr", a.Config.Redis.Addr).
			Warn("Redis unavailable, token revocations are kept in memory")
		return auth.NewMemoryDenylist()
	}
	a.redis = client
	a.Logger.WithField("addr", a.Config.Redis.Addr).Info("Token revocations stored in redis")
	return auth.NewRedisDenylist(client)
}

// Build wires the application without starting any listener or worker.
func Build(cfg *config.Config, logger *logrus.Logger, version string) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	if cfg.Auth.UsingDevKey {
		logger.Warn("JWT_SECRET is not set, using the development signing key")
	}

	db, err := database.NewDatabase(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.DB = db

	app.Procedures, err = NewProcedures(cfg, db)
	if err != nil {
		app.Close()
		return nil, err
	}
	logger.WithField("mode", cfg.Procedures.Mode).Info("Procedures initialized")

	app.Borrowers = borrowers.NewRepository(db.DB)
	app.Circulation = circulation.NewRepository(db.DB)
	app.Audit = NewAuditService(db, logger)
	scanner := NewOverdueScanner(cfg, app.Circulation, app.Audit, logger)

	if cfg.Tasks.Enabled {
		app.Tasks, err = tasks.NewClient(cfg.Tasks.DatabasePath, tasks.ConfigFrom(cfg.Tasks), logger)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to initialize task queue: %w", err)
		}
		app.Tasks.Register(
			tasks.NewOverdueNoticesQueue(scanner),
			tasks.NewCleanupAuditEventsQueue(app.Audit, logger),
		)
	}

	schedOpts := scheduler.Options{
		Schedules:     cfg.Schedules,
		RetentionDays: cfg.Audit.RetentionDays,
		Scanner:       scanner,
		Cleaner:       app.Audit,
		Recorder:      app.Audit,
		Logger:        logger.WithField("component", "scheduler"),
	}
	if app.Tasks != nil {
		schedOpts.Queue = app.Tasks
	}
	app.Scheduler = scheduler.New(schedOpts)

	codec := auth.NewTokenCodec(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	authenticator := auth.NewAuthenticator(codec, app.denylist(context.Background()), logger)
	app.RateLimiter = auth.NewRateLimiter(auth.RateLimitConfigFromAuth(cfg.Auth))

	app.Router = http_controllers.NewRouter(http_controllers.RouterConfig{
		Procedures:    app.Procedures,
		Database:      db,
		Borrowers:     app.Borrowers,
		Circulation:   app.Circulation,
		Audit:         app.Audit,
		Logger:        logger,
		TokenCodec:    codec,
		Authenticator: authenticator,
		RateLimiter:   app.RateLimiter,
		EnableHSTS:    cfg.HTTP.EnableHSTS,
		CORSOrigins:   cfg.CORS.AllowedOrigins,
		Version:       version,
	})

	return app, nil
}

// Start launches the task workers and the scheduler.
func (a *App) Start(ctx context.Context) error {
	if a.Tasks != nil {
		go a.Tasks.Start(ctx)
	}
	return a.Scheduler.Start(ctx)
}

// Shutdown stops background work, waiting at most until ctx expires.
func (a *App) Shutdown(ctx context.Context) {
	a.Scheduler.Stop()
	if a.Tasks != nil {
		a.Tasks.Stop(ctx)
	}
	if a.Audit != nil {
		a.Audit.Wait()
	}
}

// Close releases connections. Call after Shutdown.
func (a *App) Close() {
	if a.RateLimiter != nil {
		a.RateLimiter.Stop()
	}
	if a.Tasks != nil {
		if err := a.Tasks.Close(); err != nil {
			a.Logger.WithError(err).Warn("Error closing task client")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.WithError(err).Warn("Error closing redis client")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.WithError(err).Warn("Error closing database")
		}
	}
}

// Serve listens until SIGINT or SIGTERM, then shuts down gracefully.
func Serve(router http.Handler, cfg *config.Config, logger logrus.FieldLogger, onShutdown ShutdownFunc) error {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-quit:
	}
	logger.WithField("timeout", timeout).Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Stop background work after in-flight requests are done
	if onShutdown != nil {
		onShutdown(ctx)
	}

	logger.Info("Server exiting")
	return nil
}

// Run builds the application and serves it until interrupted.
func Run(cfg *config.Config, version string) error {
	logger := logging.New(cfg.Logging)
	logger.WithField("version", version).Info("Starting library service")

	app, err := Build(cfg, logger, version)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return err
	}

	return Serve(app.Router, cfg, logger, func(ctx context.Context) {
		app.Shutdown(ctx)
		cancel()
	})
}
