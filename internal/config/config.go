package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ProceduresMode selects where the library's business rules run.
type ProceduresMode string

const (
	ProceduresNative ProceduresMode = "native" // In-process rules on top of gorm (default)
	ProceduresStored ProceduresMode = "stored" // MySQL stored procedures (CALL ...)
)

type (
	Config struct {
		HTTP
		Global
		Database
		Procedures
		Auth
		Redis
		Loans
		Tasks
		Schedules
		Audit
		Logging
		CORS
	}

	HTTP struct {
		Port       int32
		Host       string
		EnableHSTS bool // Only behind TLS
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Driver          string // sqlite, mysql or postgres
		Path            string // sqlite only
		Host            string
		Port            int
		User            string
		Password        string
		Name            string
		MaxOpenConns    int
		MaxIdleConns    int
		ConnMaxLifetime time.Duration
		LogLevel        string // silent, error, warn, info
	}
	Procedures struct {
		Mode ProceduresMode
	}
	Auth struct {
		JWTSecret   string
		TokenTTL    time.Duration
		BcryptCost  int
		UsingDevKey bool // JWT_SECRET was not set

		// Rate limiting configuration
		MaxLoginAttempts int           // Max failed attempts before lockout (default: 5)
		RateLimitWindow  time.Duration // Time window for counting attempts (default: 15m)
		LockoutDuration  time.Duration // How long to lock out (default: 30m)
	}
	Redis struct {
		Addr     string // Empty disables redis; revocations stay in memory
		Password string
		DB       int
	}
	Loans struct {
		PeriodDays      int     // Days before a loan becomes overdue
		FinePerDay      float64 // Fine charged per overdue day
		MaxLoansStudent int
		MaxLoansStaff   int
		MaxLoansAdmin   int
	}
	Tasks struct {
		Enabled           bool
		DatabasePath      string
		Workers           int
		MaxRetries        int
		RetryDelay        time.Duration
		TaskTimeout       time.Duration
		ReleaseAfter      time.Duration
		CleanupInterval   time.Duration
		RetentionDuration time.Duration
	}
	Schedules struct {
		Enabled      bool
		OverdueScan  string // Cron format: "0 8 * * *" = daily at 08:00
		AuditCleanup string // Cron format: "30 3 * * *" = daily at 03:30
	}
	Audit struct {
		RetentionDays int
	}
	Logging struct {
		Level  string
		Format string // text or json
	}
	CORS struct {
		AllowedOrigins []string
	}
)

// DevJWTSecret is used when JWT_SECRET is unset. Never rely on it outside development.
const DevJWTSecret = "default_secret_key"

// NewConfig loads configuration from the environment, reading an optional .env file first.
func NewConfig() *Config {
	// A missing .env is the normal case in containers.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", DefaultPort)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("http_enable_hsts", false)
	v.SetDefault("shutdown_timeout_in_seconds", 5)

	// Database defaults
	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 3306)
	v.SetDefault("db_user", "root")
	v.SetDefault("db_password", "")
	v.SetDefault("db_name", "library")
	v.SetDefault("db_max_open_conns", 10)
	v.SetDefault("db_max_idle_conns", 5)
	v.SetDefault("db_conn_max_lifetime", "1h")
	v.SetDefault("db_log_level", "warn")
	v.SetDefault("procedures_mode", string(ProceduresNative))

	// Auth defaults
	v.SetDefault("jwt_secret", "")
	v.SetDefault("auth_token_ttl", "24h")
	v.SetDefault("auth_bcrypt_cost", 10)
	v.SetDefault("auth_max_login_attempts", 5)
	v.SetDefault("auth_rate_limit_window", "15m")
	v.SetDefault("auth_lockout_duration", "30m")

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	// Loan policy defaults
	v.SetDefault("loan_period_days", 30)
	v.SetDefault("fine_per_day", 0.5)
	v.SetDefault("max_loans_student", 5)
	v.SetDefault("max_loans_staff", 10)
	v.SetDefault("max_loans_admin", 20)

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("tasks_database_path", DefaultTasksDatabasePath)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_max_retries", 3)
	v.SetDefault("task_retry_delay", "1m")
	v.SetDefault("task_timeout", "5m")
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")
	v.SetDefault("task_retention_duration", "24h")

	v.SetDefault("schedules_enabled", true)
	v.SetDefault("overdue_scan_schedule", "0 8 * * *")
	v.SetDefault("audit_cleanup_schedule", "30 3 * * *")
	v.SetDefault("audit_retention_days", 90)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("cors_allowed_origins", "*")

	secret := v.GetString("JWT_SECRET")
	usingDevKey := secret == ""
	if usingDevKey {
		secret = DevJWTSecret
	}

	return &Config{
		HTTP: HTTP{
			Port:       v.GetInt32("PORT"),
			Host:       v.GetString("HOST"),
			EnableHSTS: v.GetBool("HTTP_ENABLE_HSTS"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Driver:          strings.ToLower(v.GetString("DB_DRIVER")),
			Path:            v.GetString("DATABASE_PATH"),
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetInt("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			Name:            v.GetString("DB_NAME"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
			LogLevel:        v.GetString("DB_LOG_LEVEL"),
		},
		Procedures: Procedures{
			Mode: ProceduresMode(strings.ToLower(v.GetString("PROCEDURES_MODE"))),
		},
		Auth: Auth{
			JWTSecret:        secret,
			TokenTTL:         v.GetDuration("AUTH_TOKEN_TTL"),
			BcryptCost:       v.GetInt("AUTH_BCRYPT_COST"),
			UsingDevKey:      usingDevKey,
			MaxLoginAttempts: v.GetInt("AUTH_MAX_LOGIN_ATTEMPTS"),
			RateLimitWindow:  v.GetDuration("AUTH_RATE_LIMIT_WINDOW"),
			LockoutDuration:  v.GetDuration("AUTH_LOCKOUT_DURATION"),
		},
		Redis: Redis{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Loans: Loans{
			PeriodDays:      v.GetInt("LOAN_PERIOD_DAYS"),
			FinePerDay:      v.GetFloat64("FINE_PER_DAY"),
			MaxLoansStudent: v.GetInt("MAX_LOANS_STUDENT"),
			MaxLoansStaff:   v.GetInt("MAX_LOANS_STAFF"),
			MaxLoansAdmin:   v.GetInt("MAX_LOANS_ADMIN"),
		},
		Tasks: Tasks{
			Enabled:           v.GetBool("TASKS_ENABLED"),
			DatabasePath:      v.GetString("TASKS_DATABASE_PATH"),
			Workers:           v.GetInt("TASK_WORKERS"),
			MaxRetries:        v.GetInt("TASK_MAX_RETRIES"),
			RetryDelay:        v.GetDuration("TASK_RETRY_DELAY"),
			TaskTimeout:       v.GetDuration("TASK_TIMEOUT"),
			ReleaseAfter:      v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval:   v.GetDuration("TASK_CLEANUP_INTERVAL"),
			RetentionDuration: v.GetDuration("TASK_RETENTION_DURATION"),
		},
		Schedules: Schedules{
			Enabled:      v.GetBool("SCHEDULES_ENABLED"),
			OverdueScan:  v.GetString("OVERDUE_SCAN_SCHEDULE"),
			AuditCleanup: v.GetString("AUDIT_CLEANUP_SCHEDULE"),
		},
		Audit: Audit{
			RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
		},
		Logging: Logging{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		CORS: CORS{
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
