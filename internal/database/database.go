package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/libdesk/libdesk/internal/config"
	"github.com/libdesk/libdesk/internal/entities"
)

const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

var ErrUnknownDriver = errors.New("unknown database driver")

// Database is the pooled gateway every repository and procedure runs on.
type Database struct {
	DB     *gorm.DB
	Driver string
}

// NewDatabase opens the configured store, sizes the pool, migrates the schema
// and seeds the user type lookup table.
func NewDatabase(cfg config.Database, log logrus.FieldLogger) (*Database, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(entities.AllModels()...); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	database := &Database{DB: db, Driver: driverName(cfg.Driver)}
	if err := database.seedUserTypes(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to seed user types: %w", err)
	}

	if log != nil {
		log.WithField("driver", database.Driver).Info("Database initialized")
	}
	return database, nil
}

// OpenSQLite is a shortcut for tests and tooling that only need a local file.
func OpenSQLite(path string) (*Database, error) {
	return NewDatabase(config.Database{Driver: DriverSQLite, Path: path, LogLevel: "silent"}, nil)
}

// Ping checks that the pool can reach the store.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *Database) seedUserTypes() error {
	for _, userType := range entities.DefaultUserTypes {
		var existing entities.UserType
		result := d.DB.Where("type_id = ?", userType.TypeID).Limit(1).Find(&existing)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			ut := userType
			if err := d.DB.Create(&ut).Error; err != nil {
				return fmt.Errorf("failed to create user type %s: %w", userType.TypeName, err)
			}
		}
	}
	return nil
}

func dialectorFor(cfg config.Database) (gorm.Dialector, error) {
	switch driverName(cfg.Driver) {
	case DriverSQLite:
		return sqlite.Open(sqliteDSN(cfg.Path)), nil
	case DriverMySQL:
		return gormmysql.Open(MySQLDSN(cfg)), nil
	case DriverPostgres:
		return postgres.Open(PostgresDSN(cfg)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

func driverName(driver string) string {
	if driver == "" {
		return DriverSQLite
	}
	return strings.ToLower(driver)
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_busy_timeout=5000"
}

// MySQLDSN builds a go-sql-driver DSN with utf8mb4 and parsed time columns.
func MySQLDSN(cfg config.Database) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Loc = time.Local
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

// PostgresDSN builds a key/value connection string for pgx.
func PostgresDSN(cfg config.Database) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name)
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
