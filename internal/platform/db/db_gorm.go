package db

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	gmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	detectionadapters "deepfake_backend/internal/feature/detection/adapters"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"

	defaultSQLiteDSN = "deepfake.db"
	connectTimeout   = 60 * time.Second
	retryInterval    = 3 * time.Second
)

// Config holds the history store connection settings.
type Config struct {
	Driver string
	DSN    string
}

// Opener opens a gorm connection for a DSN.
type Opener func(dsn string) (*gorm.DB, error)

// OpenerFor returns the gorm opener for a driver name.
func OpenerFor(driver string) (Opener, error) {
	switch strings.ToLower(driver) {
	case "", DriverSQLite:
		return func(dsn string) (*gorm.DB, error) {
			return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
		}, nil
	case DriverPostgres:
		return func(dsn string) (*gorm.DB, error) {
			return gorm.Open(postgres.Open(dsn), &gorm.Config{})
		}, nil
	case DriverMySQL:
		return func(dsn string) (*gorm.DB, error) {
			return gorm.Open(gmysql.Open(dsn), &gorm.Config{})
		}, nil
	default:
		return nil, fmt.Errorf("unsupported history driver %q", driver)
	}
}

// BuildDSN fills in the default DSN for drivers that have one.
// MySQL DSNs get parseTime=true so DATETIME columns scan into time.Time.
func BuildDSN(cfg Config) string {
	dsn := strings.TrimSpace(cfg.DSN)
	switch strings.ToLower(cfg.Driver) {
	case "", DriverSQLite:
		if dsn == "" {
			return defaultSQLiteDSN
		}
	case DriverMySQL:
		if dsn != "" && !strings.Contains(dsn, "parseTime=") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "parseTime=true"
		}
	}
	return dsn
}

// ConnectWithRetry calls opener until it succeeds or timeout elapses.
func ConnectWithRetry(dsn string, timeout time.Duration, opener Opener) (*gorm.DB, error) {
	deadline := time.Now().Add(timeout)
	for {
		db, err := opener(dsn)
		if err == nil {
			return db, nil
		}
		if time.Now().Add(retryInterval).After(deadline) {
			return nil, fmt.Errorf("db connect failed after %s: %w", timeout, err)
		}
		slog.Warn("DB connect failed, retrying", "error", err)
		time.Sleep(retryInterval)
	}
}

// OpenDB connects to the history store and migrates the detections table.
func OpenDB(cfg Config) (*gorm.DB, error) {
	opener, err := OpenerFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn := BuildDSN(cfg)
	if dsn == "" {
		return nil, fmt.Errorf("history dsn is required for driver %q", cfg.Driver)
	}

	db, err := ConnectWithRetry(dsn, connectTimeout, opener)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&detectionadapters.DetectionModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	slog.Info("history store ready", "driver", cfg.Driver)
	return db, nil
}
