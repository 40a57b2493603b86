package db

import (
	"fmt"

	"github.com/go-kit/log"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dzoniops/condo-booking/models"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the configured database. SQLite is meant for local runs
// and tests; it has no row locks, so writers are limited to one connection.
func Open(driver, dsn string, logger log.Logger) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: NewGormLogger(logger)}
	switch driver {
	case DriverPostgres, "":
		gdb, err := gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return gdb, nil
	case DriverSQLite:
		return openSQLite(dsn, cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// OpenSQLite opens dsn (":memory:" or a file URI) with a single connection.
func OpenSQLite(dsn string, logger log.Logger) (*gorm.DB, error) {
	return openSQLite(dsn, &gorm.Config{Logger: NewGormLogger(logger)})
}

func openSQLite(dsn string, cfg *gorm.Config) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return gdb, nil
}

func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.Property{},
		&models.BlockedInterval{},
		&models.Booking{},
	)
}

// MemoryDSN names a private in-memory SQLite database.
func MemoryDSN() string {
	return "file:" + uuid.NewString() + "?mode=memory&cache=shared"
}
