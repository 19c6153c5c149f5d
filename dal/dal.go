package dal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	puresqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"wysibot/models"
)

// Supported database drivers.
const (
	DriverSQLite     = "sqlite"
	DriverPureSQLite = "sqlite-purego"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert violates a unique index.
	ErrDuplicate = errors.New("duplicate")
)

// InitDB creates a database connection for the given driver and migrates
// the schema.
func InitDB(driver, dbPath string) (*gorm.DB, error) {
	// Fail early if the parent directory is missing; sqlite reports it as
	// "out of memory (14)".
	if dir := filepath.Dir(dbPath); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite, "":
		dialector = sqlite.Open(dbPath + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL")
	case DriverPureSQLite:
		dialector = puresqlite.Open(dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", dbPath, err)
	}
	log.Info().Str("driver", driver).Str("path", dbPath).Msg("Connected to database.")

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info().Msg("Migrated database.")

	return db, nil
}

// Migrate creates or updates every table used by the bot.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.ReminderConfig{},
		&models.ReminderPingRole{},
		&models.ReminderSubscription{},
		&models.ReminderLog{},
		&models.UserSettings{},
		&models.SelfRoleConfig{},
		&models.SelfRoleRole{},
		&models.SelfRoleCooldown{},
	)
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// Neither sqlite driver maps UNIQUE failures to gorm.ErrDuplicatedKey
	// without TranslateError, so match the message text as well.
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
