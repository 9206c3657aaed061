package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultBusyTimeout   = 5 * time.Second
	defaultSlowThreshold = 500 * time.Millisecond
)

// Options controls how the catalog database is opened.
type Options struct {
	Path          string
	Logger        *logrus.Logger
	BusyTimeout   time.Duration
	SlowThreshold time.Duration
	MaxOpenConns  int
}

// Open opens the SQLite catalog database with Gorm and applies the connection pragmas.
func Open(opts Options) (*gorm.DB, error) {
	if opts.Path == "" {
		return nil, eris.New("database path is required")
	}

	busyTimeout := opts.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL", opts.Path, busyTimeout.Milliseconds())

	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormLogger(opts)})
	if err != nil {
		return nil, eris.Wrapf(err, "opening sqlite database %s", opts.Path)
	}

	sqlDB, err := SQLDB(database)
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}

	if err := database.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeout.Milliseconds())).Error; err != nil {
		_ = sqlDB.Close()
		return nil, eris.Wrap(err, "configuring busy timeout pragma")
	}

	if err := database.Exec("PRAGMA journal_mode = WAL;").Error; err != nil {
		_ = sqlDB.Close()
		return nil, eris.Wrap(err, "setting journal mode to WAL")
	}

	return database, nil
}

// gormLogger routes Gorm's warnings and slow queries through logrus.
func gormLogger(opts Options) logger.Interface {
	if opts.Logger == nil {
		return logger.Default.LogMode(logger.Warn)
	}

	threshold := opts.SlowThreshold
	if threshold <= 0 {
		threshold = defaultSlowThreshold
	}

	level := logger.Warn
	if opts.Logger.IsLevelEnabled(logrus.DebugLevel) {
		level = logger.Info
	}

	return logger.New(
		opts.Logger.WithField("component", "catalog.db"),
		logger.Config{
			SlowThreshold:             threshold,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		},
	)
}

// Close releases the underlying database resources.
func Close(database *gorm.DB) error {
	if database == nil {
		return nil
	}

	sqlDB, err := SQLDB(database)
	if err != nil {
		return err
	}

	if err := sqlDB.Close(); err != nil {
		return eris.Wrap(err, "closing database connection")
	}

	return nil
}

// SQLDB exposes the underlying *sql.DB.
func SQLDB(database *gorm.DB) (*sql.DB, error) {
	if database == nil {
		return nil, eris.New("gorm.DB is nil")
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, eris.Wrap(err, "retrieving sql.DB")
	}

	return sqlDB, nil
}
