package db

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

type Config struct {
	// DSN is a postgres URL/keyword DSN, or sqlite://<path> / file:<path> for local runs.
	DSN           string
	SlowThreshold time.Duration
	MaxOpenConns  int
}

type Service struct {
	db      *gorm.DB
	log     *logger.Logger
	dialect string
}

func NewService(logg *logger.Logger, cfg Config) (*Service, error) {
	serviceLog := logg.With("service", "DatabaseService")

	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("missing database DSN")
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = time.Second
	}

	gormCfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormLogger.New(
			gormWriter{log: serviceLog},
			gormLogger.Config{
				SlowThreshold:             cfg.SlowThreshold,
				LogLevel:                  gormLogger.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
	}

	dialect, dialector := dialectorFor(dsn)
	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", dialect, err)
	}

	if dialect == DialectPostgres {
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
			return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
		}
		if cfg.MaxOpenConns > 0 {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
			}
		}
	}

	serviceLog.Info("Database connected", "dialect", dialect)
	return &Service{db: db, log: serviceLog, dialect: dialect}, nil
}

func dialectorFor(dsn string) (string, gorm.Dialector) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return DialectSQLite, sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
	case strings.HasPrefix(dsn, "file:"), dsn == ":memory:":
		return DialectSQLite, sqlite.Open(dsn)
	default:
		return DialectPostgres, postgres.Open(dsn)
	}
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) Dialect() string { return s.dialect }

func (s *Service) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// gormWriter routes gorm's slow-query and error lines through the structured logger.
type gormWriter struct {
	log *logger.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn("gorm", "detail", strings.TrimSpace(fmt.Sprintf(format, args...)))
}
