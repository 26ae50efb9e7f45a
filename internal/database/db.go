// Package database provides sqlite connection management and schema setup.
package database

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"

	"github.com/at-ishikawa/dreamjournal/internal/config"
	"github.com/at-ishikawa/dreamjournal/schemas"
)

// DriverName is the database/sql driver registered by go-sqlite3.
const DriverName = "sqlite3"

// DSN builds a go-sqlite3 data source name. Foreign keys are switched on
// through the DSN so that every pooled connection enforces them.
func DSN(cfg config.DatabaseConfig) string {
	params := url.Values{}
	params.Add("_foreign_keys", "on")
	if cfg.BusyTimeoutMs > 0 {
		params.Add("_busy_timeout", strconv.Itoa(cfg.BusyTimeoutMs))
	}
	if cfg.JournalMode != "" && !isMemory(cfg.Path) {
		params.Add("_journal_mode", strings.ToUpper(cfg.JournalMode))
	}
	if cfg.Synchronous != "" {
		params.Add("_synchronous", strings.ToUpper(cfg.Synchronous))
	}

	sep := "?"
	if strings.Contains(cfg.Path, "?") {
		sep = "&"
	}
	return cfg.Path + sep + params.Encode()
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// Open opens the sqlite database described by cfg and verifies it with a ping.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open(DriverName, DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open database connection: %w", err)
	}

	// Each connection to :memory: is a separate database.
	if isMemory(cfg.Path) {
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database %s: %w", cfg.Path, err)
	}

	return db, nil
}

// RunInTx runs fn within a database transaction.
// If fn returns an error, the transaction is rolled back; otherwise, it is committed.
func RunInTx(ctx context.Context, db *sqlx.DB, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback transaction: %w (original error: %v)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// EnsureSchema creates the dreams and emotions tables when they are missing.
// Foreign keys are enabled on the connection running the DDL.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	conn, err := db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := conn.ExecContext(ctx, schemas.Dreams); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// InitSchema runs EnsureSchema on process start. Failures are logged and
// swallowed; a broken store then surfaces on the first request.
func InitSchema(ctx context.Context, db *sqlx.DB, logger zerolog.Logger) {
	err := EnsureSchema(ctx, db)
	switch {
	case err == nil:
		logger.Info().Msg("database schema ready")
	case strings.Contains(err.Error(), "already exists"):
		logger.Debug().Err(err).Msg("database schema already exists")
	default:
		logger.Error().Err(err).Msg("failed to create tables")
	}
}
