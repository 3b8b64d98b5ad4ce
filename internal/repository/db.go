package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Open connects the checkpoint store. A postgres:// DSN goes through a pgx
// pool; anything else is treated as a sqlite path (":memory:" works).
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("connecting to checkpoint store", "dsn", dsn)

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		pc, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			logger.Error("failed to parse postgres dsn", "error", err)
			return nil, err
		}
		pc.ConnConfig.RuntimeParams["application_name"] = "khmerscribe"

		dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		pool, err := pgxpool.NewWithConfig(dialCtx, pc)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			return nil, err
		}
		return stdlib.OpenDBFromPool(pool), nil
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		logger.Error("failed to open sqlite checkpoint store", "error", err)
		return nil, err
	}
	// The store is written by exactly one sequential pipeline.
	db.SetMaxOpenConns(1)
	return db, nil
}

// Close closes the store gracefully.
func Close(db *sql.DB, logger *slog.Logger) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		logger.Error("failed to close checkpoint store", "error", err)
		return
	}
	logger.Info("checkpoint store closed")
}
