package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/davuth-chan/khmerscribe/constants"
	"github.com/davuth-chan/khmerscribe/internal/entity"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS page_records (
	document_url TEXT NOT NULL,
	page_index   INTEGER NOT NULL,
	khmer_text   TEXT NOT NULL DEFAULT '',
	english_text TEXT NOT NULL DEFAULT '',
	model        TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	fail_reason  TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL,
	PRIMARY KEY (document_url, page_index)
)`

// CheckpointStore persists one row per appended ExtractionRecord so an
// aborted run can resume at the first unrecorded page.
type CheckpointStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewCheckpointStore(ctx context.Context, db *sql.DB, logger *slog.Logger) (*CheckpointStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return nil, fmt.Errorf("create page_records table: %w", err)
	}
	return &CheckpointStore{db: db, logger: logger}, nil
}

// RecordPage inserts one record. Records are append-only; a duplicate
// (document_url, page_index) is a programming error surfaced as a key
// violation, never an overwrite.
func (s *CheckpointStore) RecordPage(ctx context.Context, rec entity.ExtractionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO page_records
		 (document_url, page_index, khmer_text, english_text, model, status, fail_reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.DocumentURL, rec.PageIndex, rec.KhmerText, rec.EnglishText,
		rec.Model, string(rec.Status), rec.FailReason,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert page record: %w", err)
	}
	return nil
}

// NextPage returns the first page index of url that has no record yet.
// Records are appended in index order with no gaps, so this is max+1.
func (s *CheckpointStore) NextPage(ctx context.Context, url string) (int, error) {
	var next int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(page_index) + 1, 0) FROM page_records WHERE document_url = $1`,
		url).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("query next page: %w", err)
	}
	return next, nil
}

// AllRecords returns every persisted record ordered by document and page,
// used to build the workbook snapshot across resumed runs.
func (s *CheckpointStore) AllRecords(ctx context.Context) ([]entity.ExtractionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_url, page_index, khmer_text, english_text, model, status, fail_reason
		 FROM page_records ORDER BY document_url, page_index`)
	if err != nil {
		return nil, fmt.Errorf("query page records: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logger.Warn("checkpoint.rows_close_error", "error", cerr)
		}
	}()

	var recs []entity.ExtractionRecord
	for rows.Next() {
		var rec entity.ExtractionRecord
		var status string
		if err := rows.Scan(&rec.DocumentURL, &rec.PageIndex, &rec.KhmerText,
			&rec.EnglishText, &rec.Model, &status, &rec.FailReason); err != nil {
			return nil, fmt.Errorf("scan page record: %w", err)
		}
		rec.Status = constants.RecordStatus(status)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
