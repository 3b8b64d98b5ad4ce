package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/davuth-chan/khmerscribe/constants"
	"github.com/davuth-chan/khmerscribe/internal/entity"
	"github.com/davuth-chan/khmerscribe/internal/repository"
)

// Counts is the per-status record tally reported at snapshot time.
type Counts struct {
	Success int `json:"success"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func (c Counts) Total() int {
	return c.Success + c.Skipped + c.Failed
}

var csvHeader = []string{"document_url", "page", "khmer_text", "english_text", "model", "status"}

// Sink appends records to the CSV output, flushing each row to disk before
// returning, and mirrors every row into the checkpoint store when one is
// configured. Rows are never rewritten or deleted.
type Sink struct {
	file     *os.File
	w        *csv.Writer
	store    *repository.CheckpointStore
	xlsxPath string
	records  []entity.ExtractionRecord
	counts   Counts
	closed   bool
	logger   *slog.Logger
}

// Open opens (or creates) the CSV at csvPath in append mode. The header is
// written only when the file is new, so a resumed run keeps appending to the
// same output. store may be nil; xlsxPath may be empty.
func Open(csvPath, xlsxPath string, store *repository.CheckpointStore, logger *slog.Logger) (*Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.OpenFile(csvPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output csv: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat output csv: %w", err)
	}

	s := &Sink{
		file:     f,
		w:        csv.NewWriter(f),
		store:    store,
		xlsxPath: xlsxPath,
		logger:   logger,
	}
	if info.Size() == 0 {
		if err := s.writeRow(csvHeader); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return s, nil
}

// NextPage reports where to resume url, based on the checkpoint store.
// Without a store every run starts from page 0.
func (s *Sink) NextPage(ctx context.Context, url string) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	return s.store.NextPage(ctx, url)
}

// Append writes rec as one CSV row, forces it to disk, and checkpoints it.
// A failure here is fatal-class: the caller must halt through the snapshot
// path rather than keep producing rows that may be lost.
func (s *Sink) Append(ctx context.Context, rec entity.ExtractionRecord) error {
	if s.closed {
		return fmt.Errorf("append after close: %s page %d", rec.DocumentURL, rec.PageIndex)
	}
	row := []string{
		rec.DocumentURL,
		strconv.Itoa(rec.PageIndex + 1), // 1-based for display
		rec.KhmerText,
		rec.EnglishText,
		rec.Model,
		string(rec.Status),
	}
	if err := s.writeRow(row); err != nil {
		return err
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync output csv: %w", err)
	}
	if s.store != nil {
		if err := s.store.RecordPage(ctx, rec); err != nil {
			return err
		}
	}

	s.records = append(s.records, rec)
	switch rec.Status {
	case constants.StatusSuccess:
		s.counts.Success++
	case constants.StatusSkipped:
		s.counts.Skipped++
	case constants.StatusFailed:
		s.counts.Failed++
	}
	s.logger.Info("sink.append",
		"document_url", rec.DocumentURL,
		"page", rec.PageIndex,
		"status", rec.Status,
		"khmer_len", len(rec.KhmerText),
		"english_len", len(rec.EnglishText),
	)
	return nil
}

// SnapshotAndClose finalizes the CSV, writes the XLSX workbook when
// configured, and returns the per-status counts. Safe to call once on both
// the normal and the halt path.
func (s *Sink) SnapshotAndClose(ctx context.Context) (Counts, error) {
	if s.closed {
		return s.counts, nil
	}
	s.closed = true

	s.w.Flush()
	flushErr := s.w.Error()
	if cerr := s.file.Close(); cerr != nil && flushErr == nil {
		flushErr = cerr
	}
	if flushErr != nil {
		return s.counts, fmt.Errorf("finalize output csv: %w", flushErr)
	}

	if s.xlsxPath != "" {
		recs := s.records
		if s.store != nil {
			// Across resumed runs the store has rows this process never saw.
			all, err := s.store.AllRecords(ctx)
			if err != nil {
				s.logger.Error("sink.snapshot.load_error", "error", err)
			} else {
				recs = all
			}
		}
		if err := writeWorkbook(s.xlsxPath, recs); err != nil {
			return s.counts, err
		}
		s.logger.Info("sink.snapshot.xlsx", "path", s.xlsxPath, "rows", len(recs))
	}

	s.logger.Info("sink.closed",
		"success", s.counts.Success,
		"skipped", s.counts.Skipped,
		"failed", s.counts.Failed,
	)
	return s.counts, nil
}

func (s *Sink) writeRow(row []string) error {
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush csv row: %w", err)
	}
	return nil
}
