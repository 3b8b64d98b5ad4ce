package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/davuth-chan/khmerscribe/constants"
	"github.com/davuth-chan/khmerscribe/internal/common"
	"github.com/davuth-chan/khmerscribe/internal/entity"
)

// Some hosts refuse the default Go client string, so we present a browser.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36"

// Fetcher downloads remote documents to temp files. The body is streamed
// straight to disk so a large PDF never sits in memory.
type Fetcher struct {
	client *http.Client
	logger *slog.Logger
}

func NewFetcher(timeout time.Duration, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Download fetches url into a temp file and returns a Document handle.
// The caller owns the file and removes it via Cleanup.
func (f *Fetcher) Download(ctx context.Context, url string) (*entity.Document, error) {
	if !constants.IsDocumentURL(url) {
		return nil, common.NewAppError("FETCH_ERROR", fmt.Sprintf("not a recognized document URL: %s", url), common.ErrInvalidInput)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Error("fetch.download.send_error", "url", url, "error", err)
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	defer func(body io.ReadCloser) {
		if cerr := body.Close(); cerr != nil {
			f.logger.Warn("fetch.download.body_close_error", "url", url, "error", cerr)
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		f.logger.Error("fetch.download.bad_status", "url", url, "status", resp.StatusCode)
		return nil, common.NewAppError("FETCH_ERROR", fmt.Sprintf("download %s: status %d", url, resp.StatusCode), common.ErrInvalidInput)
	}

	tmp, err := os.CreateTemp("", "khmerscribe-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("write %s: %w", tmp.Name(), err)
	}

	f.logger.Info("fetch.download.ok",
		"url", url,
		"path", tmp.Name(),
		"bytes", n,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &entity.Document{URL: url, LocalPath: tmp.Name()}, nil
}

// Cleanup removes the document's temp file, if any.
func (f *Fetcher) Cleanup(doc *entity.Document) {
	if doc == nil || doc.LocalPath == "" {
		return
	}
	if err := os.Remove(doc.LocalPath); err != nil && !os.IsNotExist(err) {
		f.logger.Warn("fetch.cleanup.remove_error", "path", doc.LocalPath, "error", err)
	}
}
