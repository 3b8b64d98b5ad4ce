package render

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/davuth-chan/khmerscribe/internal/common"
	"github.com/davuth-chan/khmerscribe/internal/config"
)

// Renderer rasterizes single PDF pages through poppler's pdftoppm and reads
// page counts through pdfinfo. One call renders exactly one page; there is
// deliberately no whole-document path.
type Renderer struct {
	cfg    config.RenderConfig
	runner Runner
	logger *slog.Logger
}

func NewRenderer(cfg config.RenderConfig, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Pdfinfo == "" {
		cfg.Pdfinfo = "pdfinfo"
	}
	return &Renderer{cfg: cfg, runner: execRunner{}, logger: logger}
}

// WithRunner swaps the exec runner; used by tests.
func (r *Renderer) WithRunner(runner Runner) *Renderer {
	r.runner = runner
	return r
}

// PageCount reads the document's total page count without rendering anything.
func (r *Renderer) PageCount(ctx context.Context, path string) (int, error) {
	out, errb, err := r.runner.Run(ctx, r.cfg.Pdfinfo, path)
	if err != nil {
		return 0, common.NewAppError("RENDER_ERROR", fmt.Sprintf("pdfinfo %s: %s", path, truncate(string(errb), 512)), common.ErrRender)
	}
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.HasPrefix(line, "Pages:") {
			continue
		}
		n, convErr := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Pages:")))
		if convErr != nil {
			return 0, common.NewAppError("RENDER_ERROR", fmt.Sprintf("pdfinfo %s: bad Pages line %q", path, line), common.ErrRender)
		}
		return n, nil
	}
	return 0, common.NewAppError("RENDER_ERROR", fmt.Sprintf("pdfinfo %s: no Pages line", path), common.ErrRender)
}

// RenderPage rasterizes the 0-based page index to PNG bytes. The temp
// artifacts are removed before returning, so the returned slice is the only
// copy of the page.
func (r *Renderer) RenderPage(ctx context.Context, path string, index int) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "ks-page-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func(dir string) {
		if rerr := os.RemoveAll(dir); rerr != nil {
			r.logger.Warn("render.page.temp_cleanup_error", "dir", dir, "error", rerr)
		}
	}(tmpDir)

	// pdftoppm pages are 1-based.
	pageNo := strconv.Itoa(index + 1)
	prefix := filepath.Join(tmpDir, "page")
	_, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm,
		"-f", pageNo, "-l", pageNo,
		"-r", strconv.Itoa(r.cfg.DPI),
		"-png", path, prefix)
	if err != nil {
		return nil, common.NewAppError("RENDER_ERROR", fmt.Sprintf("pdftoppm %s page %s: %s", path, pageNo, truncate(string(errb), 512)), common.ErrRender)
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	if len(matches) != 1 {
		return nil, common.NewAppError("RENDER_ERROR", fmt.Sprintf("pdftoppm %s page %s: produced %d images", path, pageNo, len(matches)), common.ErrRender)
	}
	png, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, fmt.Errorf("read rendered page: %w", err)
	}
	r.logger.Debug("render.page.ok", "path", path, "page", index, "bytes", len(png))
	return png, nil
}
