package pipeline

import (
	"context"
	"log/slog"

	"github.com/davuth-chan/khmerscribe/internal/entity"
)

// Renderer is the rasterization capability the page source draws from.
type Renderer interface {
	PageCount(ctx context.Context, path string) (int, error)
	RenderPage(ctx context.Context, path string, index int) ([]byte, error)
}

// PageSource is the lazy page sequence for one document. It renders exactly
// one page per Next call and holds no rendered page itself, so at most one
// page image is resident past the caller's reference. startIndex makes a
// resumed run skip already-recorded pages without re-rendering them.
type PageSource struct {
	renderer Renderer
	doc      *entity.Document
	next     int
	logger   *slog.Logger
}

// NewPageSource reads the document's page count and positions the sequence
// at startIndex. When the count exceeds pageLimit the document is marked
// Skipped and the sequence is empty: a policy decision, not an error.
func NewPageSource(ctx context.Context, renderer Renderer, doc *entity.Document, pageLimit, startIndex int, logger *slog.Logger) (*PageSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	count, err := renderer.PageCount(ctx, doc.LocalPath)
	if err != nil {
		return nil, err
	}
	doc.PageCount = count
	if pageLimit > 0 && count > pageLimit {
		doc.Skipped = true
		logger.Warn("pipeline.document.over_page_limit",
			"url", doc.URL, "pages", count, "limit", pageLimit)
	}
	return &PageSource{renderer: renderer, doc: doc, next: startIndex, logger: logger}, nil
}

// Next renders and returns the next page, or ok=false when the sequence is
// done (or the document is skipped).
func (s *PageSource) Next(ctx context.Context) (*entity.Page, bool, error) {
	if s.doc.Skipped || s.next >= s.doc.PageCount {
		return nil, false, nil
	}
	index := s.next
	s.next++
	png, err := s.renderer.RenderPage(ctx, s.doc.LocalPath, index)
	if err != nil {
		return &entity.Page{Index: index}, true, err
	}
	return &entity.Page{Index: index, PNG: png}, true, nil
}
