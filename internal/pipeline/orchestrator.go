package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/davuth-chan/khmerscribe/constants"
	"github.com/davuth-chan/khmerscribe/internal/config"
	"github.com/davuth-chan/khmerscribe/internal/entity"
	"github.com/davuth-chan/khmerscribe/internal/gemini"
	"github.com/davuth-chan/khmerscribe/internal/governor"
	"github.com/davuth-chan/khmerscribe/internal/sink"
)

// Fetcher is how the orchestrator obtains document handles.
type Fetcher interface {
	Download(ctx context.Context, url string) (*entity.Document, error)
	Cleanup(doc *entity.Document)
}

// Guard is the memory gate crossed once per page, immediately before render.
type Guard interface {
	CheckAndWait(ctx context.Context) (int, error)
}

// ResultSink receives exactly one record per processed page and produces the
// durable snapshot on every terminal path.
type ResultSink interface {
	NextPage(ctx context.Context, url string) (int, error)
	Append(ctx context.Context, rec entity.ExtractionRecord) error
	SnapshotAndClose(ctx context.Context) (sink.Counts, error)
}

// Orchestrator drives the page-by-page control loop: memory gate, render,
// classify, conditional transcribe, append, advance. One page at a time by
// design; there is no prefetch.
type Orchestrator struct {
	cfg        config.PipelineConfig
	fetcher    Fetcher
	renderer   Renderer
	guard      Guard
	classify   *ClassifyStage
	transcribe *TranscribeStage
	sink       ResultSink
	state      *entity.RunState
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *slog.Logger
}

func NewOrchestrator(
	cfg config.PipelineConfig,
	fetcher Fetcher,
	renderer Renderer,
	guard Guard,
	classify *ClassifyStage,
	transcribe *TranscribeStage,
	resultSink ResultSink,
	state *entity.RunState,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:        cfg,
		fetcher:    fetcher,
		renderer:   renderer,
		guard:      guard,
		classify:   classify,
		transcribe: transcribe,
		sink:       resultSink,
		state:      state,
		sleep:      sleepCtx,
		logger:     logger,
	}
}

// WithSleep swaps the between-pages pause; used by tests.
func (o *Orchestrator) WithSleep(f func(ctx context.Context, d time.Duration) error) *Orchestrator {
	o.sleep = f
	return o
}

// Run processes every URL in order and always terminates through the sink's
// snapshot, so partial work survives quota exhaustion and cancellation. A
// halt is not an error: inspect the RunState's HaltReason.
func (o *Orchestrator) Run(ctx context.Context, urls []string) (sink.Counts, error) {
	for i, url := range urls {
		if ctx.Err() != nil {
			o.recordHalt(constants.HaltCanceled, ctx.Err())
			break
		}
		o.state.DocumentIndex = i
		o.logger.Info("pipeline.document.start",
			"run_id", o.state.RunID, "index", i+1, "total", len(urls), "url", url)

		doc, err := o.fetcher.Download(ctx, url)
		if err != nil {
			// A document that cannot be fetched is skipped, not fatal.
			o.logger.Error("pipeline.document.download_failed", "url", url, "error", err)
			continue
		}
		halted := o.processDocument(ctx, doc)
		o.fetcher.Cleanup(doc)
		if halted {
			break
		}
	}

	counts, err := o.sink.SnapshotAndClose(ctx)
	o.logger.Info("pipeline.run.done",
		"run_id", o.state.RunID,
		"halt_reason", o.state.HaltReason,
		"memory_pauses", o.state.MemoryPauses,
		"success", counts.Success,
		"skipped", counts.Skipped,
		"failed", counts.Failed,
	)
	return counts, err
}

// processDocument walks one document's pages. It reports true when the run
// must stop (quota, auth, cancellation, sink failure); document-level skips
// return false so the batch moves on.
func (o *Orchestrator) processDocument(ctx context.Context, doc *entity.Document) bool {
	start, err := o.sink.NextPage(ctx, doc.URL)
	if err != nil {
		o.recordHalt(constants.HaltSinkError, err)
		return true
	}
	o.state.CurrentPage = start
	if start > 0 {
		o.logger.Info("pipeline.document.resume", "url", doc.URL, "from_page", start)
	}

	src, err := NewPageSource(ctx, o.renderer, doc, o.cfg.PageLimit, start, o.logger)
	if err != nil {
		o.logger.Error("pipeline.document.unreadable", "url", doc.URL, "error", err)
		return false
	}
	if doc.Skipped {
		o.logger.Warn("pipeline.document.skipped", "url", doc.URL, "pages", doc.PageCount)
		return false
	}

	for {
		if ctx.Err() != nil {
			o.recordHalt(constants.HaltCanceled, ctx.Err())
			return true
		}
		pauses, err := o.guard.CheckAndWait(ctx)
		o.state.MemoryPauses += pauses
		if err != nil {
			o.recordHalt(constants.HaltCanceled, err)
			return true
		}

		page, ok, err := src.Next(ctx)
		if !ok {
			return false
		}

		var rec entity.ExtractionRecord
		if err != nil {
			// One corrupt page must not abort the batch.
			o.logger.Error("pipeline.page.render_failed", "url", doc.URL, "page", page.Index, "error", err)
			rec = entity.ExtractionRecord{
				DocumentURL: doc.URL,
				PageIndex:   page.Index,
				Status:      constants.StatusFailed,
				FailReason:  err.Error(),
			}
		} else {
			var halted bool
			rec, halted = o.processPage(ctx, doc, page)
			if halted {
				return true
			}
		}

		if err := o.sink.Append(ctx, rec); err != nil {
			o.logger.Error("pipeline.sink.append_failed", "url", doc.URL, "page", page.Index, "error", err)
			o.recordHalt(constants.HaltSinkError, err)
			return true
		}
		o.state.CurrentPage = page.Index + 1
		page.PNG = nil

		if o.cfg.PagePause > 0 {
			if err := o.sleep(ctx, o.cfg.PagePause); err != nil {
				o.recordHalt(constants.HaltCanceled, err)
				return true
			}
		}
	}
}

// processPage classifies one page and, only when a target language is
// present, transcribes it. Halts surface as halted=true with no record.
func (o *Orchestrator) processPage(ctx context.Context, doc *entity.Document, page *entity.Page) (entity.ExtractionRecord, bool) {
	presence, model, err := o.classify.Run(ctx, page)
	if err != nil {
		o.recordHalt(haltReasonFor(err), err)
		return entity.ExtractionRecord{}, true
	}

	if !presence.HasTarget() {
		return entity.ExtractionRecord{
			DocumentURL: doc.URL,
			PageIndex:   page.Index,
			Model:       model,
			Status:      constants.StatusSkipped,
		}, false
	}

	tr, model, err := o.transcribe.Run(ctx, page)
	if err != nil {
		o.recordHalt(haltReasonFor(err), err)
		return entity.ExtractionRecord{}, true
	}
	if !tr.Parsed {
		return entity.ExtractionRecord{
			DocumentURL: doc.URL,
			PageIndex:   page.Index,
			Model:       model,
			Status:      constants.StatusFailed,
			FailReason:  "response contained neither section label",
		}, false
	}
	return entity.ExtractionRecord{
		DocumentURL: doc.URL,
		PageIndex:   page.Index,
		KhmerText:   CleanText(tr.KhmerText),
		EnglishText: CleanText(tr.EnglishText),
		Model:       model,
		Status:      constants.StatusSuccess,
	}, false
}

func (o *Orchestrator) recordHalt(reason constants.HaltReason, cause error) {
	if o.state.Halted() {
		return
	}
	o.state.HaltReason = reason
	o.logger.Error("pipeline.halt",
		"run_id", o.state.RunID,
		"reason", reason,
		"document_index", o.state.DocumentIndex,
		"current_page", o.state.CurrentPage,
		"error", cause,
	)
}

// haltReasonFor maps a stage error to the terminal reason reported for the
// run.
func haltReasonFor(err error) constants.HaltReason {
	switch {
	case errors.Is(err, governor.ErrHalted):
		if gemini.KindOf(err) == gemini.FailureUnauthorized {
			return constants.HaltAuth
		}
		return constants.HaltQuota
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return constants.HaltCanceled
	default:
		return constants.HaltQuota
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
