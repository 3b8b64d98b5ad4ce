package pipeline

import (
	"context"
	"log/slog"

	"github.com/davuth-chan/khmerscribe/constants"
	"github.com/davuth-chan/khmerscribe/internal/config"
	"github.com/davuth-chan/khmerscribe/internal/entity"
	"github.com/davuth-chan/khmerscribe/internal/gemini"
)

// ModelInvoker is the governed remote model capability: prompt plus image in,
// response text plus the serving model out.
type ModelInvoker interface {
	Invoke(ctx context.Context, tier config.Tier, prompt string, png []byte) (text string, model string, err error)
}

// ClassifyStage decides which target languages a page contains, spending only
// detection-tier budget. Every page goes through here so that the extraction
// tier is never burned on blank or other-language pages.
type ClassifyStage struct {
	Governor ModelInvoker
	Logger   *slog.Logger
}

func NewClassifyStage(gov ModelInvoker, logger *slog.Logger) *ClassifyStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClassifyStage{Governor: gov, Logger: logger}
}

// Run classifies one page. An unparseable response maps to PresenceNone:
// skipping a page is cheaper than mis-routing it to extraction.
func (s *ClassifyStage) Run(ctx context.Context, page *entity.Page) (constants.LanguagePresence, string, error) {
	text, model, err := s.Governor.Invoke(ctx, config.TierDetection, gemini.DetectionPrompt, page.PNG)
	if err != nil {
		return constants.PresenceNone, "", err
	}
	presence := constants.ParseLanguagePresence(text)
	s.Logger.Info("pipeline.classify.ok",
		"page", page.Index,
		"presence", presence,
		"model", model,
	)
	return presence, model, nil
}
