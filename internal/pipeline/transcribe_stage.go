package pipeline

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/davuth-chan/khmerscribe/internal/config"
	"github.com/davuth-chan/khmerscribe/internal/entity"
	"github.com/davuth-chan/khmerscribe/internal/gemini"
)

// Transcription is the parsed extraction output for one page. A missing or
// "None" section is an empty string, not a failure; Parsed is false only when
// the response carried neither section label.
type Transcription struct {
	KhmerText   string
	EnglishText string
	Parsed      bool
}

// TranscribeStage runs the extraction-tier OCR call and parses its labeled
// sections.
type TranscribeStage struct {
	Governor ModelInvoker
	Logger   *slog.Logger
}

func NewTranscribeStage(gov ModelInvoker, logger *slog.Logger) *TranscribeStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &TranscribeStage{Governor: gov, Logger: logger}
}

// Run transcribes one page already known to contain target-language text.
func (s *TranscribeStage) Run(ctx context.Context, page *entity.Page) (Transcription, string, error) {
	text, model, err := s.Governor.Invoke(ctx, config.TierExtraction, gemini.ExtractionPrompt, page.PNG)
	if err != nil {
		return Transcription{}, "", err
	}
	tr := parseSections(text)
	s.Logger.Info("pipeline.transcribe.ok",
		"page", page.Index,
		"model", model,
		"parsed", tr.Parsed,
		"khmer_len", len(tr.KhmerText),
		"english_len", len(tr.EnglishText),
	)
	return tr, model, nil
}

var (
	englishLabel = regexp.QuoteMeta(gemini.EnglishLabel)
	khmerLabel   = regexp.QuoteMeta(gemini.KhmerLabel)

	englishSectionRe = regexp.MustCompile(`(?is)` + englishLabel + `(.*?)(` + khmerLabel + `|$)`)
	khmerSectionRe   = regexp.MustCompile(`(?is)` + khmerLabel + `(.*?)(` + englishLabel + `|$)`)
)

// parseSections splits a labeled response into its two language sections.
// Models sometimes wrap the sections in chatty preamble or page separators;
// those lines are dropped before matching.
func parseSections(text string) Transcription {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--- Page") {
			continue
		}
		if strings.Contains(line, "Here's a transcription of the text") {
			continue
		}
		kept = append(kept, line)
	}
	cleaned := strings.Join(kept, "\n")

	var tr Transcription
	if m := englishSectionRe.FindStringSubmatch(cleaned); m != nil {
		tr.Parsed = true
		tr.EnglishText = normalizeSection(m[1])
	}
	if m := khmerSectionRe.FindStringSubmatch(cleaned); m != nil {
		tr.Parsed = true
		tr.KhmerText = normalizeSection(m[1])
	}
	return tr
}

// normalizeSection trims a section body and maps the literal "None" marker to
// empty.
func normalizeSection(body string) string {
	body = strings.TrimSpace(body)
	if strings.EqualFold(body, "none") {
		return ""
	}
	return body
}
