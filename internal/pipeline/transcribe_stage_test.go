package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davuth-chan/khmerscribe/internal/entity"
	"github.com/davuth-chan/khmerscribe/internal/gemini"
)

// The parser's section regexes are built from the same label consts the
// extraction prompt asks the model to emit.
func TestExtractionPromptCarriesSectionLabels(t *testing.T) {
	assert.Contains(t, gemini.ExtractionPrompt, gemini.EnglishLabel)
	assert.Contains(t, gemini.ExtractionPrompt, gemini.KhmerLabel)
}

func TestParseSectionsBothPresent(t *testing.T) {
	tr := parseSections("English_Text:\nMinistry of Health\nKhmer_Text:\nក្រសួងសុខាភិបាល\n")
	assert.True(t, tr.Parsed)
	assert.Equal(t, "Ministry of Health", tr.EnglishText)
	assert.Equal(t, "ក្រសួងសុខាភិបាល", tr.KhmerText)
}

func TestParseSectionsKhmerFirst(t *testing.T) {
	tr := parseSections("Khmer_Text:\nសេចក្តីជូនដំណឹង\nEnglish_Text:\nAnnouncement\n")
	assert.True(t, tr.Parsed)
	assert.Equal(t, "Announcement", tr.EnglishText)
	assert.Equal(t, "សេចក្តីជូនដំណឹង", tr.KhmerText)
}

func TestParseSectionsNoneMarkerIsEmptyNotFailed(t *testing.T) {
	tr := parseSections("English_Text:\nRoyal Government of Cambodia\nKhmer_Text:\nNone")
	assert.True(t, tr.Parsed)
	assert.Equal(t, "Royal Government of Cambodia", tr.EnglishText)
	assert.Empty(t, tr.KhmerText)
}

func TestParseSectionsSingleLabelOnly(t *testing.T) {
	tr := parseSections("English_Text: Some English only response")
	assert.True(t, tr.Parsed)
	assert.Equal(t, "Some English only response", tr.EnglishText)
	assert.Empty(t, tr.KhmerText)
}

func TestParseSectionsNeitherLabel(t *testing.T) {
	tr := parseSections("I could not find any readable text in this image.")
	assert.False(t, tr.Parsed)
}

func TestParseSectionsDropsBoilerplate(t *testing.T) {
	tr := parseSections("Here's a transcription of the text from the image:\n" +
		"--- Page 1 ---\n" +
		"English_Text:\nHello\nKhmer_Text:\nសួស្តី\n")
	assert.True(t, tr.Parsed)
	assert.Equal(t, "Hello", tr.EnglishText)
	assert.Equal(t, "សួស្តី", tr.KhmerText)
}

func TestParseSectionsCaseInsensitiveLabels(t *testing.T) {
	tr := parseSections("english_text: lower label\nkhmer_text: none")
	assert.True(t, tr.Parsed)
	assert.Equal(t, "lower label", tr.EnglishText)
	assert.Empty(t, tr.KhmerText)
}

func TestTranscribeStageRun(t *testing.T) {
	gov := &stubGovernor{text: "English_Text:\nInvoice\nKhmer_Text:\nវិក្កយបត្រ", model: "ext-model"}
	stage := NewTranscribeStage(gov, nil)

	tr, model, err := stage.Run(context.Background(), &entity.Page{Index: 2, PNG: []byte("png")})
	require.NoError(t, err)
	assert.Equal(t, "ext-model", model)
	assert.True(t, tr.Parsed)
	assert.Equal(t, "Invoice", tr.EnglishText)
	assert.Equal(t, "វិក្កយបត្រ", tr.KhmerText)
}
