package entity

import (
	"github.com/davuth-chan/khmerscribe/constants"
)

// ExtractionRecord is the output unit for one processed page. Immutable once
// built; appended exactly once per page.
type ExtractionRecord struct {
	DocumentURL string                 `json:"document_url"`
	PageIndex   int                    `json:"page_index"` // 0-based
	KhmerText   string                 `json:"khmer_text"`
	EnglishText string                 `json:"english_text"`
	Model       string                 `json:"model,omitempty"`
	Status      constants.RecordStatus `json:"status"`
	FailReason  string                 `json:"fail_reason,omitempty"`
}
