package entity

import (
	"github.com/google/uuid"

	"github.com/davuth-chan/khmerscribe/constants"
)

// RunState is the single run's cursor. CurrentPage is always the next page
// index not yet appended for the current document, which is what makes an
// abort-and-resume safe.
type RunState struct {
	RunID         uuid.UUID            `json:"run_id"`
	DocumentIndex int                  `json:"document_index"`
	CurrentPage   int                  `json:"current_page"`
	MemoryPauses  int                  `json:"memory_pauses"`
	HaltReason    constants.HaltReason `json:"halt_reason,omitempty"`
}

// NewRunState returns a fresh cursor with a run identity for log correlation.
func NewRunState() *RunState {
	return &RunState{RunID: uuid.New()}
}

// Halted reports whether a terminal reason has been recorded.
func (s *RunState) Halted() bool {
	return s.HaltReason != constants.HaltNone
}
