package constants

// RecordStatus is the canonical status for a processed page record.
type RecordStatus string

// Stable values (store these exact strings in checkpoint rows and output files).
const (
	StatusSuccess RecordStatus = "SUCCESS" // page transcribed (possibly one language empty)
	StatusSkipped RecordStatus = "SKIPPED" // page classified as containing no target language
	StatusFailed  RecordStatus = "FAILED"  // model response unusable for this page
)

// HaltReason explains why a run stopped before exhausting its documents.
type HaltReason string

const (
	HaltNone      HaltReason = ""
	HaltQuota     HaltReason = "QUOTA_EXHAUSTED"
	HaltAuth      HaltReason = "UNAUTHORIZED"
	HaltCanceled  HaltReason = "CANCELED"
	HaltSinkError HaltReason = "SINK_ERROR"
)
