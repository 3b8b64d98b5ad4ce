package entity

// Document is one remote PDF being processed. The orchestrator owns it for
// the duration of its pages and discards it afterwards.
type Document struct {
	URL       string `json:"url"`
	LocalPath string `json:"local_path"`
	PageCount int    `json:"page_count"`
	Skipped   bool   `json:"skipped"`
}

// Page is a single rendered page. Exactly one Page is resident at a time;
// the image bytes are released as soon as the page's record is appended.
type Page struct {
	Index int    `json:"index"` // 0-based
	PNG   []byte `json:"-"`
}
