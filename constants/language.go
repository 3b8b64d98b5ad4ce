package constants

import "strings"

// LanguagePresence is the classification outcome for one page.
type LanguagePresence string

const (
	PresenceKhmer   LanguagePresence = "KHMER"
	PresenceEnglish LanguagePresence = "ENGLISH"
	PresenceBoth    LanguagePresence = "BOTH"
	PresenceNone    LanguagePresence = "NONE"
)

// ParseLanguagePresence maps a model token to a presence value. Anything
// unrecognized is PresenceNone so a garbled response never routes a page to
// the extraction tier.
func ParseLanguagePresence(token string) LanguagePresence {
	switch LanguagePresence(strings.ToUpper(strings.Trim(strings.TrimSpace(token), ".\"'`"))) {
	case PresenceKhmer:
		return PresenceKhmer
	case PresenceEnglish:
		return PresenceEnglish
	case PresenceBoth:
		return PresenceBoth
	default:
		return PresenceNone
	}
}

// HasTarget reports whether the page carries any language worth extracting.
func (p LanguagePresence) HasTarget() bool {
	return p == PresenceKhmer || p == PresenceEnglish || p == PresenceBoth
}
