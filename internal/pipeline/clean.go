package pipeline

import (
	"regexp"
	"strings"
)

// leadingNoiseRe matches list numbering, bullets, and stray punctuation at
// the start of a transcribed line. Letter classes are spelled out because
// \W would also match Khmer script.
var leadingNoiseRe = regexp.MustCompile(`^[\p{N}\p{P}\p{S}\s_]+`)

// CleanLine strips leading numbering/bullets/punctuation from one line.
func CleanLine(line string) string {
	return strings.TrimSpace(leadingNoiseRe.ReplaceAllString(line, ""))
}

// CleanText applies CleanLine per line and drops lines that are empty after
// cleaning, preserving the remaining line order.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		if cleaned := CleanLine(line); cleaned != "" {
			kept = append(kept, cleaned)
		}
	}
	return strings.Join(kept, "\n")
}
