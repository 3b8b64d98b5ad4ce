package governor

import (
	"math/rand"
	"time"
)

// Backoff returns a duration for transient-retry attempt n (0-indexed) with
// jitter, capped at 30s. The exponent is clamped before the shift so a large
// attempt count cannot overflow into a negative duration.
func Backoff(attempt int) time.Duration {
	if attempt > 5 {
		attempt = 5
	}
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	return base + jitter
}
