package session

import (
	"math/rand"
	"time"
)

// maxBackoffShift caps the exponent so the shift cannot overflow a
// time.Duration even with pathological attempt counts.
const maxBackoffShift = 16

// RetryDelay computes the backoff delay before the retry that follows failed
// attempt number attempt (zero-based):
//
//	delay = base * 2^attempt + uniform(0, jitterFraction * base * 2^attempt)
//
// The function is pure given a seeded rng, which keeps the formula
// property-testable without spawning processes. A nil rng disables jitter.
func RetryDelay(attempt int, base time.Duration, jitterFraction float64, rng *rand.Rand) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}
	if base <= 0 {
		return 0
	}

	delay := base << uint(attempt)
	if rng == nil || jitterFraction <= 0 {
		return delay
	}

	jitter := time.Duration(rng.Float64() * jitterFraction * float64(delay))
	return delay + jitter
}
