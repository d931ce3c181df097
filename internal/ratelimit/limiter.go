// Package ratelimit enforces the minimum wall-clock interval between two
// accepted captures.
package ratelimit

import "time"

// Limiter tracks the time of the last confirmed capture and gates new
// candidates against a minimum interval. The zero last-accept time means the
// first candidate always passes.
//
// Allow is advisory: the caller must invoke Record only after the capture has
// actually been forwarded downstream. A failed forward leaves the clock
// untouched so the next qualifying frame can retry immediately.
type Limiter struct {
	minInterval time.Duration
	lastAccept  time.Time
}

// New returns a Limiter enforcing the given minimum interval between accepts.
func New(minInterval time.Duration) *Limiter {
	return &Limiter{minInterval: minInterval}
}

// Allow reports whether a capture at the given instant satisfies the minimum
// interval since the last recorded capture. The boundary is inclusive: a
// candidate exactly minInterval after the last accept is allowed.
func (l *Limiter) Allow(now time.Time) bool {
	return now.Sub(l.lastAccept) >= l.minInterval
}

// Record marks a confirmed capture at the given instant.
func (l *Limiter) Record(now time.Time) {
	l.lastAccept = now
}

// LastAccept returns the time of the last recorded capture. Zero if no
// capture has been recorded yet.
func (l *Limiter) LastAccept() time.Time {
	return l.lastAccept
}
