package domain

import "time"

// Exception is a timed allowance that suspends blocking for one site.
type Exception struct {
	Site  Site
	Until time.Time
}

// Live reports whether the exception is still in effect at now. Expiry is
// exact: an exception whose deadline equals now is no longer live.
func (e Exception) Live(now time.Time) bool {
	return e.Until.After(now)
}

// Remaining returns the time left before expiry, clamped at zero.
func (e Exception) Remaining(now time.Time) time.Duration {
	if d := e.Until.Sub(now); d > 0 {
		return d
	}
	return 0
}
