package domain

import "time"

// ExceptionView is the API representation of one exception.
type ExceptionView struct {
	Site      string    `json:"site"`
	Until     time.Time `json:"until"`
	Remaining string    `json:"remaining"`
}

// NewExceptionView renders an exception relative to now.
func NewExceptionView(e Exception, now time.Time) ExceptionView {
	return ExceptionView{
		Site:      string(e.Site),
		Until:     e.Until,
		Remaining: e.Remaining(now).Truncate(time.Second).String(),
	}
}

// Status is a point-in-time snapshot of daemon state as returned by every
// command. Slices are always non-nil so the JSON encoding stays stable.
type Status struct {
	Enabled    bool            `json:"enabled"`
	Blocked    []string        `json:"blocked_sites"`
	Exceptions []ExceptionView `json:"exceptions"`
	Effective  []string        `json:"effective_blocklist"`
}
