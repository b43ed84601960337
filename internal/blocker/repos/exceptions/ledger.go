// Package exceptions tracks timed allowances keyed by site.
package exceptions

import (
	"fmt"
	"sort"
	"time"

	"github.com/dzli1/blocking/internal/blocker/domain"
)

// Ledger holds at most one exception per site; granting again replaces the
// earlier deadline unconditionally. It is not safe for concurrent use; the
// engine serializes all access under its own lock.
type Ledger struct {
	entries map[domain.Site]domain.Exception
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{entries: make(map[domain.Site]domain.Exception)}
}

// Grant records an exception lasting minutes from now, replacing any
// earlier one for the same site. Non-positive durations are rejected with
// ErrInvalidDuration before any state changes.
func (l *Ledger) Grant(site domain.Site, minutes int, now time.Time) (domain.Exception, error) {
	if minutes <= 0 {
		return domain.Exception{}, fmt.Errorf("%w: %d minutes", domain.ErrInvalidDuration, minutes)
	}
	e := domain.Exception{
		Site:  site,
		Until: now.Add(time.Duration(minutes) * time.Minute),
	}
	l.entries[site] = e
	return e, nil
}

// Restore inserts an exception as loaded from disk. When the site already
// has one, the later deadline wins.
func (l *Ledger) Restore(e domain.Exception) {
	if cur, ok := l.entries[e.Site]; ok && cur.Until.After(e.Until) {
		return
	}
	l.entries[e.Site] = e
}

// Revoke drops the exception for site and reports whether one existed.
func (l *Ledger) Revoke(site domain.Site) bool {
	if _, ok := l.entries[site]; !ok {
		return false
	}
	delete(l.entries, site)
	return true
}

// IsLive reports whether site has an unexpired exception at now.
func (l *Ledger) IsLive(site domain.Site, now time.Time) bool {
	e, ok := l.entries[site]
	return ok && e.Live(now)
}

// PurgeExpired drops every exception at or past its deadline and returns
// how many were removed.
func (l *Ledger) PurgeExpired(now time.Time) int {
	n := 0
	for site, e := range l.entries {
		if !e.Live(now) {
			delete(l.entries, site)
			n++
		}
	}
	return n
}

// List returns all exceptions, live or not, sorted by site.
func (l *Ledger) List() []domain.Exception {
	out := make([]domain.Exception, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Site < out[j].Site
	})
	return out
}

// Len returns the number of entries, live or not.
func (l *Ledger) Len() int {
	return len(l.entries)
}
