package engine

import (
	"time"

	"github.com/dzli1/blocking/internal/blocker/domain"
	"github.com/dzli1/blocking/internal/blocker/repos/exceptions"
)

// Resolve derives the effective blocklist: every listed site unless the
// master switch is off or a live exception covers it. The result order
// follows the input order and the inputs are never modified.
func Resolve(sites []domain.Site, ledger *exceptions.Ledger, enabled bool, now time.Time) []domain.Site {
	if !enabled {
		return nil
	}
	out := make([]domain.Site, 0, len(sites))
	for _, site := range sites {
		if ledger.IsLive(site, now) {
			continue
		}
		out = append(out, site)
	}
	return out
}
