package engine

import (
	"github.com/dzli1/blocking/internal/blocker/domain"
	"github.com/dzli1/blocking/internal/blocker/repos/journal"
	"github.com/dzli1/blocking/internal/blocker/repos/state"
)

// Enforcer projects an effective blocklist onto the hosts table.
type Enforcer interface {
	// Apply rewrites the managed region to exactly the given sites.
	Apply(sites []domain.Site) (domain.EnforceResult, error)
	// Clear removes the managed region entirely.
	Clear() (domain.EnforceResult, error)
}

// StatePersister loads and saves the durable state document.
type StatePersister interface {
	Load() (*state.Document, error)
	Save(*state.Document) error
}

// Recorder appends events to the activity journal.
type Recorder interface {
	Append(ev journal.Event) error
}
