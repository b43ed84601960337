package domain

import "errors"

// Sentinel errors shared across the daemon. Wrap them with %w so callers
// can classify failures with errors.Is.
var (
	// ErrInvalidSite rejects input that does not normalize to a usable hostname.
	ErrInvalidSite = errors.New("invalid site")

	// ErrInvalidDuration rejects non-positive exception durations.
	ErrInvalidDuration = errors.New("invalid exception duration")

	// ErrTableAccess reports that the hosts table could not be read or replaced.
	ErrTableAccess = errors.New("hosts table access denied")

	// ErrTableCorrupt reports unpaired or duplicated region markers in the
	// hosts table. The table is never modified in this state.
	ErrTableCorrupt = errors.New("hosts table markers corrupt")

	// ErrStatePersist reports a failure to write the state document.
	ErrStatePersist = errors.New("state persist failed")
)
