// Package blocklist holds the authoritative in-memory set of blocked sites.
package blocklist

import (
	"sort"

	"github.com/dzli1/blocking/internal/blocker/domain"
)

// Store is the set of blocked sites plus the master enable switch. It is
// not safe for concurrent use; the engine serializes all access under its
// own lock.
type Store struct {
	sites   map[domain.Site]struct{}
	enabled bool
}

// New returns an empty store with blocking enabled.
func New() *Store {
	return &Store{
		sites:   make(map[domain.Site]struct{}),
		enabled: true,
	}
}

// Add inserts a site and reports whether it was newly added.
func (s *Store) Add(site domain.Site) bool {
	if _, ok := s.sites[site]; ok {
		return false
	}
	s.sites[site] = struct{}{}
	return true
}

// Remove deletes a site and reports whether it was present.
func (s *Store) Remove(site domain.Site) bool {
	if _, ok := s.sites[site]; !ok {
		return false
	}
	delete(s.sites, site)
	return true
}

// Contains reports whether the site is on the blocklist.
func (s *Store) Contains(site domain.Site) bool {
	_, ok := s.sites[site]
	return ok
}

// Len returns the number of blocked sites.
func (s *Store) Len() int {
	return len(s.sites)
}

// Enabled reports the master switch.
func (s *Store) Enabled() bool {
	return s.enabled
}

// SetEnabled sets the master switch and reports whether the value changed.
func (s *Store) SetEnabled(v bool) bool {
	if s.enabled == v {
		return false
	}
	s.enabled = v
	return true
}

// List returns all blocked sites grouped by registrable domain, groups in
// alphabetical order and entries alphabetical within each group.
func (s *Store) List() []domain.Site {
	out := make([]domain.Site, 0, len(s.sites))
	for site := range s.sites {
		out = append(out, site)
	}
	sort.Slice(out, func(i, j int) bool {
		bi, bj := out[i].BaseDomain(), out[j].BaseDomain()
		if bi != bj {
			return bi < bj
		}
		return out[i] < out[j]
	})
	return out
}
