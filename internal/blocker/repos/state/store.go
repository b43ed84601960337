// Package state persists the daemon state document as JSON on disk.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dzli1/blocking/internal/blocker/domain"
)

// Document is the on-disk shape of daemon state. Site strings are stored
// as persisted and normalized again on load, so hand-edited or legacy
// entries are tolerated.
type Document struct {
	Enabled    bool              `json:"enabled"`
	Blocked    []string          `json:"blocked_sites"`
	Exceptions []ExceptionRecord `json:"exceptions"`
}

// ExceptionRecord pairs a site with its expiry deadline.
type ExceptionRecord struct {
	Site  string    `json:"site"`
	Until Timestamp `json:"until"`
}

// Timestamp carries exception deadlines through JSON. It writes RFC 3339
// and additionally accepts the zoneless local timestamps older builds
// wrote, so existing state files keep loading.
type Timestamp time.Time

// zoneless layout written by older builds; Go's parser also accepts a
// fractional second after the seconds field without it being in the layout
const naiveLayout = "2006-01-02T15:04:05"

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		*t = Timestamp(ts)
		return nil
	}
	ts, err := time.ParseInLocation(naiveLayout, s, time.Local)
	if err != nil {
		return fmt.Errorf("unrecognized timestamp %q", s)
	}
	*t = Timestamp(ts)
	return nil
}

// Time returns the underlying time value.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// Store reads and writes the document at a fixed path.
type Store struct {
	path string
}

// New returns a store bound to path. Nothing is touched on disk until the
// first Load or Save.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the location of the state document.
func (s *Store) Path() string {
	return s.path
}

// Load reads the document. A missing file returns (nil, nil) so the caller
// can seed defaults; a present but unreadable or unparsable file is an
// error.
func (s *Store) Load() (*Document, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state %s: %w", s.path, err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing state %s: %w", s.path, err)
	}
	return &doc, nil
}

// Save writes the document atomically via a temp file in the same
// directory, creating the directory on first use. Failures are reported
// as ErrStatePersist.
func (s *Store) Save(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStatePersist, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStatePersist, err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStatePersist, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %w", domain.ErrStatePersist, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %w", domain.ErrStatePersist, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStatePersist, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStatePersist, err)
	}
	return nil
}
