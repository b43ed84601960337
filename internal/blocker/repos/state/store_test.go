package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dzli1/blocking/internal/blocker/domain"
)

func TestLoadMissingFile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "state.json"))

	doc, err := s.Load()
	require.NoError(t, err, "a missing file is not an error")
	assert.Nil(t, doc)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocking", "state.json")
	s := New(path)

	until := time.Date(2025, time.June, 1, 9, 30, 0, 0, time.UTC)
	in := &Document{
		Enabled: true,
		Blocked: []string{"example.com", "reddit.com"},
		Exceptions: []ExceptionRecord{
			{Site: "example.com", Until: Timestamp(until)},
		},
	}
	require.NoError(t, s.Save(in), "save should create the parent directory")

	out, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, in.Enabled, out.Enabled)
	assert.Equal(t, in.Blocked, out.Blocked)
	require.Len(t, out.Exceptions, 1)
	assert.Equal(t, "example.com", out.Exceptions[0].Site)
	assert.True(t, out.Exceptions[0].Until.Time().Equal(until))
}

func TestSaveWritesRFC3339(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := New(path)

	until := time.Date(2025, time.June, 1, 9, 30, 0, 0, time.UTC)
	doc := &Document{
		Enabled:    false,
		Blocked:    []string{"example.com"},
		Exceptions: []ExceptionRecord{{Site: "example.com", Until: Timestamp(until)}},
	}
	require.NoError(t, s.Save(doc))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"2025-06-01T09:30:00Z"`)
	assert.True(t, strings.HasSuffix(string(raw), "\n"), "document ends with a newline")
}

func TestLoadLegacyNaiveTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	legacy := `{
  "enabled": true,
  "blocked_sites": ["example.com"],
  "exceptions": [
    {"site": "example.com", "until": "2025-06-01T09:30:00.123456"},
    {"site": "reddit.com", "until": "2025-06-01T10:00:00"}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	doc, err := New(path).Load()
	require.NoError(t, err)
	require.Len(t, doc.Exceptions, 2)

	// zoneless timestamps are taken as local time
	want := time.Date(2025, time.June, 1, 9, 30, 0, 123456000, time.Local)
	assert.True(t, doc.Exceptions[0].Until.Time().Equal(want),
		"got %v want %v", doc.Exceptions[0].Until.Time(), want)
	assert.True(t, doc.Exceptions[1].Until.Time().Equal(time.Date(2025, time.June, 1, 10, 0, 0, 0, time.Local)))
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("not json{"), 0o600))

	_, err := New(path).Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	bad := `{"enabled":true,"blocked_sites":[],"exceptions":[{"site":"x.com","until":"yesterday"}]}`
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o600))

	_, err := New(path).Load()
	assert.Error(t, err)
}

func TestSaveReplacesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := New(path)

	require.NoError(t, s.Save(&Document{Enabled: true, Blocked: []string{"a.com"}}))
	require.NoError(t, s.Save(&Document{Enabled: false, Blocked: []string{"b.com"}}))

	doc, err := s.Load()
	require.NoError(t, err)
	assert.False(t, doc.Enabled)
	assert.Equal(t, []string{"b.com"}, doc.Blocked)

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

func TestSaveIntoUnwritableDirFails(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o600))

	// parent path is a regular file, MkdirAll must fail
	s := New(filepath.Join(blocked, "state.json"))
	err := s.Save(&Document{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStatePersist)
}
