package journal

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T, max int) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), max)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestAppendAndRecent(t *testing.T) {
	j := openTemp(t, 100)

	base := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, j.Append(Event{
			Time:   base.Add(time.Duration(i) * time.Minute),
			Kind:   KindCommand,
			Action: "add_site",
			Site:   fmt.Sprintf("site%d.com", i),
		}))
	}

	got, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// newest first
	assert.Equal(t, "site2.com", got[0].Site)
	assert.Equal(t, "site1.com", got[1].Site)
	assert.Equal(t, "site0.com", got[2].Site)
	assert.Equal(t, KindCommand, got[0].Kind)
	assert.True(t, got[0].Time.Equal(base.Add(2*time.Minute)))
}

func TestRecentHonorsLimit(t *testing.T) {
	j := openTemp(t, 100)
	for i := 0; i < 5; i++ {
		require.NoError(t, j.Append(Event{Kind: KindReconcile, Action: "tick", Detail: fmt.Sprint(i)}))
	}

	got, err := j.Recent(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "4", got[0].Detail)
	assert.Equal(t, "3", got[1].Detail)

	empty, err := j.Recent(0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCapEvictsOldest(t *testing.T) {
	j := openTemp(t, 3)
	for i := 0; i < 10; i++ {
		require.NoError(t, j.Append(Event{Kind: KindCommand, Action: "toggle", Detail: fmt.Sprint(i)}))
	}

	n, err := j.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "9", got[0].Detail)
	assert.Equal(t, "7", got[2].Detail, "oldest surviving entry")
}

func TestEventsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path, 10)
	require.NoError(t, err)
	require.NoError(t, j.Append(Event{Kind: KindCommand, Action: "add_site", Site: "example.com"}))
	require.NoError(t, j.Close())

	j2, err := Open(path, 10)
	require.NoError(t, err)
	defer j2.Close()

	got, err := j2.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "example.com", got[0].Site)
}

func TestZeroMaxDisablesCap(t *testing.T) {
	j := openTemp(t, 0)
	for i := 0; i < 20; i++ {
		require.NoError(t, j.Append(Event{Kind: KindReconcile, Action: "tick"}))
	}
	n, err := j.Len()
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}
