package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateRejectsNegativeArguments(t *testing.T) {
	s, err := New(t.TempDir(), "n1", nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Update(-1, 1, 1)
	assert.Error(t, err)

	_, err = s.Update(1, 1, -1)
	assert.Error(t, err)
}

func TestUpdateIsMonotone(t *testing.T) {
	s, err := New(t.TempDir(), "n1", nil)
	require.NoError(t, err)
	defer s.Close()

	item, err := s.Update(7, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, item.Version)

	// Stale write is ignored; the stored (newer) item is returned.
	item, err = s.Update(7, 99, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, item.Version)
	assert.Equal(t, 1, item.Value)

	item, err = s.Update(7, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, item.Version)
	assert.Equal(t, 2, item.Value)

	got, ok := s.Get(7)
	require.True(t, ok)
	assert.Equal(t, 2, got.Version)
}

func TestNextVersionIsStrictlyIncreasing(t *testing.T) {
	s, err := New(t.TempDir(), "n1", nil)
	require.NoError(t, err)
	defer s.Close()

	a := s.NextVersion()
	b := s.NextVersion()
	c := s.NextVersion()
	assert.Less(t, a, b)
	assert.Less(t, b, c)
}

func TestRecentUpdatesPreservesApplyOrder(t *testing.T) {
	s, err := New(t.TempDir(), "n1", nil)
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 5; i++ {
		_, err := s.Update(i, i*10, i+1)
		require.NoError(t, err)
	}

	recent := s.RecentUpdates(3)
	require.Len(t, recent, 3)
	assert.Equal(t, 2, recent[0].Key)
	assert.Equal(t, 3, recent[1].Key)
	assert.Equal(t, 4, recent[2].Key)
}

func TestReplayRebuildsStateAcrossRestart(t *testing.T) {
	dir := t.TempDir()

	s1, err := New(dir, "n1", nil)
	require.NoError(t, err)
	_, err = s1.Update(1, 10, 1)
	require.NoError(t, err)
	_, err = s1.Update(1, 20, 2)
	require.NoError(t, err)
	_, err = s1.Update(2, 30, 1)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := New(dir, "n1", nil)
	require.NoError(t, err)
	defer s2.Close()

	item, ok := s2.Get(1)
	require.True(t, ok)
	assert.Equal(t, 20, item.Value)
	assert.Equal(t, 2, item.Version)

	item, ok = s2.Get(2)
	require.True(t, ok)
	assert.Equal(t, 30, item.Value)

	// NextVersion must resume past the highest version seen in the log.
	assert.GreaterOrEqual(t, s2.NextVersion(), 3)
}

func TestCompareOrdersByVersionThenTimestamp(t *testing.T) {
	a := DataItem{Version: 1, Timestamp: 100}
	b := DataItem{Version: 2, Timestamp: 50}
	assert.Equal(t, After, Compare(b, a))
	assert.Equal(t, Before, Compare(a, b))

	c := DataItem{Version: 1, Timestamp: 100}
	d := DataItem{Version: 1, Timestamp: 200}
	assert.Equal(t, Before, Compare(c, d))
	assert.Equal(t, Equal, Compare(c, c))
}
