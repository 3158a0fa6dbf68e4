package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlabs/driftroute/internal/strategy"
)

func sampleSnapshot() strategy.Snapshot {
	return strategy.Snapshot{
		Values: map[string]map[string]float64{
			"question|moderate|normal|medium|low": {
				"local|direct|medium":    0.75,
				"external|detailed|high": -0.2,
			},
		},
		Visits: map[string]map[string]int{
			"question|moderate|normal|medium|low": {
				"local|direct|medium": 42,
			},
		},
		Epsilon:     0.05,
		UpdateCount: 1234,
	}
}

func TestBadgerStore_RoundTrip(t *testing.T) {
	s, err := NewBadgerStore("", true)
	require.NoError(t, err)
	defer s.Close()

	_, found, err := s.LoadSnapshot()
	require.NoError(t, err)
	assert.False(t, found, "fresh store should have no snapshot")

	want := sampleSnapshot()
	require.NoError(t, s.SaveSnapshot(want))

	got, found, err := s.LoadSnapshot()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want, got)
}

func TestBadgerStore_OverwritesPreviousSnapshot(t *testing.T) {
	s, err := NewBadgerStore("", true)
	require.NoError(t, err)
	defer s.Close()

	first := sampleSnapshot()
	require.NoError(t, s.SaveSnapshot(first))

	second := sampleSnapshot()
	second.UpdateCount = 9999
	require.NoError(t, s.SaveSnapshot(second))

	got, found, err := s.LoadSnapshot()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(9999), got.UpdateCount)
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := NewBadgerStore(dir, false)
	require.NoError(t, err)
	require.NoError(t, s.SaveSnapshot(sampleSnapshot()))
	require.NoError(t, s.Close())

	reopened, err := NewBadgerStore(dir, false)
	require.NoError(t, err)
	defer reopened.Close()

	got, found, err := reopened.LoadSnapshot()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sampleSnapshot(), got)
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	s := NewMemoryStore()

	_, found, err := s.LoadSnapshot()
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SaveSnapshot(sampleSnapshot()))
	got, found, err := s.LoadSnapshot()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sampleSnapshot(), got)
}
