package api

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLookup(t *testing.T) {
	s := testStore()

	b, ok := s.Boundary(1234)
	require.True(t, ok)
	assert.Equal(t, "Testville", b.Name)

	_, ok = s.Boundary(1)
	assert.False(t, ok)

	assert.Len(t, s.Boundaries(), 2)
}

func TestStoreSearch(t *testing.T) {
	s := testStore()

	got := s.Search(orb.Bound{Min: orb.Point{-72, 1}, Max: orb.Point{104, 43}})
	require.Len(t, got, 2)
	assert.Equal(t, int64(1234), got[0].RelationID)
	assert.Len(t, got[0].Paths, 2)
	assert.Equal(t, int64(99), got[1].RelationID)

	// A point query inside the ring's bounding box.
	got = s.Search(orb.Bound{Min: orb.Point{-71.05, 42.35}, Max: orb.Point{-71.05, 42.35}})
	require.Len(t, got, 1)
	require.Len(t, got[0].Paths, 1)
	assert.True(t, got[0].Paths[0].Closed())

	assert.Empty(t, s.Search(orb.Bound{Min: orb.Point{10, 10}, Max: orb.Point{11, 11}}))
}

func TestStoreSearchDoesNotAliasPaths(t *testing.T) {
	s := testStore()

	got := s.Search(orb.Bound{Min: orb.Point{-70.6, 42.7}, Max: orb.Point{-70.3, 43}})
	require.Len(t, got, 1)
	require.Len(t, got[0].Paths, 1)
	assert.False(t, got[0].Paths[0].Closed())

	b, _ := s.Boundary(1234)
	assert.Len(t, b.Paths, 2)
}

func TestStoreEmpty(t *testing.T) {
	s := NewStore(nil)
	assert.Empty(t, s.Boundaries())
	assert.Equal(t, StatsResponse{}, s.Stats())
	assert.Empty(t, s.Search(orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}))
}
