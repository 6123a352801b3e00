package api

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"

	"city_limits/pkg/export"
)

type pathRef struct {
	boundary int
	path     int
}

// Store holds preprocessed boundaries and an R-tree over their path bounds.
// It is read-only after NewStore.
type Store struct {
	boundaries []export.Boundary
	byID       map[int64]int
	tree       rtree.RTreeG[pathRef]
	stats      StatsResponse
}

// NewStore indexes boundaries.
func NewStore(boundaries []export.Boundary) *Store {
	s := &Store{
		boundaries: boundaries,
		byID:       make(map[int64]int, len(boundaries)),
	}
	s.stats.NumBoundaries = len(boundaries)

	for bi, b := range boundaries {
		s.byID[b.RelationID] = bi
		for pi, p := range b.Paths {
			s.stats.NumPaths++
			s.stats.NumPoints += len(p.Points)
			if p.Closed() {
				s.stats.NumClosed++
			}
			if len(p.Points) == 0 {
				continue
			}
			bound := export.LineString(p).Bound()
			s.tree.Insert(
				[2]float64{bound.Min.Lon(), bound.Min.Lat()},
				[2]float64{bound.Max.Lon(), bound.Max.Lat()},
				pathRef{boundary: bi, path: pi},
			)
		}
	}
	return s
}

// Boundaries returns all stored boundaries.
func (s *Store) Boundaries() []export.Boundary { return s.boundaries }

// Boundary looks up a boundary by relation id.
func (s *Store) Boundary(relationID int64) (export.Boundary, bool) {
	idx, ok := s.byID[relationID]
	if !ok {
		return export.Boundary{}, false
	}
	return s.boundaries[idx], true
}

// Search returns, per boundary, the paths whose bounding box intersects
// bound. Boundaries keep their stored order and paths their index order.
func (s *Store) Search(bound orb.Bound) []export.Boundary {
	hits := make(map[int][]int)
	s.tree.Search(
		[2]float64{bound.Min.Lon(), bound.Min.Lat()},
		[2]float64{bound.Max.Lon(), bound.Max.Lat()},
		func(_, _ [2]float64, ref pathRef) bool {
			hits[ref.boundary] = append(hits[ref.boundary], ref.path)
			return true
		},
	)

	order := make([]int, 0, len(hits))
	for bi := range hits {
		order = append(order, bi)
	}
	sort.Ints(order)

	out := make([]export.Boundary, 0, len(order))
	for _, bi := range order {
		paths := hits[bi]
		sort.Ints(paths)
		b := s.boundaries[bi]
		sub := b
		sub.Paths = nil
		for _, pi := range paths {
			sub.Paths = append(sub.Paths, b.Paths[pi])
		}
		out = append(out, sub)
	}
	return out
}

// Stats returns counts over the stored boundaries.
func (s *Store) Stats() StatsResponse { return s.stats }
