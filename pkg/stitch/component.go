package stitch

import (
	"cmp"
	"slices"
)

// unionFind is a disjoint-set over dense indices with path halving and
// union by rank.
type unionFind struct {
	parent []uint32
	rank   []byte
}

func newUnionFind(n uint32) *unionFind {
	parent := make([]uint32, n)
	for i := range n {
		parent[i] = i
	}
	return &unionFind{
		parent: parent,
		rank:   make([]byte, n),
	}
}

func (uf *unionFind) find(x uint32) uint32 {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]] // path halving
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(x, y uint32) {
	rx := uf.find(x)
	ry := uf.find(y)
	if rx == ry {
		return
	}
	if uf.rank[rx] < uf.rank[ry] {
		rx, ry = ry, rx
	}
	uf.parent[ry] = rx
	if uf.rank[rx] == uf.rank[ry] {
		uf.rank[rx]++
	}
}

// Components groups fragments that touch through shared endpoints. Interior
// refs do not connect fragments. Each group is sorted by id and groups are
// ordered by their lowest id.
//
// Stitch never produces fewer paths than there are components; it produces
// more when a junction joins three or more fragment ends.
func Components(fragments []Fragment) [][]FragmentID {
	if len(fragments) == 0 {
		return nil
	}

	// Dense index per endpoint.
	endpoints := make(map[PointID]uint32)
	endpointIdx := func(p PointID) uint32 {
		if idx, ok := endpoints[p]; ok {
			return idx
		}
		idx := uint32(len(endpoints))
		endpoints[p] = idx
		return idx
	}
	for _, f := range fragments {
		if len(f.Refs) == 0 {
			continue
		}
		endpointIdx(f.Start())
		endpointIdx(f.End())
	}

	uf := newUnionFind(uint32(len(endpoints)))
	for _, f := range fragments {
		if len(f.Refs) == 0 {
			continue
		}
		uf.union(endpoints[f.Start()], endpoints[f.End()])
	}

	groups := make(map[uint32][]FragmentID)
	var roots []uint32
	for _, f := range fragments {
		if len(f.Refs) == 0 {
			continue
		}
		root := uf.find(endpoints[f.Start()])
		if _, ok := groups[root]; !ok {
			roots = append(roots, root)
		}
		groups[root] = append(groups[root], f.ID)
	}

	result := make([][]FragmentID, 0, len(roots))
	for _, root := range roots {
		ids := groups[root]
		slices.Sort(ids)
		result = append(result, ids)
	}
	slices.SortFunc(result, func(a, b []FragmentID) int {
		return cmp.Compare(a[0], b[0])
	})
	return result
}
