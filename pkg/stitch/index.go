package stitch

import "slices"

// Index maps endpoint ids to the fragments that start or end there.
// Buckets are sorted by ascending fragment id and never modified after
// BuildIndex returns, so an Index may be shared by concurrent readers.
type Index struct {
	byStart map[PointID][]FragmentID
	byEnd   map[PointID][]FragmentID
	n       int
}

// BuildIndex registers every fragment under its start and end point.
// A self-loop (start == end) lands in both maps under the same key.
func BuildIndex(fragments []Fragment) (*Index, error) {
	ix := &Index{
		byStart: make(map[PointID][]FragmentID),
		byEnd:   make(map[PointID][]FragmentID),
	}

	seen := make(map[FragmentID]struct{}, len(fragments))
	for _, f := range fragments {
		if err := validate(f); err != nil {
			return nil, err
		}
		if _, dup := seen[f.ID]; dup {
			return nil, &InvalidFragmentError{FragmentID: f.ID, Reason: "duplicate fragment id"}
		}
		seen[f.ID] = struct{}{}

		ix.byStart[f.Start()] = append(ix.byStart[f.Start()], f.ID)
		ix.byEnd[f.End()] = append(ix.byEnd[f.End()], f.ID)
	}
	ix.n = len(fragments)

	for _, bucket := range ix.byStart {
		slices.Sort(bucket)
	}
	for _, bucket := range ix.byEnd {
		slices.Sort(bucket)
	}

	return ix, nil
}

// StartingAt returns the ids of fragments whose first ref is p.
// The returned slice must not be modified.
func (ix *Index) StartingAt(p PointID) []FragmentID { return ix.byStart[p] }

// EndingAt returns the ids of fragments whose last ref is p.
// The returned slice must not be modified.
func (ix *Index) EndingAt(p PointID) []FragmentID { return ix.byEnd[p] }

// Len returns the number of indexed fragments.
func (ix *Index) Len() int { return ix.n }
