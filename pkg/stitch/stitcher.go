package stitch

import (
	"fmt"
	"slices"
)

// Direction is the order in which a fragment's points were appended.
type Direction uint8

const (
	Forward Direction = iota
	Reverse
)

func (d Direction) String() string {
	if d == Reverse {
		return "reverse"
	}
	return "forward"
}

// Traversal records one fragment consumed into a path.
type Traversal struct {
	FragmentID FragmentID
	Direction  Direction
}

// Path is a chain of fragments joined end to end.
type Path struct {
	Points     []Point
	Traversals []Traversal
}

// Closed reports whether the path ends where it starts.
func (p Path) Closed() bool {
	return len(p.Points) >= 2 && p.Points[0].ID == p.Points[len(p.Points)-1].ID
}

// Options configures a stitch run.
type Options struct {
	// DedupJoints drops the shared point when a fragment is appended to a
	// path, so each joint appears once. The default keeps the raw
	// concatenation of every fragment's refs.
	DedupJoints bool
}

// session is the mutable state of one Stitch call.
type session struct {
	ix     *Index
	points map[PointID]Point
	opts   Options

	fragments map[FragmentID]Fragment
	order     []FragmentID // ascending; seeds are taken from here
	cursor    int
	consumed  map[FragmentID]bool
	paths     []Path
}

// Stitch chains fragments into paths.
//
// Each path is seeded with the lowest-id fragment not yet used and grows at
// its trailing end only: first through unused fragments starting at the
// trailing point (appended forward), then through unused fragments ending
// there (appended reversed). Ties go to the lowest fragment id. A path is
// sealed when neither lookup finds a fragment.
//
// An invalid fragment or a reference missing from points aborts the run;
// no paths are returned in that case.
func Stitch(fragments []Fragment, points map[PointID]Point, ix *Index, opts ...Options) ([]Path, error) {
	var opt Options
	if len(opts) > 0 {
		opt = opts[0]
	}

	s := &session{
		ix:        ix,
		points:    points,
		opts:      opt,
		fragments: make(map[FragmentID]Fragment, len(fragments)),
		order:     make([]FragmentID, 0, len(fragments)),
		consumed:  make(map[FragmentID]bool, len(fragments)),
	}
	for _, f := range fragments {
		if err := validate(f); err != nil {
			return nil, err
		}
		if _, dup := s.fragments[f.ID]; dup {
			return nil, &InvalidFragmentError{FragmentID: f.ID, Reason: "duplicate fragment id"}
		}
		s.fragments[f.ID] = f
		s.order = append(s.order, f.ID)
	}
	slices.Sort(s.order)

	if err := s.run(); err != nil {
		return nil, err
	}
	return s.paths, nil
}

// StitchDataset indexes ds and stitches it.
func StitchDataset(ds *Dataset, opts ...Options) ([]Path, error) {
	ix, err := BuildIndex(ds.Fragments)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	return Stitch(ds.Fragments, ds.Points, ix, opts...)
}

func (s *session) run() error {
	s.paths = make([]Path, 0)

	for {
		seed, ok := s.nextSeed()
		if !ok {
			return nil
		}

		var path Path
		trailing, err := s.consume(&path, seed, Forward)
		if err != nil {
			return err
		}
		last := seed

		for {
			next, dir, found := s.continuation(trailing, last)
			if !found {
				break
			}
			if trailing, err = s.consume(&path, next, dir); err != nil {
				return err
			}
			last = next
		}

		s.paths = append(s.paths, path)
	}
}

// nextSeed returns the lowest-id fragment that has not been consumed.
func (s *session) nextSeed() (FragmentID, bool) {
	for s.cursor < len(s.order) {
		id := s.order[s.cursor]
		if !s.consumed[id] {
			return id, true
		}
		s.cursor++
	}
	return 0, false
}

// continuation looks for the fragment that extends a path ending at p.
func (s *session) continuation(p PointID, last FragmentID) (FragmentID, Direction, bool) {
	if id, ok := s.firstAvailable(s.ix.StartingAt(p), last); ok {
		return id, Forward, true
	}
	if id, ok := s.firstAvailable(s.ix.EndingAt(p), last); ok {
		return id, Reverse, true
	}
	return 0, Forward, false
}

// firstAvailable returns the lowest id in bucket that belongs to this
// session, is unused and is not last.
func (s *session) firstAvailable(bucket []FragmentID, last FragmentID) (FragmentID, bool) {
	for _, id := range bucket {
		if id == last || s.consumed[id] {
			continue
		}
		if _, ok := s.fragments[id]; !ok {
			continue
		}
		return id, true
	}
	return 0, false
}

// consume marks id used, appends its resolved points to path in direction
// dir and returns the new trailing point.
func (s *session) consume(path *Path, id FragmentID, dir Direction) (PointID, error) {
	f := s.fragments[id]
	s.consumed[id] = true

	resolved := make([]Point, len(f.Refs))
	for i, ref := range f.Refs {
		pt, ok := s.points[ref]
		if !ok {
			return 0, &UnresolvedPointError{FragmentID: id, PointID: ref}
		}
		resolved[i] = pt
	}

	trailing := f.End()
	if dir == Reverse {
		slices.Reverse(resolved)
		trailing = f.Start()
	}

	if s.opts.DedupJoints && len(path.Points) > 0 {
		resolved = resolved[1:]
	}
	path.Points = append(path.Points, resolved...)
	path.Traversals = append(path.Traversals, Traversal{FragmentID: id, Direction: dir})

	return trailing, nil
}
