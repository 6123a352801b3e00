package stitch

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

// PointID identifies a point (an OSM node).
type PointID int64

// FragmentID identifies a fragment (an OSM way).
type FragmentID int64

// Point is a location referenced by fragments. Coord is carried through
// untouched; the stitcher never looks at it.
type Point struct {
	ID    PointID
	Coord orb.Point
}

// Fragment is an ordered run of point references forming one piece of a
// boundary.
type Fragment struct {
	ID   FragmentID
	Refs []PointID
}

// Start returns the first point reference.
func (f Fragment) Start() PointID { return f.Refs[0] }

// End returns the last point reference.
func (f Fragment) End() PointID { return f.Refs[len(f.Refs)-1] }

// Dataset is the input of one stitch run: the fragments of a single
// boundary and the points they reference.
type Dataset struct {
	Fragments []Fragment
	Points    map[PointID]Point
}

var (
	// ErrInvalidFragment matches any *InvalidFragmentError.
	ErrInvalidFragment = errors.New("invalid fragment")
	// ErrUnresolvedPoint matches any *UnresolvedPointError.
	ErrUnresolvedPoint = errors.New("unresolved point")
)

// InvalidFragmentError reports a structurally malformed fragment.
type InvalidFragmentError struct {
	FragmentID FragmentID
	Reason     string
}

func (e *InvalidFragmentError) Error() string {
	return fmt.Sprintf("invalid fragment %d: %s", e.FragmentID, e.Reason)
}

func (e *InvalidFragmentError) Is(target error) bool { return target == ErrInvalidFragment }

// UnresolvedPointError reports a fragment referencing a point that is not
// in the point table.
type UnresolvedPointError struct {
	FragmentID FragmentID
	PointID    PointID
}

func (e *UnresolvedPointError) Error() string {
	return fmt.Sprintf("fragment %d references unknown point %d", e.FragmentID, e.PointID)
}

func (e *UnresolvedPointError) Is(target error) bool { return target == ErrUnresolvedPoint }

// validate checks the structural constraints on a single fragment.
func validate(f Fragment) error {
	if len(f.Refs) < 2 {
		return &InvalidFragmentError{
			FragmentID: f.ID,
			Reason:     fmt.Sprintf("%d point references, need at least 2", len(f.Refs)),
		}
	}
	return nil
}
