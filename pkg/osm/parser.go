package osm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"

	"city_limits/pkg/stitch"
)

// ErrRelationNotFound is returned when the requested relation is not in the input.
var ErrRelationNotFound = errors.New("relation not found")

// ParseResult holds the fragments and points of one boundary.
type ParseResult struct {
	RelationID osm.RelationID
	Name       string
	Dataset    *stitch.Dataset
}

// ParseOptions configures which ways are extracted.
type ParseOptions struct {
	// RelationID selects the member ways of one relation. Zero takes every
	// way in the input.
	RelationID osm.RelationID
	// Roles restricts relation members to these roles (e.g. "outer",
	// "inner"). Empty accepts every way member.
	Roles []string
}

func (o ParseOptions) acceptsRole(role string) bool {
	return len(o.Roles) == 0 || slices.Contains(o.Roles, role)
}

// memberWays returns the ids of the way members of rel that opt accepts.
func memberWays(rel *osm.Relation, opt ParseOptions) map[osm.WayID]struct{} {
	ways := make(map[osm.WayID]struct{})
	for _, m := range rel.Members {
		if m.Type != osm.TypeWay || !opt.acceptsRole(m.Role) {
			continue
		}
		ways[osm.WayID(m.Ref)] = struct{}{}
	}
	return ways
}

// relationName picks a display name from the relation tags.
func relationName(rel *osm.Relation) string {
	if name := rel.Tags.Find("name"); name != "" {
		return name
	}
	return fmt.Sprintf("relation %d", rel.ID)
}

// Parse reads an OSM PBF file and extracts the ways of one relation and the
// nodes they reference. The reader is scanned up to three times (relations,
// ways, nodes), so it must implement io.ReadSeeker.
func Parse(ctx context.Context, rs io.ReadSeeker, opts ...ParseOptions) (*ParseResult, error) {
	var opt ParseOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	result := &ParseResult{RelationID: opt.RelationID}

	// Pass 1: find the relation and its member ways.
	var wanted map[osm.WayID]struct{}
	if opt.RelationID != 0 {
		scanner := osmpbf.New(ctx, rs, 1)
		scanner.SkipNodes = true
		scanner.SkipWays = true

		var rel *osm.Relation
		for scanner.Scan() {
			r, ok := scanner.Object().(*osm.Relation)
			if ok && r.ID == opt.RelationID {
				rel = r
				break
			}
		}
		if err := scanner.Err(); err != nil {
			scanner.Close()
			return nil, fmt.Errorf("pass 1 (relations): %w", err)
		}
		scanner.Close()

		if rel == nil {
			return nil, fmt.Errorf("relation %d: %w", opt.RelationID, ErrRelationNotFound)
		}
		wanted = memberWays(rel, opt)
		result.Name = relationName(rel)
		log.Printf("Pass 1 complete: relation %d (%s) has %d way members", rel.ID, result.Name, len(wanted))

		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seek for pass 2: %w", err)
		}
	}

	// Pass 2: collect member ways and the node ids they reference.
	referencedNodes := make(map[osm.NodeID]struct{})
	var ways []*osm.Way

	scanner := osmpbf.New(ctx, rs, 1)
	scanner.SkipNodes = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		w, ok := scanner.Object().(*osm.Way)
		if !ok {
			continue
		}
		if wanted != nil {
			if _, ok := wanted[w.ID]; !ok {
				continue
			}
		}
		for _, wn := range w.Nodes {
			referencedNodes[wn.ID] = struct{}{}
		}
		ways = append(ways, w)
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 2 (ways): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 2 complete: %d ways, %d referenced nodes", len(ways), len(referencedNodes))

	// Pass 3: coordinates for referenced nodes only.
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek for pass 3: %w", err)
	}

	nodes := make(map[osm.NodeID]orb.Point, len(referencedNodes))

	scanner = osmpbf.New(ctx, rs, 1)
	scanner.SkipWays = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		n, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		if _, needed := referencedNodes[n.ID]; !needed {
			continue
		}
		nodes[n.ID] = orb.Point{n.Lon, n.Lat}
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 3 (nodes): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 3 complete: %d node coordinates collected", len(nodes))

	if wanted != nil && len(ways) < len(wanted) {
		log.Printf("Warning: %d member ways missing from input", len(wanted)-len(ways))
	}

	result.Dataset = buildDataset(ways, nodes)
	return result, nil
}

// ParseXML reads an OSM XML document and extracts one relation's ways the
// same way Parse does.
func ParseXML(ctx context.Context, r io.Reader, opts ...ParseOptions) (*ParseResult, error) {
	o, err := ReadXML(ctx, r)
	if err != nil {
		return nil, err
	}
	return FromOSM(o, opts...)
}

// ReadXML loads the nodes, ways and relations of an OSM XML document.
func ReadXML(ctx context.Context, r io.Reader) (*osm.OSM, error) {
	scanner := osmxml.New(ctx, r)
	defer scanner.Close()

	o := &osm.OSM{}
	for scanner.Scan() {
		switch obj := scanner.Object().(type) {
		case *osm.Node:
			o.Nodes = append(o.Nodes, obj)
		case *osm.Way:
			o.Ways = append(o.Ways, obj)
		case *osm.Relation:
			o.Relations = append(o.Relations, obj)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan xml: %w", err)
	}
	return o, nil
}

// FromOSM extracts one relation's ways from an in-memory OSM document.
func FromOSM(o *osm.OSM, opts ...ParseOptions) (*ParseResult, error) {
	var opt ParseOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	result := &ParseResult{RelationID: opt.RelationID}

	var wanted map[osm.WayID]struct{}
	if opt.RelationID != 0 {
		idx := slices.IndexFunc(o.Relations, func(r *osm.Relation) bool { return r.ID == opt.RelationID })
		if idx < 0 {
			return nil, fmt.Errorf("relation %d: %w", opt.RelationID, ErrRelationNotFound)
		}
		rel := o.Relations[idx]
		wanted = memberWays(rel, opt)
		result.Name = relationName(rel)
	}

	var ways []*osm.Way
	referencedNodes := make(map[osm.NodeID]struct{})
	for _, w := range o.Ways {
		if wanted != nil {
			if _, ok := wanted[w.ID]; !ok {
				continue
			}
		}
		for _, wn := range w.Nodes {
			referencedNodes[wn.ID] = struct{}{}
		}
		ways = append(ways, w)
	}

	nodes := make(map[osm.NodeID]orb.Point, len(referencedNodes))
	for _, n := range o.Nodes {
		if _, needed := referencedNodes[n.ID]; needed {
			nodes[n.ID] = orb.Point{n.Lon, n.Lat}
		}
	}

	if wanted != nil && len(ways) < len(wanted) {
		log.Printf("Warning: %d member ways missing from input", len(wanted)-len(ways))
	}

	result.Dataset = buildDataset(ways, nodes)
	return result, nil
}

// buildDataset converts ways and node coordinates into stitch input. Ways
// are passed through unfiltered so the stitcher sees malformed ones, and
// nodes without coordinates are left out of the point table.
func buildDataset(ways []*osm.Way, nodes map[osm.NodeID]orb.Point) *stitch.Dataset {
	ds := &stitch.Dataset{
		Fragments: make([]stitch.Fragment, 0, len(ways)),
		Points:    make(map[stitch.PointID]stitch.Point, len(nodes)),
	}
	for _, w := range ways {
		refs := make([]stitch.PointID, len(w.Nodes))
		for i, wn := range w.Nodes {
			refs[i] = stitch.PointID(wn.ID)
		}
		ds.Fragments = append(ds.Fragments, stitch.Fragment{ID: stitch.FragmentID(w.ID), Refs: refs})
	}
	for id, coord := range nodes {
		ds.Points[stitch.PointID(id)] = stitch.Point{ID: stitch.PointID(id), Coord: coord}
	}
	return ds
}
