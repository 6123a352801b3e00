// Package export converts stitched boundary paths into the formats a map
// renderer consumes.
package export

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-polyline"

	"city_limits/pkg/geo"
	"city_limits/pkg/stitch"
)

// Palette holds boundary colours (hex, no leading #), assigned in order.
var Palette = []string{"FF0000", "0000FF", "008000", "FF8C00", "800080", "008B8B"}

// Color returns the palette entry for the i-th boundary.
func Color(i int) string {
	return Palette[i%len(Palette)]
}

// Boundary is a named set of stitched paths.
type Boundary struct {
	RelationID int64
	Name       string
	Color      string
	Paths      []stitch.Path
}

// LineString returns the path geometry in lon/lat order.
func LineString(p stitch.Path) orb.LineString {
	ls := make(orb.LineString, len(p.Points))
	for i, pt := range p.Points {
		ls[i] = pt.Coord
	}
	return ls
}

// Bound returns the bounding box of all paths of b.
func (b Boundary) Bound() orb.Bound {
	var bound orb.Bound
	first := true
	for _, p := range b.Paths {
		if len(p.Points) == 0 {
			continue
		}
		pb := LineString(p).Bound()
		if first {
			bound = pb
			first = false
			continue
		}
		bound = bound.Union(pb)
	}
	return bound
}

// FeatureCollection builds one LineString feature per path. Paths are
// exported as lines even when closed; ring and hole interpretation is left
// to the renderer.
func FeatureCollection(boundaries ...Boundary) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, b := range boundaries {
		for i, p := range b.Paths {
			ls := LineString(p)
			f := geojson.NewFeature(ls)
			f.Properties["relation_id"] = b.RelationID
			f.Properties["name"] = b.Name
			f.Properties["path"] = i
			f.Properties["closed"] = p.Closed()
			f.Properties["fragments"] = fragmentIDs(p)
			f.Properties["length_m"] = geo.PathLength(ls)
			if b.Color != "" {
				f.Properties["stroke"] = "#" + b.Color
				f.Properties["fill"] = "#" + b.Color
			}
			fc.Append(f)
		}
	}
	return fc
}

// Polyline encodes a path in the Google encoded polyline format.
func Polyline(p stitch.Path) string {
	coords := make([][]float64, len(p.Points))
	for i, pt := range p.Points {
		coords[i] = []float64{pt.Coord.Lat(), pt.Coord.Lon()}
	}
	return string(polyline.EncodeCoords(coords))
}

// Polylines encodes every path of b.
func Polylines(b Boundary) []string {
	out := make([]string, len(b.Paths))
	for i, p := range b.Paths {
		out[i] = Polyline(p)
	}
	return out
}

func fragmentIDs(p stitch.Path) []int64 {
	ids := make([]int64, len(p.Traversals))
	for i, tr := range p.Traversals {
		ids[i] = int64(tr.FragmentID)
	}
	return ids
}
