package overpass

import (
	"sort"

	"github.com/paulmach/osm"
)

// Response is an Overpass JSON document.
type Response struct {
	Version   float64   `json:"version,omitempty"`
	Generator string    `json:"generator,omitempty"`
	Elements  []Element `json:"elements" validate:"required,dive"`
}

// Element is one entry of the "elements" array. Only the fields relevant
// to its Type are set.
type Element struct {
	Type    string            `json:"type" validate:"required,oneof=node way relation area"`
	ID      int64             `json:"id" validate:"required"`
	Lat     float64           `json:"lat,omitempty" validate:"omitempty,latitude"`
	Lon     float64           `json:"lon,omitempty" validate:"omitempty,longitude"`
	Nodes   []int64           `json:"nodes,omitempty"`
	Members []Member          `json:"members,omitempty" validate:"dive"`
	Tags    map[string]string `json:"tags,omitempty"`
}

// Member is a relation member.
type Member struct {
	Type string `json:"type" validate:"required,oneof=node way relation"`
	Ref  int64  `json:"ref"`
	Role string `json:"role"`
}

// OSM converts the nodes, ways and relations of the response. Areas are
// dropped; they exist only in Overpass.
func (r *Response) OSM() *osm.OSM {
	o := &osm.OSM{}
	for _, e := range r.Elements {
		switch e.Type {
		case "node":
			o.Nodes = append(o.Nodes, &osm.Node{
				ID:   osm.NodeID(e.ID),
				Lat:  e.Lat,
				Lon:  e.Lon,
				Tags: tags(e.Tags),
			})
		case "way":
			nodes := make(osm.WayNodes, len(e.Nodes))
			for i, id := range e.Nodes {
				nodes[i] = osm.WayNode{ID: osm.NodeID(id)}
			}
			o.Ways = append(o.Ways, &osm.Way{
				ID:    osm.WayID(e.ID),
				Nodes: nodes,
				Tags:  tags(e.Tags),
			})
		case "relation":
			members := make(osm.Members, len(e.Members))
			for i, m := range e.Members {
				members[i] = osm.Member{Type: osm.Type(m.Type), Ref: m.Ref, Role: m.Role}
			}
			o.Relations = append(o.Relations, &osm.Relation{
				ID:      osm.RelationID(e.ID),
				Members: members,
				Tags:    tags(e.Tags),
			})
		}
	}
	return o
}

// tags converts a tag map to osm.Tags sorted by key.
func tags(m map[string]string) osm.Tags {
	if len(m) == 0 {
		return nil
	}
	t := make(osm.Tags, 0, len(m))
	for k, v := range m {
		t = append(t, osm.Tag{Key: k, Value: v})
	}
	sort.Slice(t, func(i, j int) bool { return t[i].Key < t[j].Key })
	return t
}
