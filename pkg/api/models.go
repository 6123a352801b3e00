package api

import "city_limits/pkg/overpass"

// StitchRequest is the JSON body for POST /api/v1/stitch.
type StitchRequest struct {
	RelationID  int64              `json:"relation_id" validate:"gte=0"`
	DedupJoints bool               `json:"dedup_joints"`
	Format      string             `json:"format" validate:"omitempty,oneof=geojson polyline"`
	Data        *overpass.Response `json:"data" validate:"required"`
}

// BBoxQuery is the parsed bbox parameter of GET /api/v1/paths.
type BBoxQuery struct {
	MinLat float64 `json:"min_lat" validate:"gte=-90,lte=90"`
	MinLng float64 `json:"min_lng" validate:"gte=-180,lte=180"`
	MaxLat float64 `json:"max_lat" validate:"gte=-90,lte=90,gtefield=MinLat"`
	MaxLng float64 `json:"max_lng" validate:"gte=-180,lte=180,gtefield=MinLng"`
}

// PolylineResponse is the response for format=polyline.
type PolylineResponse struct {
	RelationID int64      `json:"relation_id"`
	Name       string     `json:"name"`
	Color      string     `json:"color,omitempty"`
	Paths      []PathJSON `json:"paths"`
}

// PathJSON is one encoded path.
type PathJSON struct {
	Polyline  string  `json:"polyline"`
	NumPoints int     `json:"num_points"`
	Closed    bool    `json:"closed"`
	Fragments []int64 `json:"fragments"`
}

// BoundarySummary describes a stored boundary.
type BoundarySummary struct {
	RelationID int64      `json:"relation_id"`
	Name       string     `json:"name"`
	Color      string     `json:"color,omitempty"`
	NumPaths   int        `json:"num_paths"`
	Bound      [4]float64 `json:"bbox"` // minLat, minLng, maxLat, maxLng
}

// ErrorResponse is the JSON response for errors.
type ErrorResponse struct {
	Error      string   `json:"error"`
	Field      string   `json:"field,omitempty"`
	Message    string   `json:"message,omitempty"`
	Validation []string `json:"validation,omitempty"`
}

// StatsResponse is the JSON response for GET /api/v1/stats.
type StatsResponse struct {
	NumBoundaries int `json:"num_boundaries"`
	NumPaths      int `json:"num_paths"`
	NumClosed     int `json:"num_closed"`
	NumPoints     int `json:"num_points"`
}

// HealthResponse is the JSON response for GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
}
