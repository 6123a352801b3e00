package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"city_limits/pkg/export"
	"city_limits/pkg/stitch"
)

const stitchBody = `{
  "relation_id": 1234,
  "dedup_joints": true,
  "data": {"elements": [
    {"type": "node", "id": 1, "lat": 42.30, "lon": -71.10},
    {"type": "node", "id": 2, "lat": 42.30, "lon": -71.00},
    {"type": "node", "id": 3, "lat": 42.40, "lon": -71.00},
    {"type": "node", "id": 4, "lat": 42.40, "lon": -71.10},
    {"type": "way", "id": 10, "nodes": [1, 2, 3]},
    {"type": "way", "id": 20, "nodes": [1, 4, 3]},
    {"type": "relation", "id": 1234, "members": [
      {"type": "way", "ref": 10, "role": "outer"},
      {"type": "way", "ref": 20, "role": "outer"}
    ], "tags": {"name": "Testville"}}
  ]}
}`

func testStore() *Store {
	return NewStore([]export.Boundary{
		{
			RelationID: 1234,
			Name:       "Testville",
			Color:      "FF0000",
			Paths: []stitch.Path{
				{
					Points: []stitch.Point{
						{ID: 1, Coord: orb.Point{-71.10, 42.30}},
						{ID: 2, Coord: orb.Point{-71.00, 42.30}},
						{ID: 3, Coord: orb.Point{-71.00, 42.40}},
						{ID: 1, Coord: orb.Point{-71.10, 42.30}},
					},
					Traversals: []stitch.Traversal{{FragmentID: 10}, {FragmentID: 20, Direction: stitch.Reverse}},
				},
				{
					Points: []stitch.Point{
						{ID: 7, Coord: orb.Point{-70.50, 42.80}},
						{ID: 8, Coord: orb.Point{-70.40, 42.90}},
					},
					Traversals: []stitch.Traversal{{FragmentID: 30}},
				},
			},
		},
		{
			RelationID: 99,
			Name:       "Elsewhere",
			Paths: []stitch.Path{
				{
					Points: []stitch.Point{
						{ID: 50, Coord: orb.Point{103.80, 1.30}},
						{ID: 51, Coord: orb.Point{103.90, 1.35}},
					},
					Traversals: []stitch.Traversal{{FragmentID: 500}},
				},
			},
		},
	})
}

func newTestHandlers(t *testing.T) (*Handlers, *Metrics) {
	t.Helper()
	m := NewMetrics(prometheus.NewRegistry())
	return NewHandlers(testStore(), m), m
}

func postStitch(h *Handlers, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/v1/stitch", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.HandleStitch(w, req)
	return w
}

func decodeFC(t *testing.T, body []byte) *geojson.FeatureCollection {
	t.Helper()
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		t.Fatalf("decode feature collection: %v", err)
	}
	return fc
}

func TestHandleStitch_GeoJSON(t *testing.T) {
	h, m := newTestHandlers(t)

	w := postStitch(h, stitchBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. body: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("Content-Type = %q", ct)
	}

	fc := decodeFC(t, w.Body.Bytes())
	if len(fc.Features) != 1 {
		t.Fatalf("features = %d, want 1", len(fc.Features))
	}
	f := fc.Features[0]
	if ls, ok := f.Geometry.(orb.LineString); !ok || len(ls) != 5 {
		t.Errorf("geometry = %#v, want closed 5-point line", f.Geometry)
	}
	if f.Properties["closed"] != true {
		t.Errorf("closed = %v, want true", f.Properties["closed"])
	}
	if f.Properties["name"] != "Testville" {
		t.Errorf("name = %v", f.Properties["name"])
	}

	if got := testutil.ToFloat64(m.fragments); got != 2 {
		t.Errorf("fragments metric = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.paths); got != 1 {
		t.Errorf("paths metric = %v, want 1", got)
	}
}

func TestHandleStitch_Polyline(t *testing.T) {
	h, _ := newTestHandlers(t)

	body := strings.Replace(stitchBody, `"dedup_joints": true,`, `"format": "polyline",`, 1)
	w := postStitch(h, body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. body: %s", w.Code, w.Body.String())
	}

	var resp PolylineResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Paths) != 1 {
		t.Fatalf("paths = %d, want 1", len(resp.Paths))
	}
	p := resp.Paths[0]
	// Without dedup the joint at node 3 appears twice.
	if p.NumPoints != 6 || !p.Closed || p.Polyline == "" {
		t.Errorf("path = %+v", p)
	}
	if len(p.Fragments) != 2 || p.Fragments[0] != 10 || p.Fragments[1] != 20 {
		t.Errorf("fragments = %v, want [10 20]", p.Fragments)
	}
}

func TestHandleStitch_Errors(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		wantStatus  int
		wantError   string
	}{
		{
			name:        "missing content type",
			body:        stitchBody,
			contentType: "",
			wantStatus:  http.StatusBadRequest,
			wantError:   "invalid_request",
		},
		{
			name:        "invalid json",
			body:        "not json",
			contentType: "application/json",
			wantStatus:  http.StatusBadRequest,
			wantError:   "invalid_request",
		},
		{
			name:        "missing data",
			body:        `{"relation_id": 1}`,
			contentType: "application/json",
			wantStatus:  http.StatusBadRequest,
			wantError:   "validation_failed",
		},
		{
			name:        "bad format",
			body:        strings.Replace(stitchBody, `"dedup_joints": true,`, `"format": "svg",`, 1),
			contentType: "application/json",
			wantStatus:  http.StatusBadRequest,
			wantError:   "validation_failed",
		},
		{
			name:        "unknown relation",
			body:        strings.Replace(stitchBody, `"relation_id": 1234`, `"relation_id": 5`, 1),
			contentType: "application/json",
			wantStatus:  http.StatusNotFound,
			wantError:   "relation_not_found",
		},
		{
			name:        "dangling node",
			body:        strings.Replace(stitchBody, `"nodes": [1, 4, 3]`, `"nodes": [1, 44, 3]`, 1),
			contentType: "application/json",
			wantStatus:  http.StatusUnprocessableEntity,
			wantError:   "unresolved_point",
		},
		{
			name:        "single node way",
			body:        strings.Replace(stitchBody, `"nodes": [1, 4, 3]`, `"nodes": [1]`, 1),
			contentType: "application/json",
			wantStatus:  http.StatusUnprocessableEntity,
			wantError:   "invalid_fragment",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandlers(t)

			req := httptest.NewRequest("POST", "/api/v1/stitch", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			h.HandleStitch(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d. body: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if resp.Error != tt.wantError {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantError)
			}
		})
	}
}

func TestHandleStitch_ValidationMessages(t *testing.T) {
	h, _ := newTestHandlers(t)

	w := postStitch(h, `{"relation_id": -1, "data": {"elements": []}}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Validation) != 1 || !strings.Contains(resp.Validation[0], "relation_id") {
		t.Errorf("validation = %v, want one message naming relation_id", resp.Validation)
	}
}

func TestHandleBoundaries(t *testing.T) {
	h, _ := newTestHandlers(t)

	w := httptest.NewRecorder()
	h.HandleBoundaries(w, httptest.NewRequest("GET", "/api/v1/boundaries", nil))

	var resp []BoundarySummary
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("boundaries = %d, want 2", len(resp))
	}
	want := [4]float64{42.30, -71.10, 42.90, -70.40}
	if resp[0].NumPaths != 2 || resp[0].Bound != want {
		t.Errorf("summary = %+v", resp[0])
	}
}

func TestHandleBoundary(t *testing.T) {
	h, _ := newTestHandlers(t)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/boundaries/{id}", h.HandleBoundary)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/api/v1/boundaries/1234", http.StatusOK},
		{"/api/v1/boundaries/1234?format=polyline", http.StatusOK},
		{"/api/v1/boundaries/42", http.StatusNotFound},
		{"/api/v1/boundaries/abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest("GET", tt.path, nil))
		if w.Code != tt.wantStatus {
			t.Errorf("%s: status = %d, want %d", tt.path, w.Code, tt.wantStatus)
		}
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/boundaries/1234", nil))
	if fc := decodeFC(t, w.Body.Bytes()); len(fc.Features) != 2 {
		t.Errorf("features = %d, want 2", len(fc.Features))
	}
}

func TestHandlePaths(t *testing.T) {
	h, _ := newTestHandlers(t)

	tests := []struct {
		name         string
		bbox         string
		wantStatus   int
		wantFeatures int
	}{
		{name: "boston ring only", bbox: "42.2,-71.2,42.5,-70.9", wantStatus: http.StatusOK, wantFeatures: 1},
		{name: "both boston paths", bbox: "42.0,-72.0,43.0,-70.0", wantStatus: http.StatusOK, wantFeatures: 2},
		{name: "singapore", bbox: "1.2,103.7,1.4,104.0", wantStatus: http.StatusOK, wantFeatures: 1},
		{name: "empty ocean", bbox: "0,0,1,1", wantStatus: http.StatusOK, wantFeatures: 0},
		{name: "wrong arity", bbox: "1,2,3", wantStatus: http.StatusBadRequest},
		{name: "not a number", bbox: "a,b,c,d", wantStatus: http.StatusBadRequest},
		{name: "out of range", bbox: "-91,0,1,1", wantStatus: http.StatusBadRequest},
		{name: "not finite", bbox: "NaN,0,1,1", wantStatus: http.StatusBadRequest},
		{name: "inverted", bbox: "2,0,1,1", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.HandlePaths(w, httptest.NewRequest("GET", "/api/v1/paths?bbox="+tt.bbox, nil))
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d. body: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if fc := decodeFC(t, w.Body.Bytes()); len(fc.Features) != tt.wantFeatures {
				t.Errorf("features = %d, want %d", len(fc.Features), tt.wantFeatures)
			}
		})
	}
}

func TestHandleHealth(t *testing.T) {
	h, _ := newTestHandlers(t)

	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest("GET", "/api/v1/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var resp HealthResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "ok" {
		t.Errorf("status = %q, want 'ok'", resp.Status)
	}
}

func TestHandleStats(t *testing.T) {
	h, _ := newTestHandlers(t)

	w := httptest.NewRecorder()
	h.HandleStats(w, httptest.NewRequest("GET", "/api/v1/stats", nil))

	var resp StatsResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	want := StatsResponse{NumBoundaries: 2, NumPaths: 3, NumClosed: 1, NumPoints: 8}
	if resp != want {
		t.Errorf("stats = %+v, want %+v", resp, want)
	}
}

func TestServerRoutesAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	h := NewHandlers(testStore(), m)
	srv := NewServer(DefaultConfig(":0"), h, reg)

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security header")
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `city_limits_http_requests_total{code="200",route="GET /api/v1/health"} 1`) {
		t.Errorf("metrics missing health request counter:\n%s", body)
	}
}
