package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"

	"city_limits/pkg/export"
	"city_limits/pkg/geo"
	osmparser "city_limits/pkg/osm"
	"city_limits/pkg/stitch"
)

const maxStitchBodyBytes = 64 << 20

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	store    *Store
	metrics  *Metrics
	validate *validator.Validate
	trans    ut.Translator
}

// NewHandlers creates handlers serving store.
func NewHandlers(store *Store, metrics *Metrics) *Handlers {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	_ = enTranslations.RegisterDefaultTranslations(validate, trans)

	return &Handlers{
		store:    store,
		metrics:  metrics,
		validate: validate,
		trans:    trans,
	}
}

// HandleStitch handles POST /api/v1/stitch.
func (h *Handlers) HandleStitch(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "content type must be application/json"})
		return
	}

	var req StitchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxStitchBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_request"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "validation_failed", Validation: h.translate(err)})
		return
	}

	res, err := osmparser.FromOSM(req.Data.OSM(), osmparser.ParseOptions{RelationID: osm.RelationID(req.RelationID)})
	if err != nil {
		if errors.Is(err, osmparser.ErrRelationNotFound) {
			writeError(w, http.StatusNotFound, ErrorResponse{Error: "relation_not_found", Field: "relation_id"})
			return
		}
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
		return
	}

	paths, err := stitch.StitchDataset(res.Dataset, stitch.Options{DedupJoints: req.DedupJoints})
	if err != nil {
		h.metrics.observeStitchError(err)
		writeStitchError(w, err)
		return
	}
	h.metrics.observeStitch(len(res.Dataset.Fragments), len(paths))

	b := export.Boundary{
		RelationID: req.RelationID,
		Name:       res.Name,
		Color:      export.Color(0),
		Paths:      paths,
	}
	if req.Format == "polyline" {
		writeJSON(w, polylineResponse(b))
		return
	}
	writeGeoJSON(w, b)
}

// HandleBoundaries handles GET /api/v1/boundaries.
func (h *Handlers) HandleBoundaries(w http.ResponseWriter, r *http.Request) {
	boundaries := h.store.Boundaries()
	out := make([]BoundarySummary, len(boundaries))
	for i, b := range boundaries {
		bound := b.Bound()
		out[i] = BoundarySummary{
			RelationID: b.RelationID,
			Name:       b.Name,
			Color:      b.Color,
			NumPaths:   len(b.Paths),
			Bound:      [4]float64{bound.Min.Lat(), bound.Min.Lon(), bound.Max.Lat(), bound.Max.Lon()},
		}
	}
	writeJSON(w, out)
}

// HandleBoundary handles GET /api/v1/boundaries/{id}.
func (h *Handlers) HandleBoundary(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Field: "id"})
		return
	}
	b, ok := h.store.Boundary(id)
	if !ok {
		writeError(w, http.StatusNotFound, ErrorResponse{Error: "boundary_not_found", Field: "id"})
		return
	}
	if r.URL.Query().Get("format") == "polyline" {
		writeJSON(w, polylineResponse(b))
		return
	}
	writeGeoJSON(w, b)
}

// HandlePaths handles GET /api/v1/paths?bbox=minLat,minLng,maxLat,maxLng.
func (h *Handlers) HandlePaths(w http.ResponseWriter, r *http.Request) {
	q, err := parseBBox(r.URL.Query().Get("bbox"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_bbox", Field: "bbox", Message: err.Error()})
		return
	}
	if err := h.validate.Struct(q); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_bbox", Field: "bbox", Validation: h.translate(err)})
		return
	}

	bound := orb.Bound{Min: orb.Point{q.MinLng, q.MinLat}, Max: orb.Point{q.MaxLng, q.MaxLat}}
	writeGeoJSON(w, h.store.Search(bound)...)
}

// HandleHealth handles GET /api/v1/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{Status: "ok"})
}

// HandleStats handles GET /api/v1/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.store.Stats())
}

func parseBBox(s string) (BBoxQuery, error) {
	var q BBoxQuery
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return q, errors.New("expected minLat,minLng,maxLat,maxLng")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return q, fmt.Errorf("bbox value %d: %w", i, err)
		}
		vals[i] = v
	}
	q.MinLat, q.MinLng, q.MaxLat, q.MaxLng = vals[0], vals[1], vals[2], vals[3]
	if !geo.ValidLatLng(q.MinLat, q.MinLng) || !geo.ValidLatLng(q.MaxLat, q.MaxLng) {
		return q, errors.New("bbox corner out of range")
	}
	return q, nil
}

func (h *Handlers) translate(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, len(verrs))
	for i, e := range verrs {
		out[i] = e.Translate(h.trans)
	}
	return out
}

func polylineResponse(b export.Boundary) PolylineResponse {
	resp := PolylineResponse{
		RelationID: b.RelationID,
		Name:       b.Name,
		Color:      b.Color,
		Paths:      make([]PathJSON, len(b.Paths)),
	}
	encoded := export.Polylines(b)
	for i, p := range b.Paths {
		frags := make([]int64, len(p.Traversals))
		for j, tr := range p.Traversals {
			frags[j] = int64(tr.FragmentID)
		}
		resp.Paths[i] = PathJSON{
			Polyline:  encoded[i],
			NumPoints: len(p.Points),
			Closed:    p.Closed(),
			Fragments: frags,
		}
	}
	return resp
}

func writeStitchError(w http.ResponseWriter, err error) {
	var invalid *stitch.InvalidFragmentError
	var unresolved *stitch.UnresolvedPointError
	switch {
	case errors.As(err, &invalid):
		writeError(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "invalid_fragment", Message: invalid.Error()})
	case errors.As(err, &unresolved):
		writeError(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "unresolved_point", Message: unresolved.Error()})
	default:
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeGeoJSON(w http.ResponseWriter, boundaries ...export.Boundary) {
	w.Header().Set("Content-Type", "application/geo+json")
	json.NewEncoder(w).Encode(export.FeatureCollection(boundaries...))
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
