package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"mime"
	"net/http"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"pathforge/pkg/routing"
	"pathforge/pkg/service"
)

// Backend is what the handlers need from the routing service.
type Backend interface {
	routing.Router
	Info() service.Info
	Reload(ctx context.Context) error
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	backend Backend
	metrics *Metrics
}

// NewHandlers creates handlers over backend. metrics may be nil.
func NewHandlers(backend Backend, metrics *Metrics) *Handlers {
	return &Handlers{
		backend: backend,
		metrics: metrics,
	}
}

// Route outcomes, used as the metrics label.
const (
	outcomeFound       = "found"
	outcomeNotFound    = "not_found"
	outcomeTimeout     = "timeout"
	outcomeUnavailable = "unavailable"
	outcomeBadRequest  = "bad_request"
)

// HandleRoute handles POST /api/v1/route.
func (h *Handlers) HandleRoute(w http.ResponseWriter, r *http.Request) {
	// Enforce Content-Type.
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		h.metrics.observe(outcomeBadRequest)
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}

	// Parse request.
	var req RouteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		h.metrics.observe(outcomeBadRequest)
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}

	// Validate coordinates.
	if err := validateCoord(req.Start); err != nil {
		h.metrics.observe(outcomeBadRequest)
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "start")
		return
	}
	if err := validateCoord(req.End); err != nil {
		h.metrics.observe(outcomeBadRequest)
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "end")
		return
	}

	if !h.backend.Info().Initialized {
		log.Printf("Route requested before the routing engine was initialized")
		h.metrics.observe(outcomeUnavailable)
		writeError(w, http.StatusServiceUnavailable, "engine_unavailable", "")
		return
	}

	// Route.
	start := time.Now()
	result := h.backend.Route(r.Context(),
		routing.LatLng{Lat: req.Start.Lat, Lng: req.Start.Lon},
		routing.LatLng{Lat: req.End.Lat, Lng: req.End.Lon})
	if h.metrics != nil {
		h.metrics.latency.Observe(time.Since(start).Seconds())
		h.metrics.expansions.Observe(float64(result.Expanded))
	}

	if !result.Found() {
		if result.Status == routing.StatusAborted {
			h.metrics.observe(outcomeTimeout)
			writeError(w, http.StatusServiceUnavailable, "request_timeout", "")
			return
		}
		log.Printf("Route not found (%s) from (%f, %f) to (%f, %f)",
			result.Status, req.Start.Lat, req.Start.Lon, req.End.Lat, req.End.Lon)
		h.metrics.observe(outcomeNotFound)
		writeError(w, http.StatusNotFound, "route_not_found", "")
		return
	}

	h.metrics.observe(outcomeFound)
	writeJSON(w, http.StatusOK, routeFeature(result))
}

// routeFeature renders a path as a GeoJSON LineString feature.
func routeFeature(result routing.RouteResult) *geojson.Feature {
	ls := make(orb.LineString, len(result.Path))
	for i, ll := range result.Path {
		ls[i] = orb.Point{ll.Lng, ll.Lat}
	}
	f := geojson.NewFeature(ls)
	f.Properties[propPoints] = len(result.Path)
	f.Properties[propDistanceMeters] = result.DistanceMeters
	return f
}

// HandleHealth handles GET /api/v1/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// HandleStatus handles GET /api/v1/status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusFromInfo(h.backend.Info()))
}

// HandleReload handles POST /api/v1/admin/reload. The rebuild is not bound
// to the request deadline; the response waits for it to finish.
func (h *Handlers) HandleReload(w http.ResponseWriter, r *http.Request) {
	log.Printf("Graph reload requested by %s", r.RemoteAddr)
	if err := h.backend.Reload(context.WithoutCancel(r.Context())); err != nil {
		log.Printf("Graph reload failed: %v", err)
		code := "reload_failed"
		if errors.Is(err, service.ErrNotInitialized) {
			code = "engine_unavailable"
		}
		writeError(w, http.StatusInternalServerError, code, "")
		return
	}
	writeJSON(w, http.StatusOK, statusFromInfo(h.backend.Info()))
}

func statusFromInfo(info service.Info) StatusResponse {
	resp := StatusResponse{
		Initialized:     info.Initialized,
		Nodes:           info.Nodes,
		Edges:           info.Edges,
		Components:      info.Components,
		LoadedFromCache: info.FromCache,
		LastError:       info.LastError,
	}
	if !info.LoadedAt.IsZero() {
		at := info.LoadedAt
		resp.LoadedAt = &at
	}
	return resp
}

func validateCoord(p PointJSON) error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return errors.New("coordinates must be finite numbers")
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return errors.New("coordinates out of range")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, field string) {
	writeJSON(w, status, ErrorResponse{Error: code, Field: field})
}
