package api

import "time"

// RouteRequest is the JSON body for POST /api/v1/route.
type RouteRequest struct {
	Start PointJSON `json:"start"`
	End   PointJSON `json:"end"`
}

// PointJSON represents a lat/lon pair in JSON.
type PointJSON struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// The route response is a GeoJSON Feature with a LineString geometry in
// [lon, lat] order and these properties.
const (
	propPoints         = "points"
	propDistanceMeters = "distance_meters"
)

// ErrorResponse is the JSON response for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// StatusResponse is the JSON response for GET /api/v1/status.
type StatusResponse struct {
	Initialized     bool       `json:"initialized"`
	Nodes           uint32     `json:"nodes"`
	Edges           uint32     `json:"edges"`
	Components      int        `json:"components"`
	LoadedFromCache bool       `json:"loaded_from_cache"`
	LoadedAt        *time.Time `json:"loaded_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
}

// HealthResponse is the JSON response for GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
}
