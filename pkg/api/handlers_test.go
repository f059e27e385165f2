package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"pathforge/pkg/config"
	"pathforge/pkg/routing"
	"pathforge/pkg/service"
)

// mockBackend implements Backend for testing.
type mockBackend struct {
	result    routing.RouteResult
	info      service.Info
	reloadErr error
	reloads   int
}

func (m *mockBackend) Route(ctx context.Context, start, end routing.LatLng) routing.RouteResult {
	return m.result
}

func (m *mockBackend) Info() service.Info { return m.info }

func (m *mockBackend) Reload(ctx context.Context) error {
	m.reloads++
	return m.reloadErr
}

func readyBackend(result routing.RouteResult) *mockBackend {
	return &mockBackend{
		result: result,
		info:   service.Info{Initialized: true, Nodes: 3, Edges: 4, Components: 1},
	}
}

const validBody = `{"start":{"lat":1.3,"lon":103.8},"end":{"lat":1.35,"lon":103.85}}`

func postRoute(h *Handlers, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/v1/route", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.HandleRoute(w, req)
	return w
}

func TestHandleRoute_Success(t *testing.T) {
	mock := readyBackend(routing.RouteResult{
		Path: []routing.LatLng{
			{Lat: 1.3, Lng: 103.8},
			{Lat: 1.32, Lng: 103.82},
			{Lat: 1.35, Lng: 103.85},
		},
		DistanceMeters: 1234.5,
		Status:         routing.StatusFound,
	})
	m := NewMetrics(prometheus.NewRegistry())
	h := NewHandlers(mock, m)

	w := postRoute(h, validBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Type     string `json:"type"`
		Geometry struct {
			Type        string       `json:"type"`
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Points         int     `json:"points"`
			DistanceMeters float64 `json:"distance_meters"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Type != "Feature" || resp.Geometry.Type != "LineString" {
		t.Errorf("got %s/%s, want Feature/LineString", resp.Type, resp.Geometry.Type)
	}
	if resp.Properties.Points != 3 {
		t.Errorf("points = %d, want 3", resp.Properties.Points)
	}
	if resp.Properties.DistanceMeters != 1234.5 {
		t.Errorf("distance_meters = %f, want 1234.5", resp.Properties.DistanceMeters)
	}
	// GeoJSON order is [lon, lat].
	if got := resp.Geometry.Coordinates[0]; got != [2]float64{103.8, 1.3} {
		t.Errorf("first coordinate = %v, want [103.8 1.3]", got)
	}

	if got := testutil.ToFloat64(m.requests.WithLabelValues(outcomeFound)); got != 1 {
		t.Errorf("found counter = %f, want 1", got)
	}
}

func TestHandleRoute_InvalidJSON(t *testing.T) {
	h := NewHandlers(readyBackend(routing.RouteResult{}), nil)

	w := postRoute(h, "not json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleRoute_MissingContentType(t *testing.T) {
	h := NewHandlers(readyBackend(routing.RouteResult{}), nil)

	req := httptest.NewRequest("POST", "/api/v1/route", strings.NewReader(validBody))
	w := httptest.NewRecorder()

	h.HandleRoute(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleRoute_OutOfBounds(t *testing.T) {
	h := NewHandlers(readyBackend(routing.RouteResult{}), nil)

	// Latitude out of valid range (-90 to 90).
	w := postRoute(h, `{"start":{"lat":91.0,"lon":103.8},"end":{"lat":1.35,"lon":103.85}}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Field != "start" {
		t.Errorf("field = %q, want start", resp.Field)
	}
}

func TestHandleRoute_Outcomes(t *testing.T) {
	tests := []struct {
		name     string
		backend  *mockBackend
		wantCode int
		wantErr  string
	}{
		{
			name:     "no route",
			backend:  readyBackend(routing.RouteResult{Status: routing.StatusUnreachable}),
			wantCode: http.StatusNotFound,
			wantErr:  "route_not_found",
		},
		{
			name:     "empty graph",
			backend:  readyBackend(routing.RouteResult{Status: routing.StatusNoNode}),
			wantCode: http.StatusNotFound,
			wantErr:  "route_not_found",
		},
		{
			name:     "aborted search",
			backend:  readyBackend(routing.RouteResult{Status: routing.StatusAborted}),
			wantCode: http.StatusServiceUnavailable,
			wantErr:  "request_timeout",
		},
		{
			name:     "engine not initialized",
			backend:  &mockBackend{},
			wantCode: http.StatusServiceUnavailable,
			wantErr:  "engine_unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postRoute(NewHandlers(tt.backend, NewMetrics(prometheus.NewRegistry())), validBody)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error != tt.wantErr {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantErr)
			}
		})
	}
}

func TestHandleStatus(t *testing.T) {
	loaded := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock := &mockBackend{info: service.Info{
		Initialized: true,
		Nodes:       10,
		Edges:       18,
		Components:  2,
		FromCache:   true,
		LoadedAt:    loaded,
	}}
	h := NewHandlers(mock, nil)

	req := httptest.NewRequest("GET", "/api/v1/status", nil)
	w := httptest.NewRecorder()
	h.HandleStatus(w, req)

	var resp StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Initialized || resp.Nodes != 10 || resp.Edges != 18 || resp.Components != 2 || !resp.LoadedFromCache {
		t.Errorf("status = %+v", resp)
	}
	if resp.LoadedAt == nil || !resp.LoadedAt.Equal(loaded) {
		t.Errorf("loaded_at = %v, want %v", resp.LoadedAt, loaded)
	}
}

func TestHandleStatus_Uninitialized(t *testing.T) {
	h := NewHandlers(&mockBackend{info: service.Info{LastError: "db down"}}, nil)

	req := httptest.NewRequest("GET", "/api/v1/status", nil)
	w := httptest.NewRecorder()
	h.HandleStatus(w, req)

	body := w.Body.String()
	if !strings.Contains(body, `"initialized":false`) || strings.Contains(body, "loaded_at") {
		t.Errorf("body = %s", body)
	}
}

func TestHandleReload(t *testing.T) {
	mock := readyBackend(routing.RouteResult{})
	h := NewHandlers(mock, nil)

	req := httptest.NewRequest("POST", "/api/v1/admin/reload", nil)
	w := httptest.NewRecorder()
	h.HandleReload(w, req)
	if w.Code != http.StatusOK || mock.reloads != 1 {
		t.Fatalf("status = %d, reloads = %d; want 200, 1", w.Code, mock.reloads)
	}

	mock.reloadErr = errors.New("boom")
	w = httptest.NewRecorder()
	h.HandleReload(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func testServerConfig(enableReload bool) config.ServerConfig {
	cfg := config.Default().Server
	cfg.EnableReload = enableReload
	return cfg
}

func TestServerRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := NewHandlers(readyBackend(routing.RouteResult{}), NewMetrics(reg))
	srv := httptest.NewServer(NewServer(testServerConfig(false), h, reg).Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}

	// Reload is off unless configured.
	resp, err = http.Post(srv.URL+"/api/v1/admin/reload", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("reload status = %d, want 404", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", resp.StatusCode)
	}
}

func TestServerReloadEnabled(t *testing.T) {
	mock := readyBackend(routing.RouteResult{})
	srv := httptest.NewServer(NewServer(testServerConfig(true), NewHandlers(mock, nil), prometheus.NewRegistry()).Handler)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/admin/reload", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || mock.reloads != 1 {
		t.Errorf("status = %d, reloads = %d; want 200, 1", resp.StatusCode, mock.reloads)
	}
}

func TestServerCORS(t *testing.T) {
	h := NewHandlers(readyBackend(routing.RouteResult{}), nil)
	srv := httptest.NewServer(NewServer(testServerConfig(false), h, prometheus.NewRegistry()).Handler)
	defer srv.Close()

	req, _ := http.NewRequest("OPTIONS", srv.URL+"/api/v1/route", nil)
	req.Header.Set("Origin", "http://localhost:4200")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got == "" {
		t.Error("preflight response has no Access-Control-Allow-Origin")
	}
}
