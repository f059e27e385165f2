package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/paulmach/orb/geojson"
)

// GeoJSONFile reads roads from a GeoJSON file holding a FeatureCollection, a
// single Feature or a bare geometry.
type GeoJSONFile struct {
	path string
}

// NewGeoJSONFile returns a Source backed by the file at path.
func NewGeoJSONFile(path string) *GeoJSONFile {
	return &GeoJSONFile{path: path}
}

// Roads reads and decodes the file.
func (s *GeoJSONFile) Roads(ctx context.Context) ([]Road, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read geojson: %w", err)
	}
	roads, err := DecodeGeoJSON(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return roads, nil
}

// Close is a no-op; the file is read in one go.
func (s *GeoJSONFile) Close() error { return nil }

// DecodeGeoJSON converts GeoJSON into roads. Feature ids are kept when
// present; otherwise the feature's position is used.
func DecodeGeoJSON(data []byte) ([]Road, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("probe type: %w", err)
	}

	switch probe.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("feature collection: %w", err)
		}
		roads := make([]Road, 0, len(fc.Features))
		for i, f := range fc.Features {
			roads = append(roads, Road{ID: featureID(f, i), Geometry: f.Geometry})
		}
		return roads, nil

	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("feature: %w", err)
		}
		return []Road{{ID: featureID(f, 0), Geometry: f.Geometry}}, nil

	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("geometry: %w", err)
		}
		return []Road{{ID: "0", Geometry: g.Geometry()}}, nil
	}
}

func featureID(f *geojson.Feature, pos int) string {
	switch id := f.ID.(type) {
	case nil:
		return strconv.Itoa(pos)
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}
