// Package source provides the road geometry data sources the graph builder
// reads from.
package source

import (
	"context"

	"github.com/paulmach/orb"
)

// Road is one row of road geometry. Geometry is normally an orb.LineString
// with points in (lon, lat) order; anything else is skipped by the builder.
type Road struct {
	ID       string
	Geometry orb.Geometry
}

// Source returns the full collection of road geometries.
type Source interface {
	// Roads fetches every road. There is no filtered or incremental fetch.
	Roads(ctx context.Context) ([]Road, error)

	// Close releases any connection held by the source. It is safe to call
	// more than once and when Roads was never called.
	Close() error
}

// Memory is a Source over a fixed slice of roads.
type Memory struct {
	roads []Road
}

// NewMemory returns a Source serving the given roads.
func NewMemory(roads ...Road) *Memory {
	return &Memory{roads: roads}
}

// Roads returns a copy of the configured roads.
func (m *Memory) Roads(ctx context.Context) ([]Road, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Road, len(m.roads))
	copy(out, m.roads)
	return out, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// Line is a shorthand for a LineString road given as (lat, lon) pairs.
func Line(id string, latLons ...[2]float64) Road {
	ls := make(orb.LineString, len(latLons))
	for i, ll := range latLons {
		ls[i] = orb.Point{ll[1], ll[0]}
	}
	return Road{ID: id, Geometry: ls}
}
