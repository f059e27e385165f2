// Package builder turns road geometries into a routing graph, going through
// the on-disk cache snapshot when one is available.
package builder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/paulmach/orb"

	"pathforge/pkg/geo"
	"pathforge/pkg/graph"
	"pathforge/pkg/source"
)

// Mode selects which points of a road become graph nodes.
type Mode string

const (
	// ModeEndpoints links only the first and last point of each road with a
	// single straight-line edge. Interior vertices are ignored.
	ModeEndpoints Mode = "endpoints"

	// ModeVertices makes every vertex a node and every consecutive pair an edge.
	ModeVertices Mode = "vertices"
)

// ErrUnknownMode is returned by New for an unrecognised Mode.
var ErrUnknownMode = errors.New("unknown build mode")

// ParseMode validates a mode name. The empty string means ModeEndpoints.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeEndpoints:
		return ModeEndpoints, nil
	case ModeVertices:
		return ModeVertices, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Options configures a Builder.
type Options struct {
	// CachePath is the snapshot file. Empty disables caching.
	CachePath string

	Mode Mode

	// SkipCacheRead forces a rebuild from the source. The fresh graph is still
	// written to CachePath.
	SkipCacheRead bool
}

// Stats describes the last Build.
type Stats struct {
	FromCache bool
	Roads     int // roads returned by the source
	Skipped   int // non-lines, short lines and lines with non-finite points
	Segments  int // undirected edges inserted; vertices mode adds one per pair
	Nodes     uint32
	Edges     uint32
	Duration  time.Duration
}

// Builder constructs a graph once. It is not safe for concurrent use.
type Builder struct {
	src    source.Source
	opts   Options
	stats  Stats
	opened bool
	closed bool
}

// New returns a Builder reading from src.
func New(src source.Source, opts Options) (*Builder, error) {
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	opts.Mode = mode
	return &Builder{src: src, opts: opts}, nil
}

// Build returns the cached graph if the snapshot decodes, otherwise builds
// from the source and refreshes the snapshot. Only a source failure is
// returned as an error; an empty source yields an empty graph.
func (b *Builder) Build(ctx context.Context) (*graph.Graph, error) {
	start := time.Now()
	b.stats = Stats{}

	if g, ok := b.readCache(); ok {
		b.stats = Stats{
			FromCache: true,
			Nodes:     g.NumNodes(),
			Edges:     g.NumEdges(),
			Duration:  time.Since(start),
		}
		log.Printf("Graph loaded from cache %s: %d nodes, %d edges", b.opts.CachePath, g.NumNodes(), g.NumEdges())
		return g, nil
	}

	b.opened = true
	roads, err := b.src.Roads(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch roads: %w", err)
	}

	arena := graph.NewArena()
	skipped := 0
	for _, r := range roads {
		if !b.addRoad(arena, r.Geometry) {
			skipped++
		}
	}
	segments := arena.NumSegments()
	g := arena.Finalize()

	b.stats = Stats{
		Roads:    len(roads),
		Skipped:  skipped,
		Segments: segments,
		Nodes:    g.NumNodes(),
		Edges:    g.NumEdges(),
		Duration: time.Since(start),
	}
	log.Printf("Graph built from %d roads (%d skipped, %d segments): %d nodes, %d edges in %s",
		len(roads), skipped, segments, g.NumNodes(), g.NumEdges(), b.stats.Duration.Round(time.Millisecond))

	b.writeCache(g)
	return g, nil
}

// addRoad inserts one geometry and reports whether it was usable.
func (b *Builder) addRoad(arena *graph.Arena, geom orb.Geometry) bool {
	ls, ok := geom.(orb.LineString)
	if !ok || len(ls) < 2 {
		return false
	}
	for _, p := range ls {
		if !graph.ValidCoord(p.Lat(), p.Lon()) {
			return false
		}
	}

	if b.opts.Mode == ModeEndpoints {
		addSegment(arena, ls[0], ls[len(ls)-1])
		return true
	}
	for i := 0; i+1 < len(ls); i++ {
		addSegment(arena, ls[i], ls[i+1])
	}
	return true
}

func addSegment(arena *graph.Arena, p, q orb.Point) {
	u := arena.NodeID(p.Lat(), p.Lon())
	v := arena.NodeID(q.Lat(), q.Lon())
	arena.AddEdge(u, v, geo.Haversine(p.Lat(), p.Lon(), q.Lat(), q.Lon()))
}

func (b *Builder) readCache() (*graph.Graph, bool) {
	if b.opts.CachePath == "" || b.opts.SkipCacheRead {
		return nil, false
	}
	g, err := graph.ReadSnapshot(b.opts.CachePath)
	switch {
	case err == nil:
		return g, true
	case errors.Is(err, fs.ErrNotExist):
	default:
		log.Printf("Warning: ignoring unreadable graph cache %s: %v", b.opts.CachePath, err)
	}
	return nil, false
}

func (b *Builder) writeCache(g *graph.Graph) {
	if b.opts.CachePath == "" {
		return
	}
	if err := graph.WriteSnapshot(b.opts.CachePath, g); err != nil {
		log.Printf("Warning: failed to write graph cache %s: %v", b.opts.CachePath, err)
		return
	}
	log.Printf("Graph cache written to %s", b.opts.CachePath)
}

// Stats returns statistics for the last Build.
func (b *Builder) Stats() Stats { return b.stats }

// Close releases the source if Build opened it. Calling Close more than once,
// or after a cache hit, is a no-op.
func (b *Builder) Close() error {
	if b.closed || !b.opened {
		b.closed = true
		return nil
	}
	b.closed = true
	if err := b.src.Close(); err != nil {
		return fmt.Errorf("close source: %w", err)
	}
	return nil
}
