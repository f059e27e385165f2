package routing

import (
	"context"
	"sync"

	"pathforge/pkg/geo"
	"pathforge/pkg/graph"
)

// LatLng represents a geographic coordinate.
type LatLng struct {
	Lat float64
	Lng float64
}

// Status tells why a route has the path it has.
type Status int

const (
	// StatusFound means Path holds a shortest path.
	StatusFound Status = iota
	// StatusNoNode means the graph is empty, so no endpoint could be resolved.
	StatusNoNode
	// StatusUnreachable means the resolved nodes are not connected.
	StatusUnreachable
	// StatusAborted means the context ended or the expansion budget ran out.
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNoNode:
		return "no_node"
	case StatusUnreachable:
		return "unreachable"
	case StatusAborted:
		return "aborted"
	}
	return "unknown"
}

// RouteResult is the output of a route query. An empty Path means no route.
type RouteResult struct {
	Path           []LatLng // node coordinates from start to end
	DistanceMeters float64
	Expanded       int // nodes settled by the search
	Status         Status
}

// Found reports whether the result carries a path.
func (r RouteResult) Found() bool { return len(r.Path) > 0 }

// Router is the interface for route queries. Absence of a route is reported
// through the result, never as an error.
type Router interface {
	Route(ctx context.Context, start, end LatLng) RouteResult
}

// Options configures an Engine.
type Options struct {
	// Index resolves query points. Nil selects an R-tree over the graph.
	Index NodeIndex

	// MaxExpansions stops a search after this many settled nodes. Zero means
	// unlimited.
	MaxExpansions int
}

// Engine implements Router with A* over an immutable graph. It is safe for
// concurrent use.
type Engine struct {
	g          *graph.Graph
	index      NodeIndex
	components []uint32
	numComps   int
	maxExpand  int
	pool       sync.Pool
}

// NewEngine creates a routing engine for g.
func NewEngine(g *graph.Graph, opts Options) *Engine {
	if opts.Index == nil {
		opts.Index = NewRTreeIndex(g)
	}
	labels, count := graph.Components(g)
	e := &Engine{
		g:          g,
		index:      opts.Index,
		components: labels,
		numComps:   count,
		maxExpand:  opts.MaxExpansions,
	}
	n := g.NumNodes()
	e.pool.New = func() any { return NewQueryState(n) }
	return e
}

// NumComponents returns the number of connected components of the graph.
func (e *Engine) NumComponents() int { return e.numComps }

// Route computes the shortest path between the nodes nearest to start and end.
func (e *Engine) Route(ctx context.Context, start, end LatLng) RouteResult {
	// Step 1: Resolve both points to nodes.
	s, ok := e.index.Nearest(start.Lat, start.Lng)
	if !ok {
		return RouteResult{Status: StatusNoNode}
	}
	t, ok := e.index.Nearest(end.Lat, end.Lng)
	if !ok {
		return RouteResult{Status: StatusNoNode}
	}

	// Step 2: Nodes in different components can never meet.
	if e.components[s] != e.components[t] {
		return RouteResult{Status: StatusUnreachable}
	}

	// Step 3: Search.
	qs := e.pool.Get().(*QueryState)
	defer func() {
		qs.Reset()
		e.pool.Put(qs)
	}()

	status, expanded := e.runAStar(ctx, qs, s, t)
	if status != StatusFound {
		return RouteResult{Expanded: expanded, Status: status}
	}

	// Step 4: Reconstruct.
	return RouteResult{
		Path:           e.buildPath(qs, t),
		DistanceMeters: qs.G[t],
		Expanded:       expanded,
		Status:         StatusFound,
	}
}

// Path is Route with positional coordinates and a background context.
func (e *Engine) Path(startLat, startLon, endLat, endLon float64) []LatLng {
	res := e.Route(context.Background(),
		LatLng{Lat: startLat, Lng: startLon},
		LatLng{Lat: endLat, Lng: endLon})
	return res.Path
}

// runAStar searches from s to t. The heuristic is the Haversine distance to
// the target node, which never exceeds the remaining road distance since
// every edge weighs at least the great-circle distance between its ends.
func (e *Engine) runAStar(ctx context.Context, qs *QueryState, s, t uint32) (Status, int) {
	goal := e.g.Coord(t)
	h := func(u uint32) float64 {
		c := e.g.Coord(u)
		return geo.Haversine(c.Lat, c.Lon, goal.Lat, goal.Lon)
	}

	hs := h(s)
	qs.touch(s, 0, hs, noNode)
	qs.PQ.Push(s, hs)

	expanded := 0
	iterations := 0

	for qs.PQ.Len() > 0 {
		// Check context cancellation periodically.
		iterations++
		if iterations%100 == 0 {
			if ctx.Err() != nil {
				return StatusAborted, expanded
			}
		}

		item := qs.PQ.Pop()
		u := item.Node
		if item.F > qs.F[u] {
			continue // stale entry
		}
		if u == t {
			return StatusFound, expanded
		}

		if e.maxExpand > 0 && expanded >= e.maxExpand {
			return StatusAborted, expanded
		}
		expanded++

		gu := qs.G[u]
		start, end := e.g.EdgesFrom(u)
		for ei := start; ei < end; ei++ {
			v := e.g.Head(ei)
			tentative := gu + e.g.Weight(ei)
			if tentative < qs.G[v] {
				f := tentative + h(v)
				qs.touch(v, tentative, f, u)
				qs.PQ.Push(v, f)
			}
		}
	}

	return StatusUnreachable, expanded
}

// buildPath walks predecessors back from t and returns start-to-end coordinates.
func (e *Engine) buildPath(qs *QueryState, t uint32) []LatLng {
	var nodes []uint32
	for u := t; u != noNode; u = qs.Pred[u] {
		nodes = append(nodes, u)
	}
	path := make([]LatLng, len(nodes))
	for i, u := range nodes {
		c := e.g.Coord(u)
		path[len(nodes)-1-i] = LatLng{Lat: c.Lat, Lng: c.Lon}
	}
	return path
}
