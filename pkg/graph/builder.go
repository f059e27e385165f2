package graph

import "math"

// arenaEdge is one inserted road, kept in insertion order until Finalize.
type arenaEdge struct {
	from, to uint32
	weight   float64
}

// Arena accumulates nodes and edges while a graph is being built. It owns the
// mutable coordinate index and id counter; Finalize consumes it into an
// immutable Graph. An Arena is not safe for concurrent use.
type Arena struct {
	index map[Coord]uint32
	lats  []float64
	lons  []float64
	edges []arenaEdge
	done  bool
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{index: make(map[Coord]uint32)}
}

// NodeID returns the node for (lat, lon), assigning the next sequential id
// the first time the coordinate is seen.
func (a *Arena) NodeID(lat, lon float64) uint32 {
	a.mustBeOpen()
	key := Coord{Lat: lat, Lon: lon}
	if id, ok := a.index[key]; ok {
		return id
	}
	id := uint32(len(a.lats))
	a.index[key] = id
	a.lats = append(a.lats, lat)
	a.lons = append(a.lons, lon)
	return id
}

// AddEdge inserts the road from-to in both directions with the same weight.
// Duplicate roads are kept as duplicate edges.
func (a *Arena) AddEdge(from, to uint32, weight float64) {
	a.mustBeOpen()
	a.edges = append(a.edges, arenaEdge{from: from, to: to, weight: weight})
}

// NumNodes returns the number of distinct coordinates seen so far.
func (a *Arena) NumNodes() uint32 { return uint32(len(a.lats)) }

// NumSegments returns the number of AddEdge calls so far. Each becomes two
// directed edges in the finalized graph.
func (a *Arena) NumSegments() int { return len(a.edges) }

// Finalize builds the CSR graph. The outgoing edges of each node keep the
// order in which they were inserted. The arena cannot be used afterwards.
func (a *Arena) Finalize() *Graph {
	a.mustBeOpen()
	a.done = true

	numNodes := uint32(len(a.lats))
	numEdges := uint32(2 * len(a.edges))

	// Count outgoing edges per node.
	firstOut := make([]uint32, numNodes+1)
	for _, e := range a.edges {
		firstOut[e.from+1]++
		firstOut[e.to+1]++
	}
	// Prefix sum.
	for i := uint32(1); i <= numNodes; i++ {
		firstOut[i] += firstOut[i-1]
	}

	// Place edges in insertion order.
	head := make([]uint32, numEdges)
	weight := make([]float64, numEdges)
	pos := make([]uint32, numNodes)
	copy(pos, firstOut[:numNodes])
	place := func(from, to uint32, w float64) {
		head[pos[from]] = to
		weight[pos[from]] = w
		pos[from]++
	}
	for _, e := range a.edges {
		place(e.from, e.to, e.weight)
		place(e.to, e.from, e.weight)
	}

	g := &Graph{
		numNodes: numNodes,
		numEdges: numEdges,
		firstOut: firstOut,
		head:     head,
		weight:   weight,
		nodeLat:  a.lats,
		nodeLon:  a.lons,
		index:    a.index,
	}

	a.index, a.lats, a.lons, a.edges = nil, nil, nil, nil
	return g
}

func (a *Arena) mustBeOpen() {
	if a.done {
		panic("graph: arena used after Finalize")
	}
}

// ValidCoord reports whether lat/lon are finite numbers.
func ValidCoord(lat, lon float64) bool {
	return !math.IsNaN(lat) && !math.IsNaN(lon) && !math.IsInf(lat, 0) && !math.IsInf(lon, 0)
}
