package graph

// Coord is a node coordinate. Two coordinates identify the same node only if
// both components compare equal as float64.
type Coord struct {
	Lat float64
	Lon float64
}

// Graph is an undirected road graph in CSR (Compressed Sparse Row) format.
// Every edge is stored once per direction. A Graph is immutable: it is only
// produced by Arena.Finalize or ReadSnapshot and is safe for concurrent reads.
type Graph struct {
	numNodes uint32
	numEdges uint32
	firstOut []uint32  // len: numNodes + 1; firstOut[i]..firstOut[i+1] are edges from node i
	head     []uint32  // len: numEdges; target node for each edge
	weight   []float64 // len: numEdges; Haversine distance in meters
	nodeLat  []float64 // len: numNodes
	nodeLon  []float64 // len: numNodes

	// index is the coordinate -> node id half of the coordinate index;
	// nodeLat/nodeLon are the other half.
	index map[Coord]uint32
}

// NumNodes returns the number of nodes. Node ids are 0..NumNodes-1, so this
// is also the next id the builder would have assigned.
func (g *Graph) NumNodes() uint32 { return g.numNodes }

// NumEdges returns the number of directed edges (twice the inserted roads).
func (g *Graph) NumEdges() uint32 { return g.numEdges }

// EdgesFrom returns the range of edge indices for edges originating from node u.
func (g *Graph) EdgesFrom(u uint32) (start, end uint32) {
	return g.firstOut[u], g.firstOut[u+1]
}

// Head returns the target node of edge e.
func (g *Graph) Head(e uint32) uint32 { return g.head[e] }

// Weight returns the cost of edge e in meters.
func (g *Graph) Weight(e uint32) float64 { return g.weight[e] }

// Coord returns the coordinate of node u.
func (g *Graph) Coord(u uint32) Coord {
	return Coord{Lat: g.nodeLat[u], Lon: g.nodeLon[u]}
}

// NodeID looks up the node for an exact coordinate.
func (g *Graph) NodeID(lat, lon float64) (uint32, bool) {
	id, ok := g.index[Coord{Lat: lat, Lon: lon}]
	return id, ok
}

// Empty returns a graph with no nodes.
func Empty() *Graph {
	return &Graph{
		firstOut: []uint32{0},
		index:    map[Coord]uint32{},
	}
}
