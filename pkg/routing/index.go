package routing

import (
	"errors"
	"fmt"
	"math"

	"github.com/tidwall/rtree"

	"pathforge/pkg/geo"
	"pathforge/pkg/graph"
)

// NodeIndex resolves a coordinate to the graph node closest to it by
// Haversine distance. When several nodes are equally close the lowest node id
// wins. ok is false when the graph has no nodes or the coordinate is not finite.
type NodeIndex interface {
	Nearest(lat, lon float64) (node uint32, ok bool)
}

// Index kinds accepted by NewIndex.
const (
	IndexLinear = "linear"
	IndexRTree  = "rtree"
)

// ErrUnknownIndex is returned by NewIndex for an unrecognised kind.
var ErrUnknownIndex = errors.New("unknown node index")

// NewIndex builds the named index over g. The empty kind selects the R-tree.
func NewIndex(kind string, g *graph.Graph) (NodeIndex, error) {
	switch kind {
	case "", IndexRTree:
		return NewRTreeIndex(g), nil
	case IndexLinear:
		return NewLinearIndex(g), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownIndex, kind)
}

// LinearIndex scans every node on each lookup.
type LinearIndex struct {
	g *graph.Graph
}

// NewLinearIndex returns a scanning index over g.
func NewLinearIndex(g *graph.Graph) *LinearIndex {
	return &LinearIndex{g: g}
}

// Nearest implements NodeIndex.
func (ix *LinearIndex) Nearest(lat, lon float64) (uint32, bool) {
	if !graph.ValidCoord(lat, lon) {
		return 0, false
	}
	best := uint32(noNode)
	bestDist := math.Inf(1)
	for u := uint32(0); u < ix.g.NumNodes(); u++ {
		c := ix.g.Coord(u)
		// Strict comparison keeps the lowest id among equal distances.
		if d := geo.Haversine(lat, lon, c.Lat, c.Lon); d < bestDist {
			best, bestDist = u, d
		}
	}
	return best, best != noNode
}

// RTreeIndex answers nearest-node lookups with a best-first R-tree walk.
// Interior boxes are ranked by geo.BoxLowerBound, which never exceeds the
// Haversine distance to anything inside, so the walk returns exactly what
// LinearIndex would.
type RTreeIndex struct {
	tr rtree.RTreeG[uint32]
}

// NewRTreeIndex indexes every node of g.
func NewRTreeIndex(g *graph.Graph) *RTreeIndex {
	ix := &RTreeIndex{}
	for u := uint32(0); u < g.NumNodes(); u++ {
		c := g.Coord(u)
		p := [2]float64{c.Lon, c.Lat}
		ix.tr.Insert(p, p, u)
	}
	return ix
}

// Nearest implements NodeIndex.
func (ix *RTreeIndex) Nearest(lat, lon float64) (uint32, bool) {
	if !graph.ValidCoord(lat, lon) {
		return 0, false
	}
	best := uint32(noNode)
	bestDist := math.Inf(1)
	ix.tr.Nearby(
		func(min, max [2]float64, _ uint32, item bool) float64 {
			if item {
				return geo.Haversine(lat, lon, min[1], min[0])
			}
			return geo.BoxLowerBound(lat, lon, min[1], min[0], max[1], max[0])
		},
		func(_, _ [2]float64, u uint32, dist float64) bool {
			if dist > bestDist {
				return false
			}
			// Items come out by distance; keep going through ties to find
			// the lowest id.
			if dist < bestDist || u < best {
				best, bestDist = u, dist
			}
			return true
		},
	)
	return best, best != noNode
}
