package graph

// UnionFind implements a disjoint-set data structure with path compression
// and union by rank.
type UnionFind struct {
	parent []uint32
	rank   []byte // max rank stays near 30 for realistic graphs
}

// NewUnionFind creates a UnionFind for n elements.
func NewUnionFind(n uint32) *UnionFind {
	parent := make([]uint32, n)
	for i := uint32(0); i < n; i++ {
		parent[i] = i
	}
	return &UnionFind{
		parent: parent,
		rank:   make([]byte, n),
	}
}

// Find returns the representative of the set containing x, with path halving.
func (uf *UnionFind) Find(x uint32) uint32 {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]] // path halving
		x = uf.parent[x]
	}
	return x
}

// Union merges the sets containing x and y. Returns false if already same set.
func (uf *UnionFind) Union(x, y uint32) bool {
	rx := uf.Find(x)
	ry := uf.Find(y)
	if rx == ry {
		return false
	}

	// Union by rank.
	if uf.rank[rx] < uf.rank[ry] {
		rx, ry = ry, rx
	}
	uf.parent[ry] = rx
	if uf.rank[rx] == uf.rank[ry] {
		uf.rank[rx]++
	}
	return true
}

// Components labels every node with its connected component. Labels are
// dense (0..count-1) and numbered in order of each component's lowest node id.
func Components(g *Graph) (labels []uint32, count int) {
	if g.numNodes == 0 {
		return nil, 0
	}

	uf := NewUnionFind(g.numNodes)
	for u := uint32(0); u < g.numNodes; u++ {
		start, end := g.EdgesFrom(u)
		for e := start; e < end; e++ {
			uf.Union(u, g.head[e])
		}
	}

	byRoot := make(map[uint32]uint32)
	labels = make([]uint32, g.numNodes)
	for i := uint32(0); i < g.numNodes; i++ {
		root := uf.Find(i)
		label, ok := byRoot[root]
		if !ok {
			label = uint32(len(byRoot))
			byRoot[root] = label
		}
		labels[i] = label
	}
	return labels, len(byRoot)
}

// LargestComponentSize returns the node count of the largest component.
func LargestComponentSize(labels []uint32, count int) int {
	if count == 0 {
		return 0
	}
	sizes := make([]int, count)
	best := 0
	for _, l := range labels {
		sizes[l]++
		if sizes[l] > best {
			best = sizes[l]
		}
	}
	return best
}
