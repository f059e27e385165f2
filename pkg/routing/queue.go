package routing

import "math"

// noNode marks an unset predecessor.
const noNode = math.MaxUint32

// MinHeap is a concrete-typed min-heap for the A* frontier, ordered by
// (F, Node). Avoids interface boxing overhead of container/heap.
type MinHeap struct {
	items []PQItem
}

// PQItem is a priority queue entry.
type PQItem struct {
	Node uint32
	F    float64 // g + h at push time
}

func (h *MinHeap) Len() int { return len(h.items) }

func (h *MinHeap) Push(node uint32, f float64) {
	h.items = append(h.items, PQItem{node, f})
	h.siftUp(len(h.items) - 1)
}

func (h *MinHeap) Pop() PQItem {
	n := len(h.items)
	item := h.items[0]
	h.items[0] = h.items[n-1]
	h.items = h.items[:n-1]
	if len(h.items) > 0 {
		h.siftDown(0)
	}
	return item
}

func (h *MinHeap) Reset() {
	h.items = h.items[:0]
}

// less breaks equal priorities by node id so that pops are deterministic.
func (h *MinHeap) less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.F != b.F {
		return a.F < b.F
	}
	return a.Node < b.Node
}

func (h *MinHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(i, parent) {
			break
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *MinHeap) siftDown(i int) {
	n := len(h.items)
	for {
		smallest := i
		left := 2*i + 1
		right := 2*i + 2
		if left < n && h.less(left, smallest) {
			smallest = left
		}
		if right < n && h.less(right, smallest) {
			smallest = right
		}
		if smallest == i {
			break
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}

// QueryState holds per-query state for an A* search.
type QueryState struct {
	G       []float64 // best known cost from the start
	F       []float64 // G + heuristic, used to spot stale heap entries
	Pred    []uint32  // predecessor on the best known path (noNode = none)
	Touched []uint32  // nodes touched during this query (for fast reset)
	PQ      MinHeap
}

// NewQueryState creates a new QueryState for a graph with n nodes.
func NewQueryState(n uint32) *QueryState {
	g := make([]float64, n)
	f := make([]float64, n)
	pred := make([]uint32, n)
	inf := math.Inf(1)
	for i := range g {
		g[i] = inf
		f[i] = inf
		pred[i] = noNode
	}
	return &QueryState{
		G:       g,
		F:       f,
		Pred:    pred,
		Touched: make([]uint32, 0, 1024),
		PQ:      MinHeap{items: make([]PQItem, 0, 256)},
	}
}

// Reset clears only the touched entries for fast reuse.
func (qs *QueryState) Reset() {
	inf := math.Inf(1)
	for _, node := range qs.Touched {
		qs.G[node] = inf
		qs.F[node] = inf
		qs.Pred[node] = noNode
	}
	qs.Touched = qs.Touched[:0]
	qs.PQ.Reset()
}

// touch records a new best cost for node.
func (qs *QueryState) touch(node uint32, g, f float64, pred uint32) {
	if math.IsInf(qs.G[node], 1) {
		qs.Touched = append(qs.Touched, node)
	}
	qs.G[node] = g
	qs.F[node] = f
	qs.Pred[node] = pred
}
