package graph

import (
	"math"
	"testing"

	"pathforge/pkg/geo"
)

// buildLine inserts a road between two coordinates the way the graph builder does.
func buildLine(a *Arena, lat1, lon1, lat2, lon2 float64) {
	u := a.NodeID(lat1, lon1)
	v := a.NodeID(lat2, lon2)
	a.AddEdge(u, v, geo.Haversine(lat1, lon1, lat2, lon2))
}

func TestArenaNodeDedup(t *testing.T) {
	a := NewArena()
	// Two roads sharing the endpoint (1.0, 103.1).
	buildLine(a, 1.0, 103.0, 1.0, 103.1)
	buildLine(a, 1.0, 103.1, 1.1, 103.1)

	if a.NumNodes() != 3 {
		t.Fatalf("NumNodes = %d, want 3", a.NumNodes())
	}

	g := a.Finalize()
	if g.NumNodes() != 3 {
		t.Fatalf("NumNodes = %d, want 3", g.NumNodes())
	}
	if g.NumEdges() != 4 {
		t.Fatalf("NumEdges = %d, want 4", g.NumEdges())
	}

	// Ids are assigned sequentially at first sight.
	want := []Coord{{1.0, 103.0}, {1.0, 103.1}, {1.1, 103.1}}
	for id, c := range want {
		got, ok := g.NodeID(c.Lat, c.Lon)
		if !ok || got != uint32(id) {
			t.Errorf("NodeID(%v) = %d, %v; want %d", c, got, ok, id)
		}
		if g.Coord(uint32(id)) != c {
			t.Errorf("Coord(%d) = %v, want %v", id, g.Coord(uint32(id)), c)
		}
	}

	// The shared node has two outgoing edges.
	start, end := g.EdgesFrom(1)
	if end-start != 2 {
		t.Errorf("shared node has %d edges, want 2", end-start)
	}
}

func TestArenaIndexIsBijection(t *testing.T) {
	a := NewArena()
	coords := []Coord{{0, 0}, {0, 1}, {1, 1}, {0, 0}, {1, 1}, {2, 2}}
	for _, c := range coords {
		first := a.NodeID(c.Lat, c.Lon)
		if again := a.NodeID(c.Lat, c.Lon); again != first {
			t.Errorf("NodeID(%v) not stable: %d then %d", c, first, again)
		}
	}
	g := a.Finalize()

	if g.NumNodes() != 4 {
		t.Fatalf("NumNodes = %d, want 4", g.NumNodes())
	}
	seen := make(map[uint32]Coord)
	for _, c := range coords {
		id, ok := g.NodeID(c.Lat, c.Lon)
		if !ok {
			t.Fatalf("coordinate %v missing from index", c)
		}
		if prev, dup := seen[id]; dup && prev != c {
			t.Errorf("id %d maps to both %v and %v", id, prev, c)
		}
		seen[id] = c
		if g.Coord(id) != c {
			t.Errorf("Coord(%d) = %v, want %v", id, g.Coord(id), c)
		}
	}
}

func TestArenaSymmetricEdges(t *testing.T) {
	a := NewArena()
	buildLine(a, 1.30, 103.80, 1.30, 103.81)
	buildLine(a, 1.30, 103.81, 1.31, 103.81)
	buildLine(a, 1.31, 103.81, 1.30, 103.80)
	g := a.Finalize()

	for u := uint32(0); u < g.NumNodes(); u++ {
		start, end := g.EdgesFrom(u)
		for e := start; e < end; e++ {
			v, w := g.Head(e), g.Weight(e)
			if !hasEdge(g, v, u, w) {
				t.Errorf("edge %d->%d (%f) has no reverse", u, v, w)
			}
		}
	}
}

func TestArenaDuplicateRoadsKept(t *testing.T) {
	a := NewArena()
	buildLine(a, 0, 0, 0, 1)
	buildLine(a, 0, 0, 0, 1)
	g := a.Finalize()

	if g.NumNodes() != 2 {
		t.Fatalf("NumNodes = %d, want 2", g.NumNodes())
	}
	if g.NumEdges() != 4 {
		t.Errorf("NumEdges = %d, want 4 (duplicates are not merged)", g.NumEdges())
	}
}

func TestArenaInsertionOrder(t *testing.T) {
	a := NewArena()
	hub := a.NodeID(0, 0)
	x := a.NodeID(0, 3)
	y := a.NodeID(0, 1)
	z := a.NodeID(0, 2)
	a.AddEdge(hub, x, 3)
	a.AddEdge(hub, y, 1)
	a.AddEdge(z, hub, 2)
	g := a.Finalize()

	start, end := g.EdgesFrom(hub)
	var heads []uint32
	for e := start; e < end; e++ {
		heads = append(heads, g.Head(e))
	}
	want := []uint32{x, y, z}
	if len(heads) != len(want) {
		t.Fatalf("hub has %d edges, want %d", len(heads), len(want))
	}
	for i := range want {
		if heads[i] != want[i] {
			t.Errorf("edge %d from hub goes to %d, want %d", i, heads[i], want[i])
		}
	}
}

func TestArenaSelfLoop(t *testing.T) {
	a := NewArena()
	buildLine(a, 5, 5, 5, 5)
	g := a.Finalize()

	if g.NumNodes() != 1 || g.NumEdges() != 2 {
		t.Fatalf("got %d nodes, %d edges; want 1, 2", g.NumNodes(), g.NumEdges())
	}
	if g.Weight(0) != 0 {
		t.Errorf("self-loop weight = %f, want 0", g.Weight(0))
	}
}

func TestArenaEmpty(t *testing.T) {
	g := NewArena().Finalize()
	if g.NumNodes() != 0 || g.NumEdges() != 0 {
		t.Errorf("got %d nodes, %d edges; want empty", g.NumNodes(), g.NumEdges())
	}
	if _, ok := g.NodeID(0, 0); ok {
		t.Error("empty graph should not resolve coordinates")
	}
}

func TestArenaUseAfterFinalizePanics(t *testing.T) {
	a := NewArena()
	a.Finalize()

	defer func() {
		if recover() == nil {
			t.Error("expected panic when using a finalized arena")
		}
	}()
	a.NodeID(1, 1)
}

func TestBuildCSRInvariants(t *testing.T) {
	a := NewArena()
	buildLine(a, 1.0, 103.0, 1.1, 103.1)
	buildLine(a, 1.0, 103.0, 1.2, 103.2)
	buildLine(a, 1.0, 103.0, 1.3, 103.3)
	g := a.Finalize()

	if err := validateCSR(g.firstOut, g.head, g.NumNodes()); err != nil {
		t.Fatalf("validateCSR: %v", err)
	}
	if g.firstOut[g.NumNodes()] != g.NumEdges() {
		t.Errorf("FirstOut[%d]=%d != NumEdges=%d", g.NumNodes(), g.firstOut[g.NumNodes()], g.NumEdges())
	}
}

func TestValidCoord(t *testing.T) {
	if !ValidCoord(1.3, 103.8) {
		t.Error("finite coordinate reported invalid")
	}
	if ValidCoord(math.NaN(), 0) {
		t.Error("NaN latitude reported valid")
	}
}

func hasEdge(g *Graph, from, to uint32, w float64) bool {
	start, end := g.EdgesFrom(from)
	for e := start; e < end; e++ {
		if g.Head(e) == to && g.Weight(e) == w {
			return true
		}
	}
	return false
}
