package graph

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteSnapshotRejectsOversizedGraph(t *testing.T) {
	tests := []struct {
		name string
		g    *Graph
	}{
		{"nodes", &Graph{numNodes: maxNodes + 1}},
		{"edges", &Graph{numEdges: maxEdges + 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "graph.snapshot")
			err := WriteSnapshot(path, tt.g)
			if !errors.Is(err, ErrTooLarge) {
				t.Fatalf("WriteSnapshot error = %v, want ErrTooLarge", err)
			}
			if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
				t.Errorf("snapshot written despite limit: %v", err)
			}
			if _, err := os.Stat(path + ".tmp"); !errors.Is(err, fs.ErrNotExist) {
				t.Errorf("temp file left behind: %v", err)
			}
		})
	}
}

func TestCheckLimits(t *testing.T) {
	if err := checkLimits(maxNodes, maxEdges); err != nil {
		t.Errorf("checkLimits at the limits: %v", err)
	}
	if err := checkLimits(maxNodes+1, 0); !errors.Is(err, ErrTooLarge) {
		t.Errorf("checkLimits nodes over: %v", err)
	}
	if err := checkLimits(0, maxEdges+1); !errors.Is(err, ErrTooLarge) {
		t.Errorf("checkLimits edges over: %v", err)
	}
}
