// Package service owns the live routing engine: it builds the graph at
// startup, swaps in rebuilt graphs on reload and answers route queries
// against whichever engine is current.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"pathforge/pkg/builder"
	"pathforge/pkg/graph"
	"pathforge/pkg/routing"
)

// ErrNotInitialized is returned by Reload before a successful Load when the
// rebuild fails too.
var ErrNotInitialized = errors.New("routing engine not initialized")

// Loader produces a graph. fresh asks for a rebuild from the data source,
// bypassing the cache snapshot.
type Loader func(ctx context.Context, fresh bool) (*graph.Graph, builder.Stats, error)

// Info describes the current engine.
type Info struct {
	Initialized bool
	Nodes       uint32
	Edges       uint32
	Components  int
	FromCache   bool
	LoadedAt    time.Time
	LastError   string
}

// snapshot pairs an engine with its Info. Both are immutable once stored.
type snapshot struct {
	engine *routing.Engine
	info   Info
}

// Options configures the engines the service builds.
type Options struct {
	Index         string // routing.IndexRTree or routing.IndexLinear
	MaxExpansions int

	// Registerer receives the graph metrics. Nil leaves them unregistered, so
	// any number of services can coexist in one process.
	Registerer prometheus.Registerer
}

// Service holds the current engine. All methods are safe for concurrent use.
type Service struct {
	load    Loader
	opts    Options
	current atomic.Pointer[snapshot]
	group   singleflight.Group
	metrics *metrics
}

type metrics struct {
	nodes         prometheus.Gauge
	edges         prometheus.Gauge
	components    prometheus.Gauge
	builds        *prometheus.CounterVec
	buildDuration prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		nodes: f.NewGauge(prometheus.GaugeOpts{
			Name: "pathforge_graph_nodes",
			Help: "Number of nodes in the current routing graph.",
		}),
		edges: f.NewGauge(prometheus.GaugeOpts{
			Name: "pathforge_graph_edges",
			Help: "Number of directed edges in the current routing graph.",
		}),
		components: f.NewGauge(prometheus.GaugeOpts{
			Name: "pathforge_graph_components",
			Help: "Number of connected components in the current routing graph.",
		}),
		builds: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pathforge_graph_builds_total",
			Help: "Graph loads by result.",
		}, []string{"result"}),
		buildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pathforge_graph_build_duration_seconds",
			Help:    "Time to load or build the routing graph.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}
}

// New returns a Service with an empty, uninitialized engine. Call Load to
// build the first graph.
func New(load Loader, opts Options) *Service {
	s := &Service{
		load:    load,
		opts:    opts,
		metrics: newMetrics(opts.Registerer),
	}
	s.current.Store(&snapshot{engine: s.newEngine(graph.Empty())})
	return s
}

func (s *Service) newEngine(g *graph.Graph) *routing.Engine {
	index, err := routing.NewIndex(s.opts.Index, g)
	if err != nil {
		log.Printf("Warning: %v, using the R-tree", err)
		index = routing.NewRTreeIndex(g)
	}
	return routing.NewEngine(g, routing.Options{
		Index:         index,
		MaxExpansions: s.opts.MaxExpansions,
	})
}

// Load builds the engine, using the cache snapshot when it is readable. On
// failure the service keeps serving an empty engine and reports itself as
// not initialized.
func (s *Service) Load(ctx context.Context) error {
	return s.build(ctx, false)
}

// Reload rebuilds the graph from the data source and swaps it in. Queries in
// flight finish on the engine they started with. If the rebuild fails the
// previous engine stays current.
func (s *Service) Reload(ctx context.Context) error {
	return s.build(ctx, true)
}

// build runs at most one load at a time; concurrent callers share its result.
func (s *Service) build(ctx context.Context, fresh bool) error {
	_, err, shared := s.group.Do("build", func() (any, error) {
		return nil, s.doBuild(ctx, fresh)
	})
	if shared {
		log.Printf("Joined graph build already in progress")
	}
	return err
}

func (s *Service) doBuild(ctx context.Context, fresh bool) error {
	start := time.Now()
	g, stats, err := s.load(ctx, fresh)
	s.metrics.buildDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		s.metrics.builds.WithLabelValues("error").Inc()
		prev := s.current.Load()
		if prev.info.Initialized {
			log.Printf("Graph reload failed, keeping current engine: %v", err)
			return fmt.Errorf("reload graph: %w", err)
		}
		log.Printf("Failed to initialize routing engine: %v", err)
		info := prev.info
		info.LastError = err.Error()
		s.current.Store(&snapshot{engine: prev.engine, info: info})
		return fmt.Errorf("%w: %w", ErrNotInitialized, err)
	}

	s.metrics.builds.WithLabelValues("ok").Inc()
	engine := s.newEngine(g)
	info := Info{
		Initialized: true,
		Nodes:       g.NumNodes(),
		Edges:       g.NumEdges(),
		Components:  engine.NumComponents(),
		FromCache:   stats.FromCache,
		LoadedAt:    time.Now(),
	}
	s.current.Store(&snapshot{engine: engine, info: info})

	s.metrics.nodes.Set(float64(info.Nodes))
	s.metrics.edges.Set(float64(info.Edges))
	s.metrics.components.Set(float64(info.Components))

	log.Printf("Routing engine initialized: nodes=%d edges=%d components=%d", info.Nodes, info.Edges, info.Components)
	return nil
}

// Info describes the engine currently serving queries.
func (s *Service) Info() Info {
	return s.current.Load().info
}

// Route implements routing.Router against the current engine.
func (s *Service) Route(ctx context.Context, start, end routing.LatLng) routing.RouteResult {
	return s.current.Load().engine.Route(ctx, start, end)
}
