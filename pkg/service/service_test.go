package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pathforge/pkg/builder"
	"pathforge/pkg/config"
	"pathforge/pkg/graph"
	"pathforge/pkg/osm"
	"pathforge/pkg/routing"
	"pathforge/pkg/source"
)

func abcLoader() Loader {
	return func(ctx context.Context, fresh bool) (*graph.Graph, builder.Stats, error) {
		return Build(ctx, source.NewMemory(
			source.Line("ab", [2]float64{0, 0}, [2]float64{0, 1}),
			source.Line("bc", [2]float64{0, 1}, [2]float64{0, 2}),
		), builder.Options{})
	}
}

func failingLoader(err error) Loader {
	return func(context.Context, bool) (*graph.Graph, builder.Stats, error) {
		return nil, builder.Stats{}, err
	}
}

func TestServiceLoad(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := New(abcLoader(), Options{Registerer: reg})

	assert.False(t, svc.Info().Initialized)
	res := svc.Route(context.Background(), routing.LatLng{}, routing.LatLng{Lat: 0, Lng: 2})
	assert.False(t, res.Found(), "uninitialized service has no route")

	require.NoError(t, svc.Load(context.Background()))
	info := svc.Info()
	assert.True(t, info.Initialized)
	assert.Equal(t, uint32(3), info.Nodes)
	assert.Equal(t, uint32(4), info.Edges)
	assert.Equal(t, 1, info.Components)

	res = svc.Route(context.Background(), routing.LatLng{}, routing.LatLng{Lat: 0, Lng: 2})
	require.True(t, res.Found())
	assert.Len(t, res.Path, 3)

	assert.Equal(t, 3.0, testutil.ToFloat64(svc.metrics.nodes))
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.builds.WithLabelValues("ok")))
}

func TestServiceWithoutRegisterer(t *testing.T) {
	// Two services without a registry must not collide on metric names.
	a := New(abcLoader(), Options{})
	b := New(abcLoader(), Options{})

	require.NoError(t, a.Load(context.Background()))
	require.NoError(t, b.Load(context.Background()))
	assert.Equal(t, 3.0, testutil.ToFloat64(a.metrics.nodes))
	assert.Equal(t, 3.0, testutil.ToFloat64(b.metrics.nodes))
}

func TestServiceLoadFailureDegrades(t *testing.T) {
	boom := errors.New("db down")
	svc := New(failingLoader(boom), Options{Registerer: prometheus.NewRegistry()})

	err := svc.Load(context.Background())
	require.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrNotInitialized)

	info := svc.Info()
	assert.False(t, info.Initialized)
	assert.Equal(t, "db down", info.LastError)

	res := svc.Route(context.Background(), routing.LatLng{}, routing.LatLng{Lat: 1, Lng: 1})
	assert.Equal(t, routing.StatusNoNode, res.Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.builds.WithLabelValues("error")))
}

func TestServiceReloadFailureKeepsEngine(t *testing.T) {
	var fail atomic.Bool
	ok := abcLoader()
	svc := New(func(ctx context.Context, fresh bool) (*graph.Graph, builder.Stats, error) {
		if fail.Load() {
			return nil, builder.Stats{}, errors.New("rebuild failed")
		}
		return ok(ctx, fresh)
	}, Options{Registerer: prometheus.NewRegistry()})

	require.NoError(t, svc.Load(context.Background()))
	fail.Store(true)
	require.Error(t, svc.Reload(context.Background()))

	assert.True(t, svc.Info().Initialized)
	assert.Equal(t, uint32(3), svc.Info().Nodes)
}

func TestServiceReloadPassesFresh(t *testing.T) {
	var sawFresh atomic.Bool
	ok := abcLoader()
	svc := New(func(ctx context.Context, fresh bool) (*graph.Graph, builder.Stats, error) {
		if fresh {
			sawFresh.Store(true)
		}
		return ok(ctx, fresh)
	}, Options{Registerer: prometheus.NewRegistry()})

	require.NoError(t, svc.Load(context.Background()))
	assert.False(t, sawFresh.Load())
	require.NoError(t, svc.Reload(context.Background()))
	assert.True(t, sawFresh.Load())
}

func TestServiceConcurrentLoadsShareOneBuild(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	ok := abcLoader()
	svc := New(func(ctx context.Context, fresh bool) (*graph.Graph, builder.Stats, error) {
		calls.Add(1)
		<-release
		return ok(ctx, fresh)
	}, Options{Registerer: prometheus.NewRegistry()})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.Load(context.Background()))
		}()
	}
	// Wait until the first build is running before releasing it, so the
	// second caller has a chance to join.
	for calls.Load() == 0 {
		runtime.Gosched()
	}
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(2))
	assert.True(t, svc.Info().Initialized)
}

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
}

func TestNewLoaderUsesCache(t *testing.T) {
	dir := t.TempDir()
	geojsonPath := filepath.Join(dir, "roads.geojson")
	writeFile(t, geojsonPath, `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{},"geometry":{"type":"LineString","coordinates":[[0,0],[1,0]]}},
		{"type":"Feature","properties":{},"geometry":{"type":"LineString","coordinates":[[1,0],[2,0]]}}]}`)

	cfg := config.Default()
	cfg.Graph.Source = config.SourceGeoJSON
	cfg.Graph.SourcePath = geojsonPath
	cfg.Graph.CachePath = filepath.Join(dir, "graph.cache")

	load := NewLoader(&cfg)
	g, stats, err := load(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, stats.FromCache)
	assert.Equal(t, uint32(3), g.NumNodes())

	_, stats, err = load(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, stats.FromCache)

	_, stats, err = load(context.Background(), true)
	require.NoError(t, err)
	assert.False(t, stats.FromCache, "fresh load bypasses the cache")
}

func TestNewSource(t *testing.T) {
	cfg := config.Default()

	src, err := NewSource(&cfg)
	require.NoError(t, err)
	assert.IsType(t, &source.PostGIS{}, src)
	assert.NoError(t, src.Close())

	cfg.Graph.Source = config.SourceGeoJSON
	src, err = NewSource(&cfg)
	require.NoError(t, err)
	assert.IsType(t, &source.GeoJSONFile{}, src)

	cfg.Graph.Source = config.SourceOSM
	cfg.Graph.BBox = []float64{1.15, 103.6, 1.48, 104.1}
	src, err = NewSource(&cfg)
	require.NoError(t, err)
	assert.IsType(t, &osm.File{}, src)

	cfg.Graph.Source = "shapefile"
	_, err = NewSource(&cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)
}
