package service

import (
	"context"
	"fmt"
	"log"

	"pathforge/pkg/builder"
	"pathforge/pkg/config"
	"pathforge/pkg/graph"
	"pathforge/pkg/osm"
	"pathforge/pkg/source"
)

// NewSource opens the road source named by cfg.Graph.Source.
func NewSource(cfg *config.Config) (source.Source, error) {
	switch cfg.Graph.Source {
	case config.SourcePostGIS:
		return source.NewPostGIS(cfg.Database.PostGIS())
	case config.SourceGeoJSON:
		return source.NewGeoJSONFile(cfg.Graph.SourcePath), nil
	case config.SourceOSM:
		var opts osm.ParseOptions
		if b := cfg.Graph.BBox; len(b) == 4 {
			opts.BBox = osm.BBox{MinLat: b[0], MinLng: b[1], MaxLat: b[2], MaxLng: b[3]}
		}
		return osm.NewFile(cfg.Graph.SourcePath, opts), nil
	}
	return nil, fmt.Errorf("%w: unknown source %q", config.ErrInvalid, cfg.Graph.Source)
}

// NewLoader returns a Loader that runs the graph builder over the configured
// source and cache.
func NewLoader(cfg *config.Config) Loader {
	return func(ctx context.Context, fresh bool) (*graph.Graph, builder.Stats, error) {
		src, err := NewSource(cfg)
		if err != nil {
			return nil, builder.Stats{}, err
		}
		return Build(ctx, src, builder.Options{
			CachePath:     cfg.Graph.CachePath,
			Mode:          builder.Mode(cfg.Graph.Mode),
			SkipCacheRead: fresh,
		})
	}
}

// Build runs one builder over src and releases it. A failure to release the
// source is logged, not returned.
func Build(ctx context.Context, src source.Source, opts builder.Options) (*graph.Graph, builder.Stats, error) {
	b, err := builder.New(src, opts)
	if err != nil {
		src.Close()
		return nil, builder.Stats{}, err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Printf("Warning: %v", err)
		}
	}()

	g, err := b.Build(ctx)
	if err != nil {
		return nil, b.Stats(), err
	}
	return g, b.Stats(), nil
}
