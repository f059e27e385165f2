package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pathforge/pkg/builder"
	"pathforge/pkg/config"
	"pathforge/pkg/graph"
	"pathforge/pkg/service"
)

var (
	configPath string
	envFiles   []string
	sourceKind string
	input      string
	output     string
	mode       string
	bbox       string
	singapore  bool
	kl         bool
)

func main() {
	cmd := &cobra.Command{
		Use:   "preprocess",
		Short: "Build the road graph and write the cache snapshot",
		Example: "  preprocess --source osm --input singapore.osm.pbf --singapore --output graph.cache\n" +
			"  preprocess --source postgis --output graph.cache",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         run,
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().StringSliceVar(&envFiles, "env", nil, "Env files to load (default .env)")
	cmd.Flags().StringVar(&sourceKind, "source", "", "Road source: postgis, geojson or osm")
	cmd.Flags().StringVar(&input, "input", "", "Input file for the geojson and osm sources")
	cmd.Flags().StringVar(&output, "output", "", "Output cache snapshot path")
	cmd.Flags().StringVar(&mode, "mode", "", "Graph mode: endpoints or vertices")
	cmd.Flags().StringVar(&bbox, "bbox", "", "Bounding box filter: minLat,minLng,maxLat,maxLng (e.g. 1.15,103.6,1.48,104.1)")
	cmd.Flags().BoolVar(&singapore, "singapore", false, "Shortcut for --bbox 1.15,103.6,1.48,104.1 (Singapore bounding box)")
	cmd.Flags().BoolVar(&kl, "kl", false, "Shortcut for --bbox 2.75,101.2,3.5,102.0 (Selangor + Kuala Lumpur bounding box)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("source") {
		cfg.Graph.Source = sourceKind
	}
	if cmd.Flags().Changed("input") {
		cfg.Graph.SourcePath = input
	}
	if cmd.Flags().Changed("output") {
		cfg.Graph.CachePath = output
	}
	if cmd.Flags().Changed("mode") {
		cfg.Graph.Mode = mode
	}

	// Parse bbox option.
	if kl {
		cfg.Graph.BBox = []float64{2.75, 101.2, 3.5, 102.0}
		log.Println("Using Selangor + KL bounding box filter: lat [2.75, 3.50], lng [101.20, 102.00]")
	} else if singapore {
		cfg.Graph.BBox = []float64{1.15, 103.6, 1.48, 104.1}
		log.Println("Using Singapore bounding box filter: lat [1.15, 1.48], lng [103.6, 104.1]")
	} else if bbox != "" {
		var minLat, minLng, maxLat, maxLng float64
		if _, err := fmt.Sscanf(bbox, "%f,%f,%f,%f", &minLat, &minLng, &maxLat, &maxLng); err != nil {
			return fmt.Errorf("invalid bbox format (expected minLat,minLng,maxLat,maxLng): %w", err)
		}
		cfg.Graph.BBox = []float64{minLat, minLng, maxLat, maxLng}
		log.Printf("Using bounding box filter: lat [%.4f, %.4f], lng [%.4f, %.4f]", minLat, maxLat, minLng, maxLng)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Graph.CachePath == "" {
		return fmt.Errorf("%w: an output path is required", config.ErrInvalid)
	}

	start := time.Now()

	// Step 1: Build graph from the source. The builder writes the snapshot.
	src, err := service.NewSource(cfg)
	if err != nil {
		return err
	}
	g, stats, err := service.Build(context.Background(), src, builder.Options{
		CachePath:     cfg.Graph.CachePath,
		Mode:          builder.Mode(cfg.Graph.Mode),
		SkipCacheRead: true,
	})
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}
	log.Printf("Graph: %d nodes, %d edges from %d roads (%d skipped)", g.NumNodes(), g.NumEdges(), stats.Roads, stats.Skipped)

	// Step 2: Report connectivity.
	labels, count := graph.Components(g)
	if count > 0 {
		largest := graph.LargestComponentSize(labels, count)
		log.Printf("%d connected components; largest: %d nodes (%.1f%%)",
			count, largest, float64(largest)/float64(g.NumNodes())*100)
	}

	// Step 3: Confirm the snapshot is readable.
	if _, err := graph.ReadSnapshot(cfg.Graph.CachePath); err != nil {
		return fmt.Errorf("verify snapshot: %w", err)
	}

	info, err := os.Stat(cfg.Graph.CachePath)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)
	log.Printf("Done in %s. Output: %s (%.1f MB)", elapsed.Round(time.Second), cfg.Graph.CachePath, float64(info.Size())/(1024*1024))
	return nil
}
