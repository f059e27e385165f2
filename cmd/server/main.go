package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"pathforge/pkg/api"
	"pathforge/pkg/config"
	"pathforge/pkg/service"
)

var (
	configPath string
	envFiles   []string
	addr       string
	cachePath  string
	rebuild    bool
)

func main() {
	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Serve shortest-path queries over HTTP",
		Long:         "Builds the road graph (or loads it from the cache snapshot) and serves /api/v1/route.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         run,
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().StringSliceVar(&envFiles, "env", nil, "Env files to load (default .env)")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&cachePath, "cache", "", "Graph cache snapshot path (overrides config)")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Ignore the cache snapshot and rebuild from the source")

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
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = addr
	}
	if cmd.Flags().Changed("cache") {
		cfg.Graph.CachePath = cachePath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if logFile := cfg.Log.Setup(); logFile != nil {
		defer logFile.Close()
	}

	start := time.Now()

	// Build or load the graph. A failure leaves the service up with an
	// empty engine; /api/v1/status reports it as not initialized.
	log.Printf("Loading graph from %s source...", cfg.Graph.Source)
	svc := service.New(service.NewLoader(cfg), service.Options{
		Index:         cfg.Graph.Index,
		MaxExpansions: cfg.Graph.MaxExpansions,
		Registerer:    prometheus.DefaultRegisterer,
	})
	load := svc.Load
	if rebuild {
		load = svc.Reload
	}
	if err := load(context.Background()); err != nil {
		log.Printf("Serving without a graph: %v", err)
	}

	log.Printf("Ready in %s", time.Since(start).Round(time.Millisecond))

	handlers := api.NewHandlers(svc, api.NewMetrics(prometheus.DefaultRegisterer))
	srv := api.NewServer(cfg.Server, handlers, prometheus.DefaultGatherer)

	if err := api.ListenAndServe(srv); err != nil {
		log.Printf("Server stopped: %v", err)
		return err
	}
	return nil
}
