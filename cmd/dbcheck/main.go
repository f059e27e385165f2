package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pathforge/pkg/config"
	"pathforge/pkg/source"
)

var (
	configPath string
	envFiles   []string
	sample     int
)

func main() {
	cmd := &cobra.Command{
		Use:          "dbcheck",
		Short:        "Check that the PostGIS road table is reachable",
		Long:         "Connects with the PG* settings, prints the row count of the road table and a few sample ids.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         run,
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().StringSliceVar(&envFiles, "env", nil, "Env files to load (default .env)")
	cmd.Flags().IntVar(&sample, "sample", 5, "Number of sample ids to print")

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

	db, err := source.NewPostGIS(cfg.Database.PostGIS())
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Warning: close database: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := db.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "roads count: %d\n", n)

	ids, err := db.SampleIDs(ctx, sample)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sample ids: %v\n", ids)
	return nil
}
