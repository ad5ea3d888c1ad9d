package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pageza/alchemorsel-recommender/config"
	"github.com/pageza/alchemorsel-recommender/internal/app"
	"github.com/pageza/alchemorsel-recommender/internal/logging"
	"github.com/pageza/alchemorsel-recommender/internal/service"
)

type runOptions struct {
	dataset   string
	recreate  bool
	batchSize int
	delay     time.Duration
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ingest",
		Short:         "Load recipes into the vector index",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newCheckCmd())
	return root
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Embed a recipe CSV and upsert it into the index",
		Long: `Embed a recipe CSV and upsert it into the index.

The dataset may be a local path or an s3://bucket/key URI. Re-running with the
same dataset replaces entries instead of duplicating them.

Examples:
  ingest run --dataset data/recipes.csv
  ingest run --dataset s3://recipes/2024/recipes.csv --batch-size 20
  ingest run --recreate   # rebuild an index made with another embedding model`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.dataset, "dataset", "", "dataset path or s3:// URI (default from DATASET_PATH)")
	cmd.Flags().BoolVar(&opts.recreate, "recreate", false, "drop and recreate an index whose dimension does not match the embedder")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "recipes per embedding call (default from BATCH_SIZE)")
	cmd.Flags().DurationVar(&opts.delay, "delay", 0, "pause between batches (default from BATCH_DELAY)")
	return cmd
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the index exists and matches the configured embedder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := service.CheckCompatibility(cmd.Context(), a.Embedder, a.Index); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "index %q is compatible with %s (%d dimensions)\n",
				cfg.Index.Collection, a.Embedder.Model(), a.Embedder.Dimension())
			return nil
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr})
	return cfg, nil
}

func runIngest(cmd *cobra.Command, opts runOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("dataset") {
		cfg.Ingest.Dataset = opts.dataset
	}
	if flags.Changed("batch-size") {
		if opts.batchSize <= 0 {
			return fmt.Errorf("--batch-size must be positive")
		}
		cfg.Ingest.BatchSize = opts.batchSize
	}
	if flags.Changed("delay") {
		cfg.Ingest.Delay = opts.delay
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	objects, err := a.ObjectsFor(ctx, cfg.Ingest.Dataset)
	if err != nil {
		return err
	}
	report, err := a.IngestService(objects).IngestLocation(ctx, cfg.Ingest.Dataset, service.IngestOptions{Recreate: opts.recreate})
	if report != nil {
		printReport(cmd, report)
	}
	return err
}

func printReport(cmd *cobra.Command, report *service.IngestReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "source:  %s\n", report.Source)
	fmt.Fprintf(out, "rows:    %d\n", report.Total)
	fmt.Fprintf(out, "indexed: %d in %d batches\n", report.Indexed, report.Batches)
	fmt.Fprintf(out, "skipped: %d\n", len(report.Skipped))
	for _, s := range report.Skipped {
		fmt.Fprintf(out, "  row %d %q: %s\n", s.Row, s.Name, s.Reason)
	}
	fmt.Fprintf(out, "took:    %s\n", report.Duration.Round(time.Millisecond))
}
