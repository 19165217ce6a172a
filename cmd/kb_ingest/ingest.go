package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldwise/agrokb/internal/chunk"
	"github.com/fieldwise/agrokb/internal/config"
	"github.com/fieldwise/agrokb/internal/db"
	"github.com/fieldwise/agrokb/internal/embed"
	"github.com/fieldwise/agrokb/internal/fetch"
	"github.com/fieldwise/agrokb/internal/observability"
	"github.com/fieldwise/agrokb/internal/parsing"
	"github.com/fieldwise/agrokb/internal/pipeline"
	"github.com/fieldwise/agrokb/internal/sources"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run the ingestion pipeline over a source list or problem file",
	Long: `Runs the full ingestion pipeline: validate URLs -> scrape -> upsert sources -> parse -> chunk -> embed -> upsert chunks, with image extraction, captioning, and upsert at the end.

Each phase's output is snapshotted under the state directory, so an interrupted run can be re-entered with --skip-scrape instead of re-fetching everything.`,
	RunE: runIngest,
}

var (
	ingestSourcesPath    string
	ingestProblemPath    string
	ingestLimit          int
	ingestSkipScrape     bool
	ingestSkipImages     bool
	ingestSkipValidation bool
	ingestDryRun         bool
	ingestUseBrowser     bool
	ingestVisionCaptions bool
	ingestVerbose        bool
	ingestStateDir       string
	ingestCacheDir       string
	ingestAPIKey         string
	ingestDatabaseURL    string
)

func init() {
	ingestCmd.Flags().StringVar(&ingestSourcesPath, "sources", "", "Path to a curated source list JSON file (mutually exclusive with --problem)")
	ingestCmd.Flags().StringVar(&ingestProblemPath, "problem", "", "Path to an agronomy problem JSON file (mutually exclusive with --sources)")
	ingestCmd.Flags().IntVar(&ingestLimit, "limit", 0, "Cap the number of documents processed this run (0 = no cap)")
	ingestCmd.Flags().BoolVar(&ingestSkipScrape, "skip-scrape", false, "Reuse the previous run's scraped snapshot instead of fetching")
	ingestCmd.Flags().BoolVar(&ingestSkipImages, "skip-images", false, "Skip the image extraction, captioning, and upsert phases")
	ingestCmd.Flags().BoolVar(&ingestSkipValidation, "skip-validation", false, "Skip the URL reachability pre-check")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "Run every phase except the database upserts")
	ingestCmd.Flags().BoolVar(&ingestUseBrowser, "use-browser", false, "Force the headless browser for every fetch (requires Chrome)")
	ingestCmd.Flags().BoolVar(&ingestVisionCaptions, "vision-captions", false, "Caption images with the vision model instead of their alt/caption text")
	ingestCmd.Flags().BoolVarP(&ingestVerbose, "verbose", "v", false, "Print detailed debug information")
	ingestCmd.Flags().StringVar(&ingestStateDir, "state-dir", "", "Directory for phase snapshots (optional, defaults to STATE_DIR env var or data/state)")
	ingestCmd.Flags().StringVar(&ingestCacheDir, "cache-dir", "", "Directory for the fetch cache (optional, defaults to CACHE_DIR env var or data/cache)")
	ingestCmd.Flags().StringVar(&ingestAPIKey, "api-key", "", "Gemini API key (optional, defaults to GEMINI_API_KEY env var)")
	ingestCmd.Flags().StringVar(&ingestDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	if ingestSourcesPath != "" && ingestProblemPath != "" {
		return fmt.Errorf("--sources and --problem are mutually exclusive; provide only one")
	}
	if ingestSourcesPath == "" && ingestProblemPath == "" && !ingestSkipScrape {
		return fmt.Errorf("either --sources or --problem must be provided (or --skip-scrape to reuse the previous snapshot)")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// CLI overrides; only applied when the flag was explicitly set.
	if cmd.Flags().Changed("api-key") {
		cfg.GeminiAPIKey = ingestAPIKey
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = ingestDatabaseURL
	}
	if cmd.Flags().Changed("state-dir") {
		cfg.StateDir = ingestStateDir
	}
	if cmd.Flags().Changed("cache-dir") {
		cfg.CacheDir = ingestCacheDir
	}
	if err := cfg.Validate(ingestDryRun); err != nil {
		return err
	}

	var descriptors []sources.Descriptor
	switch {
	case ingestSourcesPath != "":
		descriptors, err = sources.LoadSourceList(ingestSourcesPath)
	case ingestProblemPath != "":
		descriptors, err = sources.LoadAgronomyProblem(ingestProblemPath)
	}
	if err != nil {
		return err
	}

	fetchCfg := fetch.DefaultConfig()
	fetchCfg.CacheDir = cfg.CacheDir
	fetchCfg.RateLimit = time.Duration(cfg.FetchRateLimitMS) * time.Millisecond
	fetchCfg.ErrorLogPath = cfg.ErrorLogPath
	fetchCfg.RespectRobots = cfg.RespectRobots
	fetchCfg.Verbose = ingestVerbose
	fetcher, err := fetch.New(fetchCfg)
	if err != nil {
		return err
	}

	client, err := embed.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel, cfg.CaptionModel)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	embedder := embed.New(client)
	embedder.Verbose = ingestVerbose
	if ingestVisionCaptions {
		embedder.CaptionMode = embed.CaptionModeVision
	}

	pipe := &pipeline.Pipeline{
		Fetcher:   fetcher,
		Parser:    parsing.NewParser(),
		Chunker:   chunk.NewAgronomy(),
		Embedder:  embedder,
		Snapshots: pipeline.NewSnapshots(cfg.StateDir),
	}

	if !ingestDryRun {
		database, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()
		pipe.Store = database
	}

	report, err := pipe.Run(ctx, pipeline.Options{
		Descriptors:    descriptors,
		Limit:          ingestLimit,
		SkipScrape:     ingestSkipScrape,
		SkipImages:     ingestSkipImages,
		SkipValidation: ingestSkipValidation,
		DryRun:         ingestDryRun,
		UseBrowser:     ingestUseBrowser,
		Verbose:        ingestVerbose,
	})
	if err != nil {
		return err
	}

	stats := fetcher.Stats()
	if stats.CacheWriteFailures > 0 {
		fmt.Fprintf(os.Stderr, "Warning: %d cache writes failed; affected documents will be re-fetched next run\n", stats.CacheWriteFailures)
	}
	if ingestVerbose {
		fmt.Printf("[VERBOSE] fetch activity: %d requests, %d cache hits, %d retries, %d browser renders, %d robots denials\n",
			stats.Requests, stats.CacheHits, stats.Retries, stats.BrowserRenders, stats.RobotsDenied)
		observability.NewPrinter(os.Stdout).PrintReport(report)
	}

	if report.Outcome == pipeline.OutcomeFailed {
		return fmt.Errorf("ingestion failed: no documents made it through the pipeline")
	}
	return nil
}
