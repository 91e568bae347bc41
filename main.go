package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"affiliate-poster/affiliate/aliexpress"
	"affiliate-poster/config"
	"affiliate-poster/generator/gemini"
	"affiliate-poster/metrics"
	"affiliate-poster/services"
	"affiliate-poster/storage"
	"affiliate-poster/utils"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:           "affiliate-poster",
		Short:         "Generate affiliate product review posts",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runPipeline,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional YAML/JSON/TOML config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Fetch products and write new review posts (default)",
			RunE:  runPipeline,
		},
		&cobra.Command{
			Use:   "keywords",
			Short: "Write the generated keyword list to KEYWORD_FILE",
			RunE:  runKeywords,
		},
		&cobra.Command{
			Use:   "sitemap",
			Short: "Regenerate sitemap.xml and robots.txt from the posts directory",
			RunE:  runSitemap,
		},
	)

	if err := root.Execute(); err != nil {
		utils.NewLogger().Error("%v", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *utils.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, utils.NewLoggerWith(os.Stderr, cfg.LogLevel, cfg.LogFormat), nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	logger.Info("=== Affiliate poster starting ===")
	logger.Info("Config — mode: %s | target: %d | max queries: %d | backend: %s | models: %v",
		cfg.QueryMode, cfg.TargetPosts, cfg.MaxQueries, cfg.GeneratorBackend, cfg.GeminiModels)
	logger.Debug("Config: %+v", cfg.Redacted())

	queries, err := services.NewSelector(cfg, nil)
	if err != nil {
		return fmt.Errorf("query source: %w", err)
	}
	logger.Info("Loaded %d query candidates", queries.Size())

	ledger, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer ledger.Close()

	posts, err := storage.NewMarkdownWriter(cfg.PostsDir)
	if err != nil {
		return err
	}

	generator, err := newGenerator(ctx, cfg, logger)
	if err != nil {
		return err
	}

	pipeline := &services.Pipeline{
		RunID:      runID,
		Target:     cfg.TargetPosts,
		MaxQueries: cfg.MaxQueries,
		Queries:    queries,
		Searcher:   aliexpress.New(cfg, logger),
		Generator:  generator,
		Renderer:   services.NewRenderer(cfg),
		Ledger:     ledger,
		Posts:      posts,
		Logger:     logger,
	}

	report, runErr := pipeline.Run(ctx)
	services.PrintReport(os.Stdout, report)

	if cfg.SiteURL != "" && report.Posted > 0 {
		if n, err := services.WriteSEO(cfg.SiteURL, cfg.PostsDir, cfg.SEOOutputDir); err != nil {
			logger.Error("Sitemap update failed: %v", err)
		} else {
			logger.Info("Sitemap updated with %d posts", n)
		}
	}

	if cfg.PushgatewayURL != "" {
		m := metrics.New()
		m.Observe(report)
		host, _ := os.Hostname()
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := m.Push(pushCtx, cfg.PushgatewayURL, host); err != nil {
			logger.Warn("Metrics push failed: %v", err)
		}
		cancel()
	}

	if runErr != nil {
		return fmt.Errorf("run stopped: %w", runErr)
	}
	logger.Info("=== Done in %s: %d/%d posts ===", utils.Elapsed(start), report.Posted, report.Target)
	return nil
}

func openLedger(ctx context.Context, cfg *config.Config, logger *utils.Logger) (storage.Ledger, error) {
	if cfg.LedgerDSN != "" {
		pl, err := storage.NewPostgresLedger(ctx, cfg.LedgerDSN)
		if err != nil {
			return nil, err
		}
		logger.Info("Using PostgreSQL ledger")
		return pl, nil
	}
	logger.Info("Using file ledger %s", cfg.LedgerPath)
	return storage.NewFileLedger(cfg.LedgerPath), nil
}

func newGenerator(ctx context.Context, cfg *config.Config, logger *utils.Logger) (services.ReviewGenerator, error) {
	if cfg.GeneratorBackend == "sdk" {
		return gemini.NewSDK(ctx, cfg, logger)
	}
	return gemini.NewREST(cfg, logger), nil
}

func runKeywords(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	keywords := services.GenerateKeywords()
	if err := services.WriteKeywordFile(cfg.KeywordFile, keywords); err != nil {
		return err
	}
	logger.Info("Wrote %d keywords to %s", len(keywords), cfg.KeywordFile)
	return nil
}

func runSitemap(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	n, err := services.WriteSEO(cfg.SiteURL, cfg.PostsDir, cfg.SEOOutputDir)
	if err != nil {
		return err
	}
	logger.Info("Wrote sitemap.xml and robots.txt for %d posts to %s", n, cfg.SEOOutputDir)
	return nil
}
