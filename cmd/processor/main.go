// Command processor runs the book detection service: it accepts photo
// uploads, identifies the book, enriches it from the catalog, scrapes a
// reading excerpt, and streams progress to the uploading client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bookholmes/processor/internal/api"
	"github.com/bookholmes/processor/internal/books"
	"github.com/bookholmes/processor/internal/config"
	"github.com/bookholmes/processor/internal/detect"
	"github.com/bookholmes/processor/internal/events"
	"github.com/bookholmes/processor/internal/gemini"
	"github.com/bookholmes/processor/internal/logging"
	"github.com/bookholmes/processor/internal/metrics"
	pubsubpub "github.com/bookholmes/processor/internal/publisher/pubsub"
	"github.com/bookholmes/processor/internal/scraper"
	gcsstore "github.com/bookholmes/processor/internal/storage/gcs"
	localstore "github.com/bookholmes/processor/internal/storage/local"
	"github.com/bookholmes/processor/internal/vision"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	visionClient := vision.New(vision.Config{
		APIKey:  cfg.Google.APIKey,
		Timeout: cfg.HTTPTimeout(),
	}, logger.Named("vision"))

	geminiClient := gemini.New(gemini.Config{
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		Timeout: cfg.HTTPTimeout(),
	}, logger.Named("gemini"))

	booksClient := books.New(books.Config{
		APIKey:  cfg.Google.APIKey,
		Timeout: cfg.HTTPTimeout(),
	}, logger.Named("books"))

	browser := scraper.NewChromeBrowser(scraper.BrowserConfig{
		UserAgent:         cfg.Scraper.UserAgent,
		ViewportWidth:     cfg.Scraper.Viewport.Width,
		ViewportHeight:    cfg.Scraper.Viewport.Height,
		ViewportScale:     cfg.Scraper.Viewport.Scale,
		NavigationTimeout: cfg.NavTimeout(),
	})
	defer browser.Close()

	excerptScraper := scraper.New(browser, visionClient, geminiClient, scraper.Config{
		TOCSelector:    cfg.Scraper.TOCSelector,
		ScrollSelector: cfg.Scraper.ScrollSelector,
		ScrollOffset:   cfg.Scraper.ScrollOffset,
		Clip: scraper.Clip{
			X:      cfg.Scraper.Clip.X,
			Y:      cfg.Scraper.Clip.Y,
			Width:  cfg.Scraper.Clip.Width,
			Height: cfg.Scraper.Clip.Height,
		},
		VisionTranscription: cfg.Scraper.VisionTranscription,
	}, logger.Named("scraper"))

	var title detect.TitleStrategy
	switch cfg.Detect.TitleStrategy {
	case detect.StrategyVisionModel:
		title = detect.NewVisionModel(geminiClient)
	default:
		title = detect.NewVisionFirst(visionClient, geminiClient, logger.Named("title"))
	}

	artifacts, cleanup, err := buildArtifacts(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	var publisher detect.Publisher
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		p, err := pubsubpub.New(ctx, cfg.PubSub.ProjectID, logger.Named("pubsub"))
		if err != nil {
			return fmt.Errorf("init pubsub publisher: %w", err)
		}
		defer func() { _ = p.Close() }()
		publisher = p
	}

	pipeline := detect.NewPipeline(visionClient, title, booksClient, excerptScraper, artifacts, logger.Named("pipeline"))
	relay := events.NewRegistry(cfg.Events.BufferSize, logger.Named("events"))

	server := api.NewServer(pipeline, relay, publisher, api.Options{
		AuthEnabled:    cfg.Auth.Enabled,
		APIKeys:        cfg.Auth.APIKeys,
		AnalyzeTimeout: cfg.AnalyzeTimeout(),
		IdleTimeout:    cfg.IdleTimeout(),
		ResultTopic:    cfg.PubSub.TopicName,
	}, logger.Named("api"))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("title_strategy", title.Name()),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// buildArtifacts selects the artifact store: GCS when a bucket is set,
// otherwise a local directory, otherwise archival stays off.
func buildArtifacts(ctx context.Context, cfg config.Config, logger *zap.Logger) (detect.BlobStore, func(), error) {
	noop := func() {}
	switch {
	case cfg.Storage.GCSBucket != "":
		store, err := gcsstore.New(ctx, cfg.Storage.GCSBucket, cfg.Storage.Prefix, logger.Named("gcs"))
		if err != nil {
			return nil, noop, fmt.Errorf("init gcs store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	case cfg.Storage.ArtifactsDir != "":
		store, err := localstore.New(cfg.Storage.ArtifactsDir, logger.Named("storage"))
		if err != nil {
			return nil, noop, fmt.Errorf("init local store: %w", err)
		}
		return store, noop, nil
	default:
		return nil, noop, nil
	}
}
