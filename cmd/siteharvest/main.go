// Package main wires together the siteharvest service binary.
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

	gcpubsub "cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/brandforge/siteharvest/internal/aggregate"
	"github.com/brandforge/siteharvest/internal/api"
	"github.com/brandforge/siteharvest/internal/blob"
	blobgcs "github.com/brandforge/siteharvest/internal/blob/gcs"
	bloblocal "github.com/brandforge/siteharvest/internal/blob/local"
	blobmemory "github.com/brandforge/siteharvest/internal/blob/memory"
	"github.com/brandforge/siteharvest/internal/clock"
	"github.com/brandforge/siteharvest/internal/config"
	"github.com/brandforge/siteharvest/internal/discovery"
	"github.com/brandforge/siteharvest/internal/enhance"
	"github.com/brandforge/siteharvest/internal/events"
	"github.com/brandforge/siteharvest/internal/extract"
	"github.com/brandforge/siteharvest/internal/fetch"
	"github.com/brandforge/siteharvest/internal/fetch/headless"
	"github.com/brandforge/siteharvest/internal/fetch/static"
	"github.com/brandforge/siteharvest/internal/logging"
	"github.com/brandforge/siteharvest/internal/metrics"
	"github.com/brandforge/siteharvest/internal/pipeline"
	"github.com/brandforge/siteharvest/internal/publish"
	publishpubsub "github.com/brandforge/siteharvest/internal/publish/pubsub"
	"github.com/brandforge/siteharvest/internal/session"
	sessionmemory "github.com/brandforge/siteharvest/internal/session/memory"
	sessionpostgres "github.com/brandforge/siteharvest/internal/session/postgres"
	"github.com/brandforge/siteharvest/internal/strategy"
	"github.com/brandforge/siteharvest/internal/validate"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	clk := clock.NewSystem()

	sessions, closeSessions, err := buildSessionStore(ctx, cfg)
	if err != nil {
		logger.Fatal("session store init failed", zap.Error(err))
	}
	defer closeSessions()

	snapshots, err := buildSnapshotStore(ctx, cfg)
	if err != nil {
		logger.Fatal("snapshot store init failed", zap.Error(err))
	}

	publisher, closePublisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}
	defer closePublisher()

	httpClient := &http.Client{Timeout: time.Duration(cfg.Discovery.TimeoutSeconds) * time.Second}

	staticFetcher := static.New(static.Config{
		UserAgent: cfg.Discovery.UserAgent,
		Timeout:   time.Duration(cfg.Fetch.PageTimeoutSeconds) * time.Second,
	})
	headlessFetcher, err := headless.New(headless.Config{
		MaxParallel:       cfg.Headless.MaxParallel,
		UserAgent:         cfg.Discovery.UserAgent,
		NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSeconds) * time.Second,
		SettleDelay:       time.Duration(cfg.Headless.SettleDelayMs) * time.Millisecond,
	})
	if err != nil {
		logger.Fatal("headless fetcher init failed", zap.Error(err))
	}
	defer headlessFetcher.Close()
	spaFetcher := headlessFetcher.WithStrategy(extract.StrategySPA)

	discoverer := discovery.New(discovery.Config{
		MaxURLs:             cfg.Discovery.MaxURLs,
		HTTPTimeout:         time.Duration(cfg.Discovery.TimeoutSeconds) * time.Second,
		UserAgent:           cfg.Discovery.UserAgent,
		EnablePatterns:      cfg.Discovery.EnablePatterns,
		ValidateConcurrency: cfg.Discovery.ValidateConcurrency,
		BlogSectionLimit:    cfg.Discovery.BlogSectionLimit,
	}, httpClient, logger.Named("discovery"))

	analyzer := strategy.NewHTTPAnalyzer(httpClient, cfg.Discovery.UserAgent, logger.Named("analyzer"))

	orchestrator, err := pipeline.New(pipeline.Deps{
		Discoverer: discoverer,
		Analyzer:   analyzer,
		Static:     staticFetcher,
		Dynamic:    headlessFetcher,
		SPA:        spaFetcher,
		Sessions:   sessions,
		Snapshots:  snapshots,
		Publisher:  publisher,
		Clock:      clk,
		Logger:     logger.Named("pipeline"),
	}, pipeline.Config{
		Fetch: fetch.Config{
			BatchSize:   cfg.Fetch.BatchSize,
			BatchDelay:  time.Duration(cfg.Fetch.BatchDelayMs) * time.Millisecond,
			PageTimeout: time.Duration(cfg.Fetch.PageTimeoutSeconds) * time.Second,
		},
		Quality: validate.Config{
			MinContentLength: cfg.Quality.MinContentLength,
			Threshold:        cfg.Quality.Threshold,
		},
		Enhance: enhance.Config{
			BatchSize:   cfg.Enhance.BatchSize,
			BatchDelay:  time.Duration(cfg.Enhance.BatchDelayMs) * time.Millisecond,
			PageTimeout: time.Duration(cfg.Enhance.PageTimeoutSeconds) * time.Second,
		},
		Aggregate: aggregate.Config{
			MaxColors: cfg.Aggregate.MaxColors,
			MaxFonts:  cfg.Aggregate.MaxFonts,
			MaxImages: cfg.Aggregate.MaxImages,
		},
		RunTimeout:   cfg.Pipeline.RunTimeout(),
		PublishTopic: cfg.PubSub.TopicName,
	})
	if err != nil {
		logger.Fatal("pipeline init failed", zap.Error(err))
	}

	apiServer := api.NewServer(sessions, orchestrator, clk, api.Config{
		RunBudget: cfg.Pipeline.RunTimeout() + time.Minute,
		Bus: events.Config{
			DedupTTL:      time.Duration(cfg.Events.DedupTTLSeconds) * time.Second,
			NotifyTTL:     time.Duration(cfg.Events.NotifyTTLSeconds) * time.Second,
			SweepInterval: time.Duration(cfg.Events.SweepIntervalSeconds) * time.Second,
			BufferSize:    cfg.Events.BufferSize,
			Clock:         clk,
		},
	}, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
}

func buildSessionStore(ctx context.Context, cfg config.Config) (session.Store, func(), error) {
	if cfg.DB.DSN == "" {
		return sessionmemory.New(), func() {}, nil
	}
	store, err := sessionpostgres.New(ctx, sessionpostgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(cfg.DB.ConnLifetimeMinute) * time.Minute,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func buildSnapshotStore(ctx context.Context, cfg config.Config) (blob.Store, error) {
	switch cfg.Storage.Backend {
	case "none":
		return blob.Discard{}, nil
	case "memory":
		return blobmemory.New(), nil
	case "local":
		return bloblocal.New(cfg.Storage.LocalDir)
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return blobgcs.New(client, cfg.Storage.GCSBucket)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (publish.Publisher, func(), error) {
	if cfg.PubSub.TopicName == "" {
		return publish.Noop{}, func() {}, nil
	}
	client, err := gcpubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	pub, err := publishpubsub.New(client, cfg.PubSub.TopicName)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		pub.Close()
		_ = client.Close()
	}
	return pub, closeFn, nil
}
