package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/valkey-io/valkey-go"

	"github.com/firesight-in/firesight/internal/domain/detection"
	"github.com/firesight-in/firesight/internal/domain/prediction"
	"github.com/firesight-in/firesight/internal/infra/config"
	"github.com/firesight-in/firesight/internal/infra/detectionrepo"
	"github.com/firesight-in/firesight/internal/infra/events"
	"github.com/firesight-in/firesight/internal/infra/firms"
	"github.com/firesight-in/firesight/internal/infra/modelstore"
	"github.com/firesight-in/firesight/internal/infra/predictionrepo"
	"github.com/firesight-in/firesight/internal/infra/statscache"
	"github.com/firesight-in/firesight/internal/observability"
	"github.com/firesight-in/firesight/internal/scheduler"
)

func provideClock() clockwork.Clock {
	return clockwork.NewRealClock()
}

func provideMetrics() *observability.Metrics {
	return observability.NewMetrics()
}

func provideDetectionConfig(cfg *config.Config) detection.Config {
	sources := make([]detection.Source, 0, len(cfg.Ingest.DefaultSources))
	for _, raw := range cfg.Ingest.DefaultSources {
		if src, err := detection.ParseSource(raw); err == nil {
			sources = append(sources, src)
		}
	}
	return detection.Config{
		Region: detection.Region{
			LatMin: cfg.Ingest.LatMin,
			LatMax: cfg.Ingest.LatMax,
			LonMin: cfg.Ingest.LonMin,
			LonMax: cfg.Ingest.LonMax,
		},
		DefaultSources: sources,
		MaxQueryLimit:  cfg.Ingest.MaxQueryLimit,
		StatsCacheTTL:  cfg.Ingest.StatsCacheTTL,
	}
}

func providePredictionConfig(cfg *config.Config) prediction.Config {
	return prediction.Config{
		Area: prediction.Bounds{
			LatMin: cfg.Ingest.LatMin,
			LatMax: cfg.Ingest.LatMax,
			LonMin: cfg.Ingest.LonMin,
			LonMax: cfg.Ingest.LonMax,
		},
		Trees:              cfg.Model.Trees,
		MaxDepth:           cfg.Model.MaxDepth,
		MinSamplesSplit:    cfg.Model.MinSamplesSplit,
		MinSamplesLeaf:     cfg.Model.MinSamplesLeaf,
		Seed:               cfg.Model.Seed,
		MinDetections:      cfg.Model.MinDetections,
		MinSamples:         cfg.Model.MinSamples,
		HistoryCellSize:    cfg.Model.HistoryCellSize,
		TrailingWindowDays: cfg.Model.TrailingWindow,
		HorizonDays:        cfg.Model.HorizonDays,
		DefaultGridSize:    cfg.Model.DefaultGridSize,
		MaxQueryLimit:      cfg.Ingest.MaxQueryLimit,
	}
}

func provideDeduplicator(cfg *config.Config) *detection.Deduplicator {
	return detection.NewDeduplicator(cfg.Ingest.DedupWindow, cfg.Ingest.ToleranceKm)
}

func provideFeedClient(cfg *config.Config) detection.FeedClient {
	return firms.NewClient(cfg.Firms.BaseURL, cfg.Firms.APIKey, cfg.Firms.Timeout)
}

func providePostgresPool(cfg *config.Config, logger *slog.Logger) *pgxpool.Pool {
	dsn := strings.TrimSpace(cfg.Postgres.DSN)
	if dsn == "" {
		logger.Info("postgres dsn not set, using memory repositories")
		return nil
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		logger.Error("invalid postgres dsn, using memory repositories", "error", err)
		return nil
	}
	if cfg.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = cfg.Postgres.MaxConns
	}
	if cfg.Postgres.MinConns > 0 {
		poolConfig.MinConns = cfg.Postgres.MinConns
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("failed to initialize postgres pool, using memory repositories", "error", err)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres ping failed, using memory repositories", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

func provideDetectionRepository(pool *pgxpool.Pool, logger *slog.Logger) detection.Repository {
	if pool == nil {
		return detectionrepo.NewMemoryRepository()
	}
	repo := detectionrepo.NewPostgresRepository(pool)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := repo.Migrate(ctx); err != nil {
		logger.Error("detection schema migration failed, using memory repository", "error", err)
		return detectionrepo.NewMemoryRepository()
	}
	logger.Info("detection postgres repository enabled")
	return repo
}

func providePredictionRepository(pool *pgxpool.Pool, logger *slog.Logger) prediction.Repository {
	if pool == nil {
		return predictionrepo.NewMemoryRepository()
	}
	repo := predictionrepo.NewPostgresRepository(pool)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := repo.Migrate(ctx); err != nil {
		logger.Error("prediction schema migration failed, using memory repository", "error", err)
		return predictionrepo.NewMemoryRepository()
	}
	logger.Info("prediction postgres repository enabled")
	return repo
}

func provideEventPublisher(cfg *config.Config, logger *slog.Logger) detection.EventPublisher {
	if !cfg.Events.Enabled || len(cfg.Events.Brokers) == 0 {
		return events.NewNoopPublisher()
	}
	logger.Info("kafka detection events enabled", "topic", cfg.Events.Topic)
	return events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic, logger)
}

func provideStatsCache(cfg *config.Config, logger *slog.Logger, clock clockwork.Clock) detection.StatsCache {
	if cfg.Cache.Enabled {
		opt, err := buildValkeyOptions(cfg.Cache.Addr)
		if err != nil {
			logger.Error("invalid valkey configuration, falling back to memory cache", "error", err)
			return statscache.NewMemoryCache(clock)
		}
		client, err := valkey.NewClient(opt)
		if err != nil {
			logger.Error("failed to create valkey client, falling back to memory cache", "error", err)
			return statscache.NewMemoryCache(clock)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
			logger.Error("valkey ping failed, falling back to memory cache", "error", err)
		} else {
			logger.Info("valkey statistics cache enabled", "addr", cfg.Cache.Addr)
			return statscache.NewValkeyCache(client, "firesight")
		}
	}
	return statscache.NewMemoryCache(clock)
}

func buildValkeyOptions(addr string) (valkey.ClientOption, error) {
	if strings.Contains(addr, "://") {
		return valkey.ParseURL(addr)
	}
	return valkey.ClientOption{InitAddress: []string{addr}}, nil
}

func provideArtifactStore(cfg *config.Config, logger *slog.Logger) prediction.ArtifactStore {
	if !cfg.Artifacts.Enabled {
		return modelstore.NewMemoryStore()
	}
	store, err := modelstore.NewS3Store(cfg.Artifacts.Endpoint, cfg.Artifacts.AccessKey, cfg.Artifacts.SecretKey, cfg.Artifacts.Bucket, cfg.Artifacts.Region, logger)
	if err != nil {
		logger.Error("failed to initialize model store, snapshots stay in memory", "error", err)
		return modelstore.NewMemoryStore()
	}
	logger.Info("s3 model snapshot store enabled", "bucket", cfg.Artifacts.Bucket)
	return store
}

func provideScheduler(cfg *config.Config, detections detection.Service, logger *slog.Logger) (*scheduler.Scheduler, error) {
	if !cfg.Scheduler.Enabled {
		return nil, nil
	}
	return scheduler.New(cfg.Scheduler.RefreshSpec, cfg.Scheduler.DayRange, detections, logger)
}
