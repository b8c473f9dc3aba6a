//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/firesight-in/firesight/internal/bootstrap"
	"github.com/firesight-in/firesight/internal/domain/detection"
	"github.com/firesight-in/firesight/internal/domain/prediction"
	"github.com/firesight-in/firesight/internal/infra/config"
	httpiface "github.com/firesight-in/firesight/internal/interface/http"
	"github.com/firesight-in/firesight/pkg/logger"
)

func initializeApp() (*bootstrap.App, error) {
	wire.Build(
		config.Load,
		logger.New,
		provideClock,
		provideMetrics,
		provideDetectionConfig,
		providePredictionConfig,
		provideDeduplicator,
		provideFeedClient,
		providePostgresPool,
		provideDetectionRepository,
		providePredictionRepository,
		provideEventPublisher,
		provideStatsCache,
		provideArtifactStore,
		provideScheduler,
		detection.NewService,
		prediction.NewService,
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil
}
