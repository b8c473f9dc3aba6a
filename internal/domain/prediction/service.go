package prediction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/firesight-in/firesight/internal/domain/detection"
	"github.com/firesight-in/firesight/internal/observability"
	apperrors "github.com/firesight-in/firesight/pkg/errors"
)

// trainingLookbackDays bounds how much stored history feeds a training or
// generation run.
const trainingLookbackDays = 365

// Service trains the risk model and serves grid forecasts built from it.
type Service interface {
	// Train fits a fresh model from stored detections and publishes it for
	// serving. The previous model keeps serving until the new one is ready.
	Train(ctx context.Context) (TrainResult, error)
	// Generate scores every cell of the requested grid with the published
	// model and persists the cells at or above the low-risk threshold.
	Generate(ctx context.Context, req GenerateRequest) (GenerateSummary, error)
	Query(ctx context.Context, f Filter) ([]FirePrediction, error)
	// Restore loads the last persisted model snapshot, reporting whether one
	// was found. Called once at startup.
	Restore(ctx context.Context) (bool, error)
}

// Config wires runtime parameters for the prediction domain.
type Config struct {
	Area Bounds

	Trees           int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Seed            int64

	MinDetections int
	MinSamples    int

	HistoryCellSize    float64
	TrailingWindowDays int
	HorizonDays        int
	DefaultGridSize    float64

	MaxQueryLimit int
}

type service struct {
	cfg        Config
	detections detection.Repository
	repo       Repository
	artifacts  ArtifactStore
	builder    *FeatureBuilder
	metrics    *observability.Metrics
	logger     *slog.Logger
	clock      clockwork.Clock

	// model is the published artifact. Generate reads it lock free; Train
	// swaps it atomically only after a full successful fit.
	model   atomic.Pointer[Artifact]
	trainMu sync.Mutex
}

// NewService wires up the prediction domain.
func NewService(cfg Config, detections detection.Repository, repo Repository, artifacts ArtifactStore, metrics *observability.Metrics, logger *slog.Logger, clock clockwork.Clock) Service {
	return &service{
		cfg:        cfg,
		detections: detections,
		repo:       repo,
		artifacts:  artifacts,
		builder: NewFeatureBuilder(FeatureConfig{
			Area:               cfg.Area,
			HistoryCellSize:    cfg.HistoryCellSize,
			TrailingWindowDays: cfg.TrailingWindowDays,
			HorizonDays:        cfg.HorizonDays,
		}),
		metrics: metrics,
		logger:  logger.With("component", "prediction.service"),
		clock:   clock,
	}
}

func (s *service) Restore(ctx context.Context) (bool, error) {
	artifact, ok, err := s.artifacts.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load model snapshot: %w", err)
	}
	if !ok {
		return false, nil
	}
	s.model.Store(artifact)
	s.metrics.ModelTrained.Set(1)
	s.logger.Info("model snapshot restored", "model_version", artifact.Version, "trained_at", artifact.TrainedAt)
	return true, nil
}

func (s *service) Train(ctx context.Context) (TrainResult, error) {
	s.trainMu.Lock()
	defer s.trainMu.Unlock()

	now := s.clock.Now().UTC()
	dets, err := s.detections.Query(ctx, detection.QueryFilter{
		StartDate: now.AddDate(0, 0, -trainingLookbackDays).Format("2006-01-02"),
		EndDate:   now.Format("2006-01-02"),
	})
	if err != nil {
		s.metrics.TrainingRuns.WithLabelValues("error").Inc()
		return TrainResult{}, fmt.Errorf("load training detections: %w", err)
	}
	if len(dets) < s.cfg.MinDetections {
		s.metrics.TrainingRuns.WithLabelValues("insufficient_data").Inc()
		return TrainResult{}, apperrors.Wrap(apperrors.CodeInsufficientData,
			fmt.Sprintf("need at least %d detections to train, have %d", s.cfg.MinDetections, len(dets)), nil)
	}

	matrix, err := s.builder.BuildTraining(dets)
	if err != nil {
		s.metrics.TrainingRuns.WithLabelValues("error").Inc()
		return TrainResult{}, fmt.Errorf("build training matrix: %w", err)
	}
	if len(matrix.Rows) < s.cfg.MinSamples {
		s.metrics.TrainingRuns.WithLabelValues("insufficient_data").Inc()
		return TrainResult{}, apperrors.Wrap(apperrors.CodeInsufficientData,
			fmt.Sprintf("need at least %d training samples, have %d", s.cfg.MinSamples, len(matrix.Rows)), nil)
	}

	// Chronological split: the rows are time ordered, so the model is always
	// evaluated on data newer than anything it saw during fitting.
	split := len(matrix.Rows) * 4 / 5
	if split == len(matrix.Rows) {
		split = len(matrix.Rows) - 1
	}
	forest := TrainForest(matrix.Rows[:split], matrix.Targets[:split], ForestConfig{
		Trees:           s.cfg.Trees,
		MaxDepth:        s.cfg.MaxDepth,
		MinSamplesSplit: s.cfg.MinSamplesSplit,
		MinSamplesLeaf:  s.cfg.MinSamplesLeaf,
		Seed:            s.cfg.Seed,
	})

	mse, r2 := evaluate(forest, matrix.Rows[split:], matrix.Targets[split:])

	artifact := &Artifact{
		Version:      "rf-" + now.Format("20060102T150405Z"),
		FeatureNames: matrix.Names,
		Forest:       forest,
		R2Score:      r2,
		MSE:          mse,
		Samples:      len(matrix.Rows),
		TrainedAt:    now,
	}

	if err := s.artifacts.Save(ctx, artifact); err != nil {
		// The in-memory model still serves; only restart durability is lost.
		s.logger.Warn("persist model snapshot failed", "error", err, "model_version", artifact.Version)
	}
	s.model.Store(artifact)
	s.metrics.ModelTrained.Set(1)
	s.metrics.TrainingRuns.WithLabelValues("success").Inc()

	s.logger.Info("model trained",
		"model_version", artifact.Version,
		"samples", artifact.Samples,
		"r2_score", r2,
		"mse", mse)
	return TrainResult{
		R2Score:      r2,
		MSE:          mse,
		ModelVersion: artifact.Version,
		Samples:      artifact.Samples,
	}, nil
}

func (s *service) Generate(ctx context.Context, req GenerateRequest) (GenerateSummary, error) {
	artifact := s.model.Load()
	if artifact == nil {
		return GenerateSummary{}, apperrors.Wrap(apperrors.CodeModelNotTrained, "no trained model available, run training first", nil)
	}

	started := s.clock.Now()
	defer func() {
		s.metrics.GenerationDuration.Observe(s.clock.Since(started).Seconds())
	}()

	bounds := req.Bounds
	if bounds == (Bounds{}) {
		bounds = s.cfg.Area
	}
	gridSize := req.GridSize
	if gridSize == 0 {
		gridSize = s.cfg.DefaultGridSize
	}
	grid, err := NewGrid(bounds, gridSize)
	if err != nil {
		return GenerateSummary{}, apperrors.Wrap(apperrors.CodeValidation, "invalid prediction grid", err)
	}

	now := s.clock.Now().UTC()
	dets, err := s.detections.Query(ctx, detection.QueryFilter{
		StartDate: now.AddDate(0, 0, -trainingLookbackDays).Format("2006-01-02"),
		EndDate:   now.Format("2006-01-02"),
	})
	if err != nil {
		return GenerateSummary{}, fmt.Errorf("load detection history: %w", err)
	}
	history, err := s.builder.BuildHistory(dets)
	if err != nil {
		return GenerateSummary{}, fmt.Errorf("build detection history: %w", err)
	}

	predictionDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, s.cfg.HorizonDays)
	features := strings.Join(artifact.FeatureNames, ",")

	cells := grid.Cells()
	predictions := make([]FirePrediction, 0, len(cells))
	discarded := 0
	for _, cell := range cells {
		vec := s.builder.Vector(history, cell.Latitude, cell.Longitude, now)
		probability := artifact.Predict(vec)
		level, keep := RiskLevelFor(probability)
		if !keep {
			discarded++
			continue
		}
		predictions = append(predictions, FirePrediction{
			Latitude:       cell.Latitude,
			Longitude:      cell.Longitude,
			Probability:    probability,
			RiskLevel:      level,
			PredictionDate: predictionDate,
			ModelVersion:   artifact.Version,
			FeaturesUsed:   features,
			CreatedAt:      now,
		})
	}

	if len(predictions) > 0 {
		if err := s.repo.InsertBatch(ctx, predictions); err != nil {
			return GenerateSummary{}, fmt.Errorf("store predictions: %w", err)
		}
	}
	s.metrics.PredictionsGenerated.Add(float64(len(predictions)))
	s.metrics.PredictionsDiscarded.Add(float64(discarded))

	summary := GenerateSummary{
		ModelVersion:   artifact.Version,
		PredictionDate: predictionDate,
		CellsEvaluated: len(cells),
		Persisted:      len(predictions),
		Discarded:      discarded,
	}
	s.logger.Info("prediction run complete",
		"model_version", artifact.Version,
		"cells", len(cells),
		"saved", len(predictions),
		"below_threshold", discarded)
	return summary, nil
}

// Query returns stored predictions. With no explicit model version the latest
// stored run is selected, so successive generations never mix in one answer.
func (s *service) Query(ctx context.Context, f Filter) ([]FirePrediction, error) {
	if f.Limit <= 0 || f.Limit > s.cfg.MaxQueryLimit {
		f.Limit = s.cfg.MaxQueryLimit
	}
	if f.ModelVersion == "" {
		version, ok, err := s.repo.LatestVersion(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve latest model version: %w", err)
		}
		if !ok {
			return []FirePrediction{}, nil
		}
		f.ModelVersion = version
	}
	return s.repo.Query(ctx, f)
}

func evaluate(forest *Forest, rows [][]float64, targets []float64) (mse, r2 float64) {
	if len(rows) == 0 {
		return 0, 0
	}
	var mean float64
	for _, t := range targets {
		mean += t
	}
	mean /= float64(len(targets))

	var ssRes, ssTot float64
	for i, row := range rows {
		diff := forest.Predict(row) - targets[i]
		ssRes += diff * diff
		dev := targets[i] - mean
		ssTot += dev * dev
	}
	mse = ssRes / float64(len(rows))
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}
	return mse, r2
}
