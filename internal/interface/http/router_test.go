package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/firesight-in/firesight/internal/domain/detection"
	"github.com/firesight-in/firesight/internal/domain/prediction"
	"github.com/firesight-in/firesight/internal/infra/config"
	"github.com/firesight-in/firesight/internal/infra/detectionrepo"
	"github.com/firesight-in/firesight/internal/infra/events"
	"github.com/firesight-in/firesight/internal/infra/modelstore"
	"github.com/firesight-in/firesight/internal/infra/predictionrepo"
	"github.com/firesight-in/firesight/internal/infra/statscache"
	"github.com/firesight-in/firesight/internal/observability"
)

type stubFeed struct {
	fetchFn func(ctx context.Context, source detection.Source, area detection.Region, dayRange int, endDate string) ([]detection.FireDetection, error)
}

func (s *stubFeed) Fetch(ctx context.Context, source detection.Source, area detection.Region, dayRange int, endDate string) ([]detection.FireDetection, error) {
	if s.fetchFn == nil {
		return nil, nil
	}
	return s.fetchFn(ctx, source, area, dayRange, endDate)
}

func newTestServer(t *testing.T, cfg *config.Config, feed detection.FeedClient) (*httptest.Server, *detectionrepo.MemoryRepository) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClockAt(time.Date(2024, 11, 10, 12, 0, 0, 0, time.UTC))
	metrics := observability.NewMetricsForTesting()

	repo := detectionrepo.NewMemoryRepository()
	dedup := detection.NewDeduplicator(cfg.Ingest.DedupWindow, cfg.Ingest.ToleranceKm)
	detectionSvc := detection.NewService(detection.Config{
		Region: detection.Region{
			LatMin: cfg.Ingest.LatMin, LatMax: cfg.Ingest.LatMax,
			LonMin: cfg.Ingest.LonMin, LonMax: cfg.Ingest.LonMax,
		},
		DefaultSources: []detection.Source{detection.SourceMODIS},
		MaxQueryLimit:  cfg.Ingest.MaxQueryLimit,
		StatsCacheTTL:  cfg.Ingest.StatsCacheTTL,
	}, repo, feed, dedup, events.NewNoopPublisher(), statscache.NewMemoryCache(clock), metrics, logger, clock)

	predictionSvc := prediction.NewService(prediction.Config{
		Area: prediction.Bounds{
			LatMin: cfg.Ingest.LatMin, LatMax: cfg.Ingest.LatMax,
			LonMin: cfg.Ingest.LonMin, LonMax: cfg.Ingest.LonMax,
		},
		Trees:              5,
		MaxDepth:           4,
		MinSamplesSplit:    2,
		MinSamplesLeaf:     1,
		Seed:               1,
		MinDetections:      10,
		MinSamples:         10,
		HistoryCellSize:    0.1,
		TrailingWindowDays: 90,
		HorizonDays:        7,
		DefaultGridSize:    0.2,
		MaxQueryLimit:      cfg.Ingest.MaxQueryLimit,
	}, repo, predictionrepo.NewMemoryRepository(), modelstore.NewMemoryStore(), metrics, logger, clock)

	handler := NewHandler(detectionSvc, predictionSvc, logger)
	server := NewRouter(cfg, handler)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	return ts, repo
}

func testConfig() *config.Config {
	return &config.Config{
		HTTP: config.HTTPConfig{Address: ":0"},
		Ingest: config.IngestConfig{
			LatMin: 15, LatMax: 35, LonMin: 70, LonMax: 95,
			DedupWindow:   2 * time.Hour,
			ToleranceKm:   map[string]float64{"MODIS": 1.0, "VIIRS": 0.375, "USER_REPORTED": 1.0},
			MaxQueryLimit: 5000,
			StatsCacheTTL: 10 * time.Minute,
		},
	}
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t, testConfig(), &stubFeed{})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRefreshFiresReportsCounts(t *testing.T) {
	feed := &stubFeed{fetchFn: func(context.Context, detection.Source, detection.Region, int, string) ([]detection.FireDetection, error) {
		return []detection.FireDetection{
			{Latitude: 30.1, Longitude: 75.5, Confidence: 80, AcqDate: "2024-11-09", AcqTime: "0600", Source: detection.SourceMODIS},
			{Latitude: 31.2, Longitude: 76.4, Confidence: 70, AcqDate: "2024-11-09", AcqTime: "0612", Source: detection.SourceMODIS},
		}, nil
	}}
	ts, _ := newTestServer(t, testConfig(), feed)

	resp, err := http.Post(ts.URL+"/api/v1/fires/refresh", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Status     string `json:"status"`
		NewFires   int    `json:"new_fires"`
		TotalFires int    `json:"total_fires"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "success", payload.Status)
	require.Equal(t, 2, payload.NewFires)
	require.Equal(t, 2, payload.TotalFires)
}

func TestReportFireAcceptedAndQueryable(t *testing.T) {
	ts, _ := newTestServer(t, testConfig(), &stubFeed{})

	body, _ := json.Marshal(map[string]any{
		"latitude":    30.5,
		"longitude":   75.8,
		"description": "smoke over the field",
	})
	resp, err := http.Post(ts.URL+"/api/v1/fires/report", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		FireID int64  `json:"fire_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotZero(t, created.FireID)

	listResp, err := http.Get(ts.URL + "/api/v1/fires?source=USER_REPORTED")
	require.NoError(t, err)
	defer listResp.Body.Close()
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var listed struct {
		Count int                       `json:"count"`
		Fires []detection.FireDetection `json:"fires"`
	}
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&listed))
	require.Equal(t, 1, listed.Count)
	require.Equal(t, detection.SourceUserReport, listed.Fires[0].Source)
	require.Equal(t, 50, listed.Fires[0].Confidence)
}

func TestReportFireOutsideRegion(t *testing.T) {
	ts, _ := newTestServer(t, testConfig(), &stubFeed{})

	body, _ := json.Marshal(map[string]any{"latitude": 48.85, "longitude": 2.35})
	resp, err := http.Post(ts.URL+"/api/v1/fires/report", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "validation_error", payload.Error.Code)
}

func TestGeneratePredictionsWithoutModel(t *testing.T) {
	ts, _ := newTestServer(t, testConfig(), &stubFeed{})

	resp, err := http.Post(ts.URL+"/api/v1/predictions/generate", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "model_not_trained", payload.Error.Code)
}

func TestListFiresRejectsUnknownSource(t *testing.T) {
	ts, _ := newTestServer(t, testConfig(), &stubFeed{})

	resp, err := http.Get(ts.URL + "/api/v1/fires?source=LANDSAT")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOperatorEndpointsRequireToken(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, Secret: "test-secret"}
	ts, _ := newTestServer(t, cfg, &stubFeed{})

	resp, err := http.Post(ts.URL+"/api/v1/fires/refresh", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Read endpoints stay open.
	readResp, err := http.Get(ts.URL + "/api/v1/fires/recent")
	require.NoError(t, err)
	defer readResp.Body.Close()
	require.Equal(t, http.StatusOK, readResp.StatusCode)
}

func TestStatisticsEndpoint(t *testing.T) {
	ts, repo := newTestServer(t, testConfig(), &stubFeed{})

	brightness := 325.0
	_, err := repo.Insert(context.Background(), detection.FireDetection{
		Latitude: 30.1, Longitude: 75.5, Confidence: 85, Brightness: &brightness,
		AcqDate: "2024-11-09", AcqTime: "0630", Source: detection.SourceMODIS,
	})
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/api/v1/statistics?time_period=week&group_by=confidence")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats detection.Statistics
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	require.Equal(t, "week", stats.Period)
	require.Equal(t, 1, stats.TotalFires)
	require.Equal(t, "high", stats.Groups[0].Key)
}
