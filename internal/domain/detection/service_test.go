package detection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/firesight-in/firesight/internal/observability"
	apperrors "github.com/firesight-in/firesight/pkg/errors"
)

type fakeRepo struct {
	mu         sync.Mutex
	detections []FireDetection
	reports    []UserReport
	nextID     int64
	insertErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{nextID: 1}
}

func (r *fakeRepo) Insert(_ context.Context, det FireDetection) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return 0, r.insertErr
	}
	det.ID = r.nextID
	r.nextID++
	r.detections = append(r.detections, det)
	return det.ID, nil
}

func (r *fakeRepo) Query(_ context.Context, f QueryFilter) ([]FireDetection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []FireDetection
	for _, det := range r.detections {
		if f.StartDate != "" && det.AcqDate < f.StartDate {
			continue
		}
		if f.EndDate != "" && det.AcqDate > f.EndDate {
			continue
		}
		if f.MinConfidence > 0 && det.Confidence < f.MinConfidence {
			continue
		}
		out = append(out, det)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *fakeRepo) Recent(_ context.Context, limit int) ([]FireDetection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]FireDetection, len(r.detections))
	copy(out, r.detections)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AcqDate != out[j].AcqDate {
			return out[i].AcqDate > out[j].AcqDate
		}
		return out[i].AcqTime > out[j].AcqTime
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepo) InsertUserReport(_ context.Context, report UserReport, _ time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	return int64(len(r.reports)), nil
}

type fakeFeed struct {
	fetchFn func(ctx context.Context, source Source, area Region, dayRange int, endDate string) ([]FireDetection, error)
}

func (f *fakeFeed) Fetch(ctx context.Context, source Source, area Region, dayRange int, endDate string) ([]FireDetection, error) {
	return f.fetchFn(ctx, source, area, dayRange, endDate)
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]Statistics
	saves   int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]Statistics)}
}

func (c *fakeCache) Get(_ context.Context, key string) (Statistics, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats, ok := c.entries[key]
	return stats, ok, nil
}

func (c *fakeCache) Save(_ context.Context, key string, stats Statistics, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = stats
	c.saves++
	return nil
}

type capturePublisher struct {
	mu        sync.Mutex
	published [][]FireDetection
}

func (p *capturePublisher) Publish(_ context.Context, dets []FireDetection) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, dets)
	return nil
}

var testRegion = Region{LatMin: 15, LatMax: 35, LonMin: 70, LonMax: 95}

func newTestService(t *testing.T, repo Repository, feed FeedClient) (Service, *capturePublisher, *fakeCache, clockwork.Clock) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClockAt(time.Date(2024, 11, 10, 12, 0, 0, 0, time.UTC))
	publisher := &capturePublisher{}
	cache := newFakeCache()
	svc := NewService(Config{
		Region:         testRegion,
		DefaultSources: []Source{SourceMODIS},
		MaxQueryLimit:  5000,
		StatsCacheTTL:  10 * time.Minute,
	}, repo, feed, NewDeduplicator(2*time.Hour, testTolerances), publisher, cache, observability.NewMetricsForTesting(), logger, clock)
	return svc, publisher, cache, clock
}

func TestRefreshCountsNewAndDuplicates(t *testing.T) {
	repo := newFakeRepo()
	batch := []FireDetection{
		modisAt(30.0, 75.0, "2024-11-09", "0600"),
		modisAt(30.0001, 75.0001, "2024-11-09", "0605"), // dup of first
		modisAt(31.0, 76.0, "2024-11-09", "0600"),
		modisAt(31.0001, 76.0001, "2024-11-09", "0610"), // dup of third
		modisAt(32.0, 77.0, "2024-11-09", "0600"),
	}
	feed := &fakeFeed{fetchFn: func(context.Context, Source, Region, int, string) ([]FireDetection, error) {
		return batch, nil
	}}
	svc, publisher, _, _ := newTestService(t, repo, feed)

	summary, err := svc.Refresh(context.Background(), RefreshRequest{})
	require.NoError(t, err)
	require.Equal(t, 3, summary.NewFires)
	require.Equal(t, 5, summary.TotalFires)
	require.Equal(t, 0, summary.RejectedOutOfRegion)
	require.Len(t, repo.detections, 3)
	require.Len(t, publisher.published, 1)
	require.Len(t, publisher.published[0], 3)
}

func TestRefreshIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	batch := []FireDetection{
		modisAt(30.0, 75.0, "2024-11-09", "0600"),
		modisAt(31.0, 76.0, "2024-11-09", "0600"),
	}
	feed := &fakeFeed{fetchFn: func(context.Context, Source, Region, int, string) ([]FireDetection, error) {
		return batch, nil
	}}
	svc, _, _, _ := newTestService(t, repo, feed)

	first, err := svc.Refresh(context.Background(), RefreshRequest{})
	require.NoError(t, err)
	require.Equal(t, 2, first.NewFires)

	second, err := svc.Refresh(context.Background(), RefreshRequest{})
	require.NoError(t, err)
	require.Equal(t, 0, second.NewFires)
	require.Equal(t, 2, second.TotalFires)
	require.Len(t, repo.detections, 2)
}

func TestRefreshRejectsOutOfRegion(t *testing.T) {
	repo := newFakeRepo()
	feed := &fakeFeed{fetchFn: func(context.Context, Source, Region, int, string) ([]FireDetection, error) {
		return []FireDetection{
			modisAt(30.0, 75.0, "2024-11-09", "0600"),
			modisAt(48.85, 2.35, "2024-11-09", "0600"), // Paris, well outside
		}, nil
	}}
	svc, _, _, _ := newTestService(t, repo, feed)

	summary, err := svc.Refresh(context.Background(), RefreshRequest{})
	require.NoError(t, err)
	require.Equal(t, 1, summary.NewFires)
	require.Equal(t, 1, summary.TotalFires)
	require.Equal(t, 1, summary.RejectedOutOfRegion)
}

func TestRefreshFeedFailure(t *testing.T) {
	repo := newFakeRepo()
	feed := &fakeFeed{fetchFn: func(context.Context, Source, Region, int, string) ([]FireDetection, error) {
		return nil, errors.New("upstream 503")
	}}
	svc, _, _, _ := newTestService(t, repo, feed)

	_, err := svc.Refresh(context.Background(), RefreshRequest{})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, apperrors.CodeFeedUnavailable))
	require.Empty(t, repo.detections)
}

func TestRefreshRejectsUserReportedSource(t *testing.T) {
	svc, _, _, _ := newTestService(t, newFakeRepo(), &fakeFeed{})

	_, err := svc.Refresh(context.Background(), RefreshRequest{Sources: []string{"USER_REPORTED"}})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

func TestRefreshContinuesPastInsertFailure(t *testing.T) {
	repo := newFakeRepo()
	feed := &fakeFeed{fetchFn: func(context.Context, Source, Region, int, string) ([]FireDetection, error) {
		return []FireDetection{modisAt(30, 75, "2024-11-09", "0600")}, nil
	}}
	repo.insertErr = errors.New("disk full")
	svc, _, _, _ := newTestService(t, repo, feed)

	summary, err := svc.Refresh(context.Background(), RefreshRequest{})
	require.NoError(t, err)
	require.Equal(t, 0, summary.NewFires)
	require.Equal(t, 1, summary.TotalFires)
}

func TestReportStoresDetectionWithDefaults(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _, clock := newTestService(t, repo, &fakeFeed{})

	id, err := svc.Report(context.Background(), UserReport{Latitude: 30.5, Longitude: 75.8, Description: "smoke"})
	require.NoError(t, err)
	require.NotZero(t, id)
	require.Len(t, repo.reports, 1)
	require.Len(t, repo.detections, 1)

	det := repo.detections[0]
	require.Equal(t, SourceUserReport, det.Source)
	require.Equal(t, 50, det.Confidence)
	require.Equal(t, "USER_REPORT", det.Satellite)
	require.Equal(t, "VISUAL", det.Instrument)
	require.Equal(t, clock.Now().UTC().Format("2006-01-02"), det.AcqDate)
}

func TestReportOutsideRegion(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _, _ := newTestService(t, repo, &fakeFeed{})

	_, err := svc.Report(context.Background(), UserReport{Latitude: 40.0, Longitude: 75.0})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
	require.Empty(t, repo.reports)
	require.Empty(t, repo.detections)
}

func TestStatisticsGroupsByConfidence(t *testing.T) {
	repo := newFakeRepo()
	svc, _, cache, _ := newTestService(t, repo, &fakeFeed{})

	insert := func(confidence int, date string) {
		det := modisAt(30, 75, date, "0600")
		det.Confidence = confidence
		_, err := repo.Insert(context.Background(), det)
		require.NoError(t, err)
	}
	insert(95, "2024-11-09")
	insert(85, "2024-11-08")
	insert(60, "2024-11-09")
	insert(20, "2024-11-07")

	stats, err := svc.Statistics(context.Background(), StatisticsRequest{Period: "week", GroupBy: "confidence"})
	require.NoError(t, err)
	require.Equal(t, "week", stats.Period)
	require.Equal(t, 4, stats.TotalFires)
	require.Len(t, stats.Groups, 3)
	require.Equal(t, "high", stats.Groups[0].Key)
	require.Equal(t, 2, stats.Groups[0].Count)
	require.InDelta(t, 90.0, stats.Groups[0].AvgConfidence, 1e-9)

	// Second call is served from the cache.
	require.Equal(t, 1, cache.saves)
	_, err = svc.Statistics(context.Background(), StatisticsRequest{Period: "week", GroupBy: "confidence"})
	require.NoError(t, err)
	require.Equal(t, 1, cache.saves)
}

func TestStatisticsUnknownGroupBy(t *testing.T) {
	svc, _, _, _ := newTestService(t, newFakeRepo(), &fakeFeed{})

	_, err := svc.Statistics(context.Background(), StatisticsRequest{GroupBy: "satellite"})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

func TestQueryCapsLimit(t *testing.T) {
	repo := newFakeRepo()
	for i := 0; i < 10; i++ {
		_, err := repo.Insert(context.Background(), modisAt(30, 75, "2024-11-09", "0600"))
		require.NoError(t, err)
	}
	svc, _, _, _ := newTestService(t, repo, &fakeFeed{})

	fires, err := svc.Query(context.Background(), QueryFilter{Limit: 3})
	require.NoError(t, err)
	require.Len(t, fires, 3)

	_, err = svc.Query(context.Background(), QueryFilter{StartDate: "11-09-2024"})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}
