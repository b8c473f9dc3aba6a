package detection

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/firesight-in/firesight/internal/observability"
	apperrors "github.com/firesight-in/firesight/pkg/errors"
)

// Service exposes the detection ingestion pipeline and the read-only query
// layer consumed by the presentation tier.
type Service interface {
	Refresh(ctx context.Context, req RefreshRequest) (RefreshSummary, error)
	Query(ctx context.Context, f QueryFilter) ([]FireDetection, error)
	Recent(ctx context.Context, limit int) ([]FireDetection, error)
	Report(ctx context.Context, report UserReport) (int64, error)
	Statistics(ctx context.Context, req StatisticsRequest) (Statistics, error)
}

// Config wires runtime parameters for the detection domain.
type Config struct {
	Region         Region
	DefaultSources []Source
	MaxQueryLimit  int
	StatsCacheTTL  time.Duration
}

type service struct {
	cfg     Config
	repo    Repository
	feed    FeedClient
	dedup   *Deduplicator
	events  EventPublisher
	cache   StatsCache
	metrics *observability.Metrics
	logger  *slog.Logger
	clock   clockwork.Clock
}

// NewService wires up the detection domain.
func NewService(cfg Config, repo Repository, feed FeedClient, dedup *Deduplicator, events EventPublisher, cache StatsCache, metrics *observability.Metrics, logger *slog.Logger, clock clockwork.Clock) Service {
	return &service{
		cfg:     cfg,
		repo:    repo,
		feed:    feed,
		dedup:   dedup,
		events:  events,
		cache:   cache,
		metrics: metrics,
		logger:  logger.With("component", "detection.service"),
		clock:   clock,
	}
}

// Refresh pulls the requested sources from the feed, rejects out-of-region
// records, drops duplicates against the store, and persists the rest. Each
// accepted record commits independently; a failed insert never rolls back
// records already accepted in the same batch.
func (s *service) Refresh(ctx context.Context, req RefreshRequest) (RefreshSummary, error) {
	started := s.clock.Now()
	defer func() {
		s.metrics.RefreshDuration.Observe(s.clock.Since(started).Seconds())
	}()

	sources, err := s.resolveSources(req.Sources)
	if err != nil {
		return RefreshSummary{}, err
	}
	startDate, endDate, dayRange, err := s.resolveDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return RefreshSummary{}, err
	}

	batchID := uuid.NewString()
	log := s.logger.With("batch_id", batchID)

	var fetched []FireDetection
	for _, src := range sources {
		records, err := s.feed.Fetch(ctx, src, s.cfg.Region, dayRange, endDate)
		if err != nil {
			s.metrics.FeedRequests.WithLabelValues(string(src), "error").Inc()
			return RefreshSummary{}, apperrors.Wrap(apperrors.CodeFeedUnavailable, fmt.Sprintf("feed fetch failed for %s", src), err)
		}
		s.metrics.FeedRequests.WithLabelValues(string(src), "success").Inc()
		fetched = append(fetched, records...)
	}

	inRegion := make([]FireDetection, 0, len(fetched))
	rejected := 0
	for _, det := range fetched {
		if !s.cfg.Region.Contains(det.Latitude, det.Longitude) {
			rejected++
			continue
		}
		inRegion = append(inRegion, det)
	}
	if rejected > 0 {
		s.metrics.DetectionsOutOfRange.Add(float64(rejected))
	}

	existing, err := s.repo.Query(ctx, QueryFilter{
		StartDate: shiftDate(startDate, -1),
		EndDate:   shiftDate(endDate, 1),
	})
	if err != nil {
		return RefreshSummary{}, fmt.Errorf("load existing detections: %w", err)
	}

	fresh, duplicates := s.dedup.Filter(existing, inRegion)
	s.metrics.DetectionsDuplicate.Add(float64(duplicates))

	now := s.clock.Now().UTC()
	accepted := make([]FireDetection, 0, len(fresh))
	for _, det := range fresh {
		det.CreatedAt = now
		id, err := s.repo.Insert(ctx, det)
		if err != nil {
			log.Error("insert detection failed", "error", err, "lat", det.Latitude, "lon", det.Longitude)
			continue
		}
		det.ID = id
		accepted = append(accepted, det)
	}
	s.metrics.DetectionsIngested.Add(float64(len(accepted)))

	if len(accepted) > 0 {
		if err := s.events.Publish(ctx, accepted); err != nil {
			log.Warn("publish accepted detections failed", "error", err)
		}
	}

	summary := RefreshSummary{
		NewFires:            len(accepted),
		TotalFires:          len(inRegion),
		RejectedOutOfRegion: rejected,
		Sources:             sources,
		DateRange:           startDate + " to " + endDate,
	}
	log.Info("refresh complete",
		"sources", len(sources),
		"fetched", len(fetched),
		"new", summary.NewFires,
		"duplicates", duplicates,
		"rejected_out_of_region", rejected)
	return summary, nil
}

// Query returns detections matching the filter, ordered by acquisition
// date/time descending with ties broken by insertion order descending.
func (s *service) Query(ctx context.Context, f QueryFilter) ([]FireDetection, error) {
	if err := validateDates(f.StartDate, f.EndDate); err != nil {
		return nil, err
	}
	if f.Limit <= 0 || f.Limit > s.cfg.MaxQueryLimit {
		f.Limit = s.cfg.MaxQueryLimit
	}
	return s.repo.Query(ctx, f)
}

func (s *service) Recent(ctx context.Context, limit int) ([]FireDetection, error) {
	if limit <= 0 {
		limit = 3
	}
	if limit > s.cfg.MaxQueryLimit {
		limit = s.cfg.MaxQueryLimit
	}
	return s.repo.Recent(ctx, limit)
}

// Report validates a user sighting and stores it both as a UserFireReport row
// and as a USER_REPORTED detection visible to queries and the risk model.
func (s *service) Report(ctx context.Context, report UserReport) (int64, error) {
	if !s.cfg.Region.Contains(report.Latitude, report.Longitude) {
		return 0, apperrors.Wrap(apperrors.CodeValidation,
			fmt.Sprintf("coordinates (%.4f, %.4f) are outside the monitored region", report.Latitude, report.Longitude), nil)
	}

	now := s.clock.Now().UTC()
	if _, err := s.repo.InsertUserReport(ctx, report, now); err != nil {
		return 0, fmt.Errorf("store user report: %w", err)
	}

	det := FireDetection{
		Latitude:   report.Latitude,
		Longitude:  report.Longitude,
		Confidence: 50, // default for unverified sightings
		AcqDate:    now.Format("2006-01-02"),
		AcqTime:    now.Format("1504"),
		Satellite:  "USER_REPORT",
		Instrument: "VISUAL",
		Source:     SourceUserReport,
		CreatedAt:  now,
	}
	id, err := s.repo.Insert(ctx, det)
	if err != nil {
		return 0, fmt.Errorf("store user detection: %w", err)
	}
	s.metrics.DetectionsIngested.Inc()
	s.logger.Info("user fire report accepted", "fire_id", id, "lat", report.Latitude, "lon", report.Longitude)
	return id, nil
}

// Statistics aggregates stored detections over the requested period. Results
// are cached with a short TTL since the underlying table only grows.
func (s *service) Statistics(ctx context.Context, req StatisticsRequest) (Statistics, error) {
	period, days, err := resolvePeriod(req.Period)
	if err != nil {
		return Statistics{}, err
	}
	groupBy := req.GroupBy
	if groupBy == "" {
		groupBy = "source"
	}
	switch groupBy {
	case "source", "date", "confidence":
	default:
		return Statistics{}, apperrors.Wrap(apperrors.CodeValidation, fmt.Sprintf("unknown group_by %q", groupBy), nil)
	}

	key := fmt.Sprintf("stats:%s:%s", period, groupBy)
	if cached, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		return cached, nil
	}

	end := s.clock.Now().UTC()
	start := end.AddDate(0, 0, -days)
	fires, err := s.repo.Query(ctx, QueryFilter{
		StartDate: start.Format("2006-01-02"),
		EndDate:   end.Format("2006-01-02"),
	})
	if err != nil {
		return Statistics{}, err
	}

	stats := aggregate(fires, groupBy)
	stats.Period = period
	stats.DateRange = start.Format("2006-01-02") + " to " + end.Format("2006-01-02")

	if err := s.cache.Save(ctx, key, stats, s.cfg.StatsCacheTTL); err != nil {
		s.logger.Warn("statistics cache save failed", "error", err)
	}
	return stats, nil
}

func aggregate(fires []FireDetection, groupBy string) Statistics {
	type acc struct {
		count         int
		confidenceSum float64
		brightnessSum float64
		brightnessN   int
		frpSum        float64
		frpN          int
	}
	buckets := make(map[string]*acc)
	keyOf := func(d FireDetection) string {
		switch groupBy {
		case "date":
			return d.AcqDate
		case "confidence":
			switch {
			case d.Confidence >= 80:
				return "high"
			case d.Confidence >= 50:
				return "medium"
			default:
				return "low"
			}
		default:
			return string(d.Source)
		}
	}
	for _, d := range fires {
		key := keyOf(d)
		a, ok := buckets[key]
		if !ok {
			a = &acc{}
			buckets[key] = a
		}
		a.count++
		a.confidenceSum += float64(d.Confidence)
		if d.Brightness != nil {
			a.brightnessSum += *d.Brightness
			a.brightnessN++
		}
		if d.FRP != nil {
			a.frpSum += *d.FRP
			a.frpN++
		}
	}

	groups := make([]StatisticsGroup, 0, len(buckets))
	for key, a := range buckets {
		g := StatisticsGroup{
			Key:           key,
			Count:         a.count,
			AvgConfidence: a.confidenceSum / float64(a.count),
		}
		if a.brightnessN > 0 {
			g.AvgBrightness = a.brightnessSum / float64(a.brightnessN)
		}
		if a.frpN > 0 {
			g.AvgFRP = a.frpSum / float64(a.frpN)
		}
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Key < groups[j].Key
	})

	return Statistics{
		GroupBy:    groupBy,
		TotalFires: len(fires),
		Groups:     groups,
	}
}

func (s *service) resolveSources(raw []string) ([]Source, error) {
	if len(raw) == 0 {
		return s.cfg.DefaultSources, nil
	}
	sources := make([]Source, 0, len(raw))
	seen := make(map[Source]struct{})
	for _, label := range raw {
		src, err := ParseSource(label)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeValidation, "invalid source", err)
		}
		if !src.IsFeed() {
			return nil, apperrors.Wrap(apperrors.CodeValidation, fmt.Sprintf("%s is not a feed source", src), nil)
		}
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		sources = append(sources, src)
	}
	return sources, nil
}

func (s *service) resolveDateRange(start, end string) (string, string, int, error) {
	now := s.clock.Now().UTC()
	if end == "" {
		end = now.Format("2006-01-02")
	}
	if start == "" {
		start = now.AddDate(0, 0, -7).Format("2006-01-02")
	}
	startT, err := time.Parse("2006-01-02", start)
	if err != nil {
		return "", "", 0, apperrors.Wrap(apperrors.CodeValidation, "malformed start_date", err)
	}
	endT, err := time.Parse("2006-01-02", end)
	if err != nil {
		return "", "", 0, apperrors.Wrap(apperrors.CodeValidation, "malformed end_date", err)
	}
	if endT.Before(startT) {
		return "", "", 0, apperrors.Wrap(apperrors.CodeValidation, "end_date precedes start_date", nil)
	}
	dayRange := int(endT.Sub(startT).Hours()/24) + 1
	return start, end, dayRange, nil
}

func validateDates(dates ...string) error {
	for _, d := range dates {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return apperrors.Wrap(apperrors.CodeValidation, "malformed date", err)
		}
	}
	return nil
}

func resolvePeriod(period string) (string, int, error) {
	switch period {
	case "", "week":
		return "week", 7, nil
	case "day":
		return "day", 1, nil
	case "month":
		return "month", 30, nil
	case "year":
		return "year", 365, nil
	default:
		return "", 0, apperrors.Wrap(apperrors.CodeValidation, fmt.Sprintf("unknown time_period %q", period), nil)
	}
}

func shiftDate(date string, days int) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, days).Format("2006-01-02")
}
