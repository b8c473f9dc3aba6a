package detection

import (
	"context"
	"time"
)

// Repository defines the persistence contract for detections. Insertion is
// append-only and atomic per record; queries are side-effect free.
type Repository interface {
	Insert(ctx context.Context, d FireDetection) (int64, error)
	Query(ctx context.Context, f QueryFilter) ([]FireDetection, error)
	Recent(ctx context.Context, limit int) ([]FireDetection, error)
	InsertUserReport(ctx context.Context, r UserReport, createdAt time.Time) (int64, error)
}

// FeedClient fetches raw hotspot records from the external satellite feed.
// The feed is opaque: any transport or auth failure surfaces as an error that
// the pipeline maps to FeedUnavailable.
type FeedClient interface {
	Fetch(ctx context.Context, source Source, area Region, dayRange int, endDate string) ([]FireDetection, error)
}

// EventPublisher pushes accepted detections to downstream consumers.
// Publishing is best effort and never blocks ingestion correctness.
type EventPublisher interface {
	Publish(ctx context.Context, detections []FireDetection) error
}

// StatsCache memoizes statistics responses.
type StatsCache interface {
	Get(ctx context.Context, key string) (Statistics, bool, error)
	Save(ctx context.Context, key string, stats Statistics, ttl time.Duration) error
}
