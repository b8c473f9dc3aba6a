package detectionrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/firesight-in/firesight/internal/domain/detection"
)

// MemoryRepository is an in-memory detection store for local development and
// tests. It mirrors the ordering semantics of the Postgres repository.
type MemoryRepository struct {
	mu         sync.RWMutex
	detections []detection.FireDetection
	reports    []storedReport
	nextID     int64
	nextReport int64
}

type storedReport struct {
	id        int64
	report    detection.UserReport
	createdAt time.Time
}

// NewMemoryRepository creates an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nextID: 1, nextReport: 1}
}

func (r *MemoryRepository) Insert(_ context.Context, det detection.FireDetection) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	det.ID = r.nextID
	r.nextID++
	r.detections = append(r.detections, det)
	return det.ID, nil
}

func (r *MemoryRepository) Query(_ context.Context, f detection.QueryFilter) ([]detection.FireDetection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sourceSet := make(map[detection.Source]struct{}, len(f.Sources))
	for _, s := range f.Sources {
		sourceSet[s] = struct{}{}
	}

	out := make([]detection.FireDetection, 0)
	for _, det := range r.detections {
		if f.StartDate != "" && det.AcqDate < f.StartDate {
			continue
		}
		if f.EndDate != "" && det.AcqDate > f.EndDate {
			continue
		}
		if len(sourceSet) > 0 {
			if _, ok := sourceSet[det.Source]; !ok {
				continue
			}
		}
		if f.MinConfidence > 0 && det.Confidence < f.MinConfidence {
			continue
		}
		if f.Bounds != nil && !f.Bounds.Contains(det.Latitude, det.Longitude) {
			continue
		}
		out = append(out, det)
	}

	sortNewestFirst(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) Recent(_ context.Context, limit int) ([]detection.FireDetection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]detection.FireDetection, len(r.detections))
	copy(out, r.detections)
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) InsertUserReport(_ context.Context, report detection.UserReport, createdAt time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextReport
	r.nextReport++
	r.reports = append(r.reports, storedReport{id: id, report: report, createdAt: createdAt})
	return id, nil
}

// UserReportCount reports the number of stored raw reports. Test helper.
func (r *MemoryRepository) UserReportCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.reports)
}

func sortNewestFirst(dets []detection.FireDetection) {
	sort.SliceStable(dets, func(i, j int) bool {
		if dets[i].AcqDate != dets[j].AcqDate {
			return dets[i].AcqDate > dets[j].AcqDate
		}
		if dets[i].AcqTime != dets[j].AcqTime {
			return dets[i].AcqTime > dets[j].AcqTime
		}
		return dets[i].ID > dets[j].ID
	})
}

var _ detection.Repository = (*MemoryRepository)(nil)
