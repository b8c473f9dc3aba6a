package predictionrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/firesight-in/firesight/internal/domain/prediction"
)

// MemoryRepository is an in-memory prediction store for local development and
// tests.
type MemoryRepository struct {
	mu          sync.RWMutex
	predictions []prediction.FirePrediction
	nextID      int64
}

// NewMemoryRepository creates an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nextID: 1}
}

func (r *MemoryRepository) InsertBatch(_ context.Context, predictions []prediction.FirePrediction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range predictions {
		p.ID = r.nextID
		r.nextID++
		r.predictions = append(r.predictions, p)
	}
	return nil
}

func (r *MemoryRepository) Query(_ context.Context, f prediction.Filter) ([]prediction.FirePrediction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]prediction.FirePrediction, 0)
	for _, p := range r.predictions {
		if f.RiskLevel != nil && p.RiskLevel != *f.RiskLevel {
			continue
		}
		if f.MinProbability > 0 && p.Probability < f.MinProbability {
			continue
		}
		if f.Bounds != nil && !f.Bounds.Contains(p.Latitude, p.Longitude) {
			continue
		}
		if f.ModelVersion != "" && p.ModelVersion != f.ModelVersion {
			continue
		}
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Probability != out[j].Probability {
			return out[i].Probability > out[j].Probability
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) LatestVersion(_ context.Context) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.predictions) == 0 {
		return "", false, nil
	}
	latest := r.predictions[0]
	for _, p := range r.predictions[1:] {
		if p.CreatedAt.After(latest.CreatedAt) || (p.CreatedAt.Equal(latest.CreatedAt) && p.ID > latest.ID) {
			latest = p
		}
	}
	return latest.ModelVersion, true, nil
}

var _ prediction.Repository = (*MemoryRepository)(nil)
