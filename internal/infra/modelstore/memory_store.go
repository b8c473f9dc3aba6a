package modelstore

import (
	"context"
	"sync"

	"github.com/firesight-in/firesight/internal/domain/prediction"
)

// MemoryStore keeps the latest model snapshot in process memory. Used for
// local development and tests; snapshots do not survive a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	artifact *prediction.Artifact
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(_ context.Context, artifact *prediction.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifact = artifact
	return nil
}

func (s *MemoryStore) Load(_ context.Context) (*prediction.Artifact, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.artifact == nil {
		return nil, false, nil
	}
	return s.artifact, true, nil
}

var _ prediction.ArtifactStore = (*MemoryStore)(nil)
