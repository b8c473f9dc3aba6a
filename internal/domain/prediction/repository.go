package prediction

import "context"

// Repository persists generated predictions.
type Repository interface {
	// InsertBatch stores a generation run's rows and assigns their IDs.
	InsertBatch(ctx context.Context, predictions []FirePrediction) error
	// Query returns predictions matching the filter, strongest first.
	Query(ctx context.Context, filter Filter) ([]FirePrediction, error)
	// LatestVersion returns the most recently stored model version, with
	// false when no predictions exist yet.
	LatestVersion(ctx context.Context) (string, bool, error)
}

// ArtifactStore persists trained model snapshots so a restart does not lose
// the serving model.
type ArtifactStore interface {
	Save(ctx context.Context, artifact *Artifact) error
	// Load returns the most recent snapshot, with false when none exists.
	Load(ctx context.Context) (*Artifact, bool, error)
}
