package prediction

import "time"

// Artifact is a fully trained, immutable model snapshot. It is what the
// service publishes for serving and what the artifact store persists; the
// whole struct is JSON so a snapshot survives restarts byte for byte.
type Artifact struct {
	Version      string    `json:"version"`
	FeatureNames []string  `json:"feature_names"`
	Forest       *Forest   `json:"forest"`
	R2Score      float64   `json:"r2_score"`
	MSE          float64   `json:"mse"`
	Samples      int       `json:"samples"`
	TrainedAt    time.Time `json:"trained_at"`
}

// Predict scores one feature vector, clamped to the probability range.
func (a *Artifact) Predict(x []float64) float64 {
	p := a.Forest.Predict(x)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
