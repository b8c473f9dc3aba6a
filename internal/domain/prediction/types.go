package prediction

import "time"

// RiskLevel is the deterministic classification of a probability.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "HIGH"
	RiskMedium RiskLevel = "MEDIUM"
	RiskLow    RiskLevel = "LOW"
)

// Risk tier thresholds. Cells below LowThreshold are computed but never
// persisted.
const (
	HighThreshold   = 0.70
	MediumThreshold = 0.40
	LowThreshold    = 0.30
)

// RiskLevelFor classifies a probability, reporting false below the
// persistence threshold. It is a pure function of its input.
func RiskLevelFor(probability float64) (RiskLevel, bool) {
	switch {
	case probability >= HighThreshold:
		return RiskHigh, true
	case probability >= MediumThreshold:
		return RiskMedium, true
	case probability >= LowThreshold:
		return RiskLow, true
	default:
		return "", false
	}
}

// ParseRiskLevel validates a raw risk level label.
func ParseRiskLevel(raw string) (RiskLevel, bool) {
	switch RiskLevel(raw) {
	case RiskHigh, RiskMedium, RiskLow:
		return RiskLevel(raw), true
	default:
		return "", false
	}
}

// FirePrediction is a model-generated risk estimate for one grid cell at one
// forecast date. Rows are never updated: successive generation runs coexist,
// distinguished by ModelVersion.
type FirePrediction struct {
	ID             int64     `json:"id"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Probability    float64   `json:"probability"`
	RiskLevel      RiskLevel `json:"risk_level"`
	PredictionDate time.Time `json:"prediction_date"`
	ModelVersion   string    `json:"model_version"`
	FeaturesUsed   string    `json:"features_used,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Filter narrows prediction queries. An empty ModelVersion selects the
// latest generation run.
type Filter struct {
	RiskLevel      *RiskLevel
	MinProbability float64
	Bounds         *Bounds
	ModelVersion   string
	Limit          int
}

// TrainResult summarizes a completed training run.
type TrainResult struct {
	R2Score      float64 `json:"r2_score"`
	MSE          float64 `json:"mse"`
	ModelVersion string  `json:"model_version"`
	Samples      int     `json:"samples"`
}

// GenerateRequest selects the area and resolution of a prediction run. Zero
// values fall back to the configured region and default grid size.
type GenerateRequest struct {
	Bounds   Bounds
	GridSize float64
}

// GenerateSummary reports the outcome of one grid prediction run.
type GenerateSummary struct {
	ModelVersion   string    `json:"model_version"`
	PredictionDate time.Time `json:"prediction_date"`
	CellsEvaluated int       `json:"cells_evaluated"`
	Persisted      int       `json:"predictions_generated"`
	Discarded      int       `json:"below_threshold"`
}
