package prediction

import "math/rand"

// Forest is a bagged ensemble of regression trees. Predictions are the mean
// over trees.
type Forest struct {
	Trees       []*treeNode `json:"trees"`
	NumFeatures int         `json:"num_features"`
}

// ForestConfig holds the ensemble hyperparameters.
type ForestConfig struct {
	Trees           int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Seed            int64
}

// TrainForest fits the ensemble. Each tree sees a bootstrap resample of the
// rows; the seed makes training deterministic for a given input.
func TrainForest(rows [][]float64, targets []float64, cfg ForestConfig) *Forest {
	rng := rand.New(rand.NewSource(cfg.Seed))
	params := treeParams{
		maxDepth:        cfg.MaxDepth,
		minSamplesSplit: cfg.MinSamplesSplit,
		minSamplesLeaf:  cfg.MinSamplesLeaf,
	}

	n := len(rows)
	forest := &Forest{
		Trees:       make([]*treeNode, 0, cfg.Trees),
		NumFeatures: len(rows[0]),
	}
	for t := 0; t < cfg.Trees; t++ {
		samples := make([]int, n)
		for i := range samples {
			samples[i] = rng.Intn(n)
		}
		forest.Trees = append(forest.Trees, buildTree(rows, targets, samples, params, 0))
	}
	return forest
}

// Predict returns the mean tree response for a feature vector.
func (f *Forest) Predict(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	var sum float64
	for _, tree := range f.Trees {
		sum += tree.predict(x)
	}
	return sum / float64(len(f.Trees))
}
