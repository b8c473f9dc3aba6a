package prediction

import "sort"

// treeNode is one node of a regression tree. The whole tree serializes to
// JSON so trained models survive a round trip through the artifact store.
type treeNode struct {
	Feature   int       `json:"feature,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Left      *treeNode `json:"left,omitempty"`
	Right     *treeNode `json:"right,omitempty"`
	Value     float64   `json:"value"`
	Leaf      bool      `json:"leaf"`
}

type treeParams struct {
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
}

// buildTree grows a CART regression tree over the given sample indices,
// splitting on the variance reduction criterion.
func buildTree(rows [][]float64, targets []float64, samples []int, p treeParams, depth int) *treeNode {
	mean, sse := meanSSE(targets, samples)
	if depth >= p.maxDepth || len(samples) < p.minSamplesSplit || sse <= 1e-12 {
		return &treeNode{Leaf: true, Value: mean}
	}

	feature, threshold, ok := bestSplit(rows, targets, samples, p.minSamplesLeaf, sse)
	if !ok {
		return &treeNode{Leaf: true, Value: mean}
	}

	left := make([]int, 0, len(samples))
	right := make([]int, 0, len(samples))
	for _, idx := range samples {
		if rows[idx][feature] <= threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}

	return &treeNode{
		Feature:   feature,
		Threshold: threshold,
		Value:     mean,
		Left:      buildTree(rows, targets, left, p, depth+1),
		Right:     buildTree(rows, targets, right, p, depth+1),
	}
}

// bestSplit scans every feature for the threshold minimizing the summed
// squared error of the two children. Each feature costs one sort plus a
// linear sweep with running sums.
func bestSplit(rows [][]float64, targets []float64, samples []int, minLeaf int, parentSSE float64) (int, float64, bool) {
	n := len(samples)
	numFeatures := len(rows[samples[0]])

	bestSSE := parentSSE - 1e-12
	bestFeature := -1
	bestThreshold := 0.0

	order := make([]int, n)
	for f := 0; f < numFeatures; f++ {
		copy(order, samples)
		sort.Slice(order, func(i, j int) bool { return rows[order[i]][f] < rows[order[j]][f] })

		var totalSum, totalSq float64
		for _, idx := range order {
			totalSum += targets[idx]
			totalSq += targets[idx] * targets[idx]
		}

		var leftSum, leftSq float64
		for i := 0; i < n-1; i++ {
			t := targets[order[i]]
			leftSum += t
			leftSq += t * t

			v := rows[order[i]][f]
			next := rows[order[i+1]][f]
			if v == next {
				continue
			}
			leftN := i + 1
			rightN := n - leftN
			if leftN < minLeaf || rightN < minLeaf {
				continue
			}

			leftSSE := leftSq - leftSum*leftSum/float64(leftN)
			rightSum := totalSum - leftSum
			rightSSE := (totalSq - leftSq) - rightSum*rightSum/float64(rightN)
			if total := leftSSE + rightSSE; total < bestSSE {
				bestSSE = total
				bestFeature = f
				bestThreshold = (v + next) / 2
			}
		}
	}

	if bestFeature < 0 {
		return 0, 0, false
	}
	return bestFeature, bestThreshold, true
}

func meanSSE(targets []float64, samples []int) (float64, float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sum, sq float64
	for _, idx := range samples {
		sum += targets[idx]
		sq += targets[idx] * targets[idx]
	}
	n := float64(len(samples))
	mean := sum / n
	return mean, sq - sum*sum/n
}

func (t *treeNode) predict(x []float64) float64 {
	node := t
	for !node.Leaf {
		if node.Left == nil || node.Right == nil {
			break
		}
		if x[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Value
}
