package anomaly

import (
	"math"
	"math/rand"
)

// Isolation forest over axis-aligned random splits. Points that isolate in
// few splits sit far from the bulk of the batch; their average path length
// across the ensemble is short.

type forest struct {
	trees      []*treeNode
	sampleSize int
}

type treeNode struct {
	// internal node
	splitAttr  int
	splitValue float64
	left       *treeNode
	right      *treeNode
	// external node
	size int
	leaf bool
}

// buildForest fits numTrees isolation trees, each on a subsample of the
// data drawn without replacement. All randomness flows from rng.
func buildForest(data [][]float64, numTrees, sampleSize int, rng *rand.Rand) *forest {
	if sampleSize > len(data) {
		sampleSize = len(data)
	}
	heightLimit := int(math.Ceil(math.Log2(float64(sampleSize)))) + 1

	trees := make([]*treeNode, 0, numTrees)
	for t := 0; t < numTrees; t++ {
		perm := rng.Perm(len(data))
		sample := make([][]float64, 0, sampleSize)
		for _, idx := range perm[:sampleSize] {
			sample = append(sample, data[idx])
		}
		trees = append(trees, buildTree(sample, 0, heightLimit, rng))
	}
	return &forest{trees: trees, sampleSize: sampleSize}
}

func buildTree(sample [][]float64, depth, heightLimit int, rng *rand.Rand) *treeNode {
	if depth >= heightLimit || len(sample) <= 1 {
		return &treeNode{leaf: true, size: len(sample)}
	}

	attr, lo, hi, ok := pickSplitAttr(sample, rng)
	if !ok {
		// Every remaining column is constant; the points are indistinguishable.
		return &treeNode{leaf: true, size: len(sample)}
	}

	split := lo + rng.Float64()*(hi-lo)
	var left, right [][]float64
	for _, row := range sample {
		if row[attr] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &treeNode{leaf: true, size: len(sample)}
	}

	return &treeNode{
		splitAttr:  attr,
		splitValue: split,
		left:       buildTree(left, depth+1, heightLimit, rng),
		right:      buildTree(right, depth+1, heightLimit, rng),
	}
}

// pickSplitAttr draws a random attribute among those with spread in this
// node's sample. The random draw order depends only on rng state, keeping
// tree construction deterministic for a fixed seed.
func pickSplitAttr(sample [][]float64, rng *rand.Rand) (attr int, lo, hi float64, ok bool) {
	width := len(sample[0])
	candidates := make([]int, 0, width)
	for a := 0; a < width; a++ {
		min, max := columnRange(sample, a)
		if max > min {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return 0, 0, 0, false
	}
	attr = candidates[rng.Intn(len(candidates))]
	lo, hi = columnRange(sample, attr)
	return attr, lo, hi, true
}

func columnRange(sample [][]float64, attr int) (min, max float64) {
	min, max = sample[0][attr], sample[0][attr]
	for _, row := range sample[1:] {
		v := row[attr]
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// pathLength traverses one tree and returns the depth at which the point
// externalizes, adjusted by the expected subtree depth at the leaf.
func (n *treeNode) pathLength(point []float64, depth float64) float64 {
	if n.leaf {
		return depth + avgPathLength(float64(n.size))
	}
	if point[n.splitAttr] < n.splitValue {
		return n.left.pathLength(point, depth+1)
	}
	return n.right.pathLength(point, depth+1)
}

// score returns the isolation score s(x, n) in (0, 1]; values near 1 mean
// the point isolates quickly.
func (f *forest) score(point []float64) float64 {
	total := 0.0
	for _, tree := range f.trees {
		total += tree.pathLength(point, 0)
	}
	avg := total / float64(len(f.trees))

	c := avgPathLength(float64(f.sampleSize))
	if c == 0 {
		return 0
	}
	return math.Exp2(-avg / c)
}

const eulerMascheroni = 0.5772156649

// avgPathLength is c(n), the expected path length of an unsuccessful BST
// search over n points.
func avgPathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	h := math.Log(n-1) + eulerMascheroni
	return 2*h - 2*(n-1)/n
}
