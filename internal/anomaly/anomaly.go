// Package anomaly implements the Anomaly Model: a compact isolation-forest
// style unsupervised estimator over per-node degree/volume features,
// min-max normalized across the batch into a 0-15 advisory bonus.
package anomaly

import (
	"math"
	"math/rand"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/hybrid-sentinel/sentinel/internal/graph"
	"github.com/hybrid-sentinel/sentinel/internal/stats"
)

const (
	numTrees     = 100
	subsampleSize = 256
	maxBonus     = 15.0
	randomSeed   = 42
)

// Result is the detector's output for one run.
type Result struct {
	Scores map[string]float64 // account -> bonus, 0-15
}

type featureVector struct {
	account string
	feats   [4]float64 // in_degree, out_degree, total_volume_in, total_volume_out
}

// node in an isolation tree.
type itreeNode struct {
	leaf      bool
	size      int // number of points at this leaf (external node)
	splitDim  int
	splitVal  float64
	left, right *itreeNode
}

// Detect fits an isolation forest over every node's feature vector and
// returns a min-max normalized 0-15 bonus per account. Advisory only —
// the composer never lets this fire a pattern on its own.
func Detect(g *graph.DirectedMultiGraph) (res Result) {
	res.Scores = make(map[string]float64)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("anomaly model: recovered, returning empty result")
			res.Scores = make(map[string]float64)
		}
	}()

	vectors := buildFeatureVectors(g)
	if len(vectors) == 0 {
		return res
	}

	rng := rand.New(rand.NewSource(randomSeed))
	sampleSize := subsampleSize
	if sampleSize > len(vectors) {
		sampleSize = len(vectors)
	}
	heightLimit := int(math.Ceil(math.Log2(float64(sampleSize))))

	trees := make([]*itreeNode, numTrees)
	for i := 0; i < numTrees; i++ {
		sample := sampleVectors(vectors, sampleSize, rng)
		trees[i] = buildTree(sample, 0, heightLimit, rng)
	}

	rawScores := make([]float64, len(vectors))
	for i, v := range vectors {
		total := 0.0
		for _, tr := range trees {
			total += pathLength(tr, v.feats, 0)
		}
		avgPath := total / float64(numTrees)
		c := averagePathLength(sampleSize)
		if c <= 0 {
			rawScores[i] = 0
			continue
		}
		rawScores[i] = math.Pow(2, -avgPath/c)
	}

	lo, hi := rawScores[0], rawScores[0]
	for _, s := range rawScores {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}

	for i, v := range vectors {
		res.Scores[v.account] = stats.MinMaxNormalize(rawScores[i], lo, hi, maxBonus)
	}

	return res
}

func buildFeatureVectors(g *graph.DirectedMultiGraph) []featureVector {
	ids := g.Nodes()
	vectors := make([]featureVector, 0, len(ids))
	for _, id := range ids {
		n := g.Node(id)
		totalIn, _ := n.TotalIn.Float64()
		totalOut, _ := n.TotalOut.Float64()
		vectors = append(vectors, featureVector{
			account: id,
			feats:   [4]float64{float64(n.InDegree), float64(n.OutDegree), totalIn, totalOut},
		})
	}
	return vectors
}

func sampleVectors(vectors []featureVector, n int, rng *rand.Rand) []featureVector {
	idx := rng.Perm(len(vectors))[:n]
	sort.Ints(idx) // deterministic ordering for a fixed seed/permutation
	out := make([]featureVector, n)
	for i, j := range idx {
		out[i] = vectors[j]
	}
	return out
}

// buildTree recursively partitions sample on a random feature/threshold
// until height limit or a single point remains (isolation forest).
func buildTree(sample []featureVector, depth, heightLimit int, rng *rand.Rand) *itreeNode {
	if depth >= heightLimit || len(sample) <= 1 {
		return &itreeNode{leaf: true, size: len(sample)}
	}

	dim := rng.Intn(4)
	lo, hi := sample[0].feats[dim], sample[0].feats[dim]
	for _, s := range sample {
		if s.feats[dim] < lo {
			lo = s.feats[dim]
		}
		if s.feats[dim] > hi {
			hi = s.feats[dim]
		}
	}
	if lo == hi {
		return &itreeNode{leaf: true, size: len(sample)}
	}

	splitVal := lo + rng.Float64()*(hi-lo)
	var left, right []featureVector
	for _, s := range sample {
		if s.feats[dim] < splitVal {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &itreeNode{leaf: true, size: len(sample)}
	}

	return &itreeNode{
		splitDim: dim,
		splitVal: splitVal,
		left:     buildTree(left, depth+1, heightLimit, rng),
		right:    buildTree(right, depth+1, heightLimit, rng),
	}
}

func pathLength(n *itreeNode, feats [4]float64, depth int) float64 {
	if n.leaf {
		return float64(depth) + averagePathLength(n.size)
	}
	if feats[n.splitDim] < n.splitVal {
		return pathLength(n.left, feats, depth+1)
	}
	return pathLength(n.right, feats, depth+1)
}

// averagePathLength is the c(n) normalization factor from Liu et al.'s
// isolation forest: the expected path length of an unsuccessful BST
// search over n points.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	const eulerGamma = 0.5772156649
	return 2*(math.Log(float64(n-1))+eulerGamma) - 2*float64(n-1)/float64(n)
}
