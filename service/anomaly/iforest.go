package anomaly

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/Go-routine-4595/edge-iot-sim/model"
	"gonum.org/v1/gonum/stat"
)

const (
	eulerGamma = 0.5772156649015329
	// DefaultRangeMargin is how far past the fitted range, as a fraction of
	// the range width, a coordinate may lie before it is flagged outright.
	DefaultRangeMargin = 0.5
)

// Model is a pluggable outlier detector fitted on normalised vectors.
type Model interface {
	Fit(X [][]float64) error
	// Decision returns a signed score (negative is more anomalous) and
	// whether x is an outlier.
	Decision(x []float64) (float64, bool, error)
}

// IsolationForest isolates points with random axis-aligned splits; points
// that isolate in few splits are outliers. The offset is calibrated so that
// Contamination of the training set falls below it.
//
// Splits are drawn inside the training range, so the forest alone cannot tell
// a point just past the edge from one far beyond it. Decision therefore also
// flags any coordinate further than RangeMargin range widths outside the
// fitted per-feature range, with a score that falls with the distance.
type IsolationForest struct {
	Trees         int
	MaxSamples    int
	Contamination float64
	RangeMargin   float64
	Seed          uint64

	roots  []*itreeNode
	psi    int
	offset float64
	lo, hi []float64
}

type itreeNode struct {
	feature     int
	split       float64
	left, right *itreeNode
	size        int
}

func NewIsolationForest(contamination float64, seed uint64) *IsolationForest {
	return &IsolationForest{
		Trees:         100,
		MaxSamples:    256,
		Contamination: contamination,
		RangeMargin:   DefaultRangeMargin,
		Seed:          seed,
	}
}

// Fit rebuilds the forest from X. The generator is reseeded on every call so
// the same X yields the same forest.
func (f *IsolationForest) Fit(X [][]float64) error {
	if len(X) < 2 {
		return model.ErrInsufficientData
	}
	if f.Contamination <= 0 || f.Contamination >= 0.5 {
		return errors.New("contamination must be in (0, 0.5)")
	}

	var (
		rng    = rand.New(rand.NewPCG(f.Seed, f.Seed^0x9e3779b97f4a7c15))
		psi    = min(f.MaxSamples, len(X))
		limit  = int(math.Ceil(math.Log2(float64(psi))))
		roots  = make([]*itreeNode, f.Trees)
		sample = make([][]float64, psi)
	)

	for t := range roots {
		for i, idx := range rng.Perm(len(X))[:psi] {
			sample[i] = X[idx]
		}
		roots[t] = buildITree(sample, 0, limit, rng)
	}
	f.roots = roots
	f.psi = psi
	f.lo, f.hi = featureRange(X)

	scores := make([]float64, len(X))
	for i, x := range X {
		scores[i] = f.scoreSample(x)
	}
	sort.Float64s(scores)
	f.offset = stat.Quantile(f.Contamination, stat.Empirical, scores, nil)
	return nil
}

func (f *IsolationForest) Decision(x []float64) (float64, bool, error) {
	if len(f.roots) == 0 {
		return 0, false, errors.New("isolation forest is not fitted")
	}
	if len(x) != len(f.lo) {
		return 0, false, errors.Join(model.ErrDegenerateData, errors.New("feature count differs from the fitted forest"))
	}
	d := f.scoreSample(x) - f.offset
	if excess := f.rangeExcess(x); excess > 0 {
		d = math.Min(d, -excess)
	}
	return d, d < 0, nil
}

// rangeExcess is the largest distance, in range widths beyond RangeMargin,
// by which a coordinate of x lies outside the fitted range. It is <= 0 for
// every training point.
func (f *IsolationForest) rangeExcess(x []float64) float64 {
	worst := math.Inf(-1)
	for i, v := range x {
		span := f.hi[i] - f.lo[i]
		if span == 0 {
			span = 1
		}
		out := math.Max(f.lo[i]-v, v-f.hi[i]) / span
		worst = math.Max(worst, out-f.RangeMargin)
	}
	return worst
}

func featureRange(X [][]float64) (lo, hi []float64) {
	lo = append([]float64(nil), X[0]...)
	hi = append([]float64(nil), X[0]...)
	for _, row := range X[1:] {
		for i, v := range row {
			lo[i] = math.Min(lo[i], v)
			hi[i] = math.Max(hi[i], v)
		}
	}
	return lo, hi
}

// scoreSample is the negated anomaly score: -2^(-E[h(x)]/c(psi)).
func (f *IsolationForest) scoreSample(x []float64) float64 {
	var depth float64
	for _, root := range f.roots {
		depth += pathLength(x, root, 0)
	}
	depth /= float64(len(f.roots))
	return -math.Pow(2, -depth/averagePathLength(f.psi))
}

func buildITree(X [][]float64, depth, limit int, rng *rand.Rand) *itreeNode {
	if depth >= limit || len(X) <= 1 {
		return &itreeNode{size: len(X)}
	}

	dims := len(X[0])
	for _, feature := range rng.Perm(dims) {
		lo, hi := X[0][feature], X[0][feature]
		for _, row := range X[1:] {
			lo = math.Min(lo, row[feature])
			hi = math.Max(hi, row[feature])
		}
		if lo == hi {
			continue
		}

		split := lo + (hi-lo)*rng.Float64()
		var left, right [][]float64
		for _, row := range X {
			if row[feature] < split {
				left = append(left, row)
			} else {
				right = append(right, row)
			}
		}
		return &itreeNode{
			feature: feature,
			split:   split,
			left:    buildITree(left, depth+1, limit, rng),
			right:   buildITree(right, depth+1, limit, rng),
		}
	}
	return &itreeNode{size: len(X)}
}

func pathLength(x []float64, n *itreeNode, depth int) float64 {
	for n.left != nil {
		if x[n.feature] < n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return float64(depth) + averagePathLength(n.size)
}

// averagePathLength is c(n), the mean path length of an unsuccessful BST search.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}
