package kde

import (
	"math"

	"github.com/YuminosukeSato/sbikde/core/parallel"
	"github.com/YuminosukeSato/sbikde/crossval"
	"github.com/YuminosukeSato/sbikde/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Search grid bounds relative to Scott's rule.
const (
	gridLowerFactor = 0.05
	gridUpperFactor = 2.0
)

// scottBandwidth returns Scott's rule h = n^(-1/(d+4)) in whitened units.
func scottBandwidth(n, d int) float64 {
	return math.Pow(float64(n), -1/float64(d+4))
}

// bandwidthGrid returns steps log-spaced candidates around Scott's rule in
// ascending order.
func bandwidthGrid(n, d, steps int) []float64 {
	hs := scottBandwidth(n, d)
	if steps == 1 {
		return []float64{hs}
	}
	return floats.LogSpan(make([]float64, steps), gridLowerFactor*hs, gridUpperFactor*hs)
}

type searchResult struct {
	candidates []float64
	scores     []float64
	bestIdx    int
	best       float64
	bestScore  float64
}

// onBoundary reports whether the winner is the first or last of more than
// one candidate.
func (r *searchResult) onBoundary() bool {
	return len(r.candidates) > 1 && (r.bestIdx == 0 || r.bestIdx == len(r.candidates)-1)
}

// heldOut is one test point of one fold.
type heldOut struct {
	fold  int
	point int
}

// searchBandwidth scores every grid candidate by K-fold cross-validated mean
// log-likelihood of an isotropic Gaussian KDE on the whitened samples Z.
func searchBandwidth(Z *mat.Dense, b Bandwidth, seed uint64) (*searchResult, error) {
	n, d := Z.Dims()
	candidates := bandwidthGrid(n, d, b.steps)

	folds, err := crossval.NewKFold(b.cvFolds, true, seed).Split(n)
	if err != nil {
		return nil, err
	}

	var items []heldOut
	for f, fold := range folds {
		for _, i := range fold.TestIndices {
			items = append(items, heldOut{fold: f, point: i})
		}
	}

	halfInvVar := make([]float64, len(candidates))
	logKernelNorm := make([]float64, len(candidates))
	for c, h := range candidates {
		halfInvVar[c] = 0.5 / (h * h)
		logKernelNorm[c] = -0.5 * float64(d) * math.Log(2*math.Pi*h*h)
	}

	// slots[item*len(candidates)+c] is the held-out log density of one point.
	slots := make([]float64, len(items)*len(candidates))
	parallel.ParallelizeN(parallel.Workers(b.nJobs), len(items), func(start, end int) {
		dist := make([]float64, 0, n)
		terms := make([]float64, 0, n)
		for it := start; it < end; it++ {
			fold := folds[items[it].fold]
			z := Z.RawRowView(items[it].point)
			dist = dist[:0]
			for _, j := range fold.TrainIndices {
				dist = append(dist, sqDist(z, Z.RawRowView(j)))
			}
			logTrain := math.Log(float64(len(fold.TrainIndices)))
			terms = terms[:len(dist)]
			for c := range candidates {
				for j, d2 := range dist {
					terms[j] = -d2 * halfInvVar[c]
				}
				slots[it*len(candidates)+c] = floats.LogSumExp(terms) + logKernelNorm[c] - logTrain
			}
		}
	})

	scores := make([]float64, len(candidates))
	foldSums := make([]float64, len(candidates))
	it := 0
	for _, fold := range folds {
		for c := range foldSums {
			foldSums[c] = 0
		}
		for range fold.TestIndices {
			for c := range candidates {
				foldSums[c] += slots[it*len(candidates)+c]
			}
			it++
		}
		for c := range candidates {
			scores[c] += foldSums[c] / float64(len(fold.TestIndices))
		}
	}
	for c := range scores {
		scores[c] /= float64(len(folds))
	}

	bestIdx := selectBest(scores)
	if math.IsInf(scores[bestIdx], -1) || math.IsNaN(scores[bestIdx]) {
		return nil, errors.NewModelError("ConditionalKDE.Fit", "bandwidth search produced no finite score", errors.New("all cross-validation scores are -Inf or NaN"))
	}
	return &searchResult{
		candidates: candidates,
		scores:     scores,
		bestIdx:    bestIdx,
		best:       candidates[bestIdx],
		bestScore:  scores[bestIdx],
	}, nil
}

// selectBest returns the index of the largest score. Candidates are ascending,
// so keeping the first maximum prefers the smaller bandwidth. NaN never wins.
func selectBest(scores []float64) int {
	best := 0
	bestScore := math.Inf(-1)
	for c, s := range scores {
		if math.IsNaN(s) {
			continue
		}
		if s > bestScore {
			best, bestScore = c, s
		}
	}
	return best
}
