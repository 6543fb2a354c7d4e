package posterior

import (
	"math"

	"github.com/YuminosukeSato/sbikde/core/model"
	"github.com/YuminosukeSato/sbikde/pkg/errors"
	"github.com/YuminosukeSato/sbikde/pkg/log"
	"gonum.org/v1/gonum/mat"
)

// Posterior evaluates log p(theta | x_1..x_n) from an estimator fitted on
// joint (theta, x) samples drawn from prior × simulator.
//
// Each observation gives a single-observation posterior p(theta | x_i) read
// directly off the estimator. For independent observations
//
//	p(theta | x_1..x_n) ∝ prod_i p(theta | x_i) / p(theta)^(n-1)
//
// so the prior is divided out n-1 times.
type Posterior struct {
	estimator   model.ConditionalScorer
	params      []string
	observables []string
	prior       Prior

	// columns[j] is the estimator column of params[j] (j < len(params)) or
	// of observables[j-len(params)]
	columns []int
	logger  log.Logger
}

// New wires a fitted estimator to a prior. params and observables must
// partition the estimator's features.
func New(est model.ConditionalScorer, params, observables []string, prior Prior) (*Posterior, error) {
	if est == nil {
		return nil, errors.NewValidationError("estimator", "must not be nil", nil)
	}
	if !est.IsFitted() {
		return nil, errors.NewNotFittedError("Posterior", "New")
	}
	if prior == nil {
		return nil, errors.NewValidationError("prior", "must not be nil", nil)
	}
	if prior.Dim() != len(params) {
		return nil, errors.NewShapeMismatchError("posterior.New", len(params), prior.Dim())
	}
	if len(params) == 0 || len(observables) == 0 {
		return nil, errors.NewValidationError("features", "need at least one parameter and one observable", nil)
	}

	features := est.Features()
	index := make(map[string]int, len(features))
	for i, f := range features {
		index[f] = i
	}
	used := make([]bool, len(features))
	columns := make([]int, 0, len(features))
	for _, name := range append(append([]string(nil), params...), observables...) {
		j, ok := index[name]
		if !ok {
			return nil, errors.NewInvalidConditioningError("posterior.New", observables, "unknown feature '"+name+"'")
		}
		if used[j] {
			return nil, errors.NewInvalidConditioningError("posterior.New", observables, "feature '"+name+"' listed twice")
		}
		used[j] = true
		columns = append(columns, j)
	}
	if len(columns) != len(features) {
		return nil, errors.NewValidationError("features", "params and observables must cover every estimator feature", features)
	}

	return &Posterior{
		estimator:   est,
		params:      append([]string(nil), params...),
		observables: append([]string(nil), observables...),
		prior:       prior,
		columns:     columns,
		logger:      log.GetLoggerWithName("posterior"),
	}, nil
}

// points lays out theta rows (M × |params|) next to the observable values x
// in estimator column order.
func (p *Posterior) points(theta mat.Matrix, x []float64) *mat.Dense {
	m, _ := theta.Dims()
	out := mat.NewDense(m, len(p.columns), nil)
	np := len(p.params)
	for i := 0; i < m; i++ {
		row := out.RawRowView(i)
		for j := 0; j < np; j++ {
			row[p.columns[j]] = theta.At(i, j)
		}
		for j, v := range x {
			row[p.columns[np+j]] = v
		}
	}
	return out
}

func (p *Posterior) checkTheta(op string, theta mat.Matrix) error {
	m, c := theta.Dims()
	if c != len(p.params) {
		return errors.NewShapeMismatchError(op, len(p.params), c)
	}
	if m == 0 {
		return errors.NewValidationError("theta", "need at least one row", m)
	}
	return nil
}

// LogLikelihood returns log p(x | theta_i) for every row of theta, the
// callback shape expected by nested samplers.
func (p *Posterior) LogLikelihood(theta mat.Matrix, x []float64) ([]float64, error) {
	const op = "Posterior.LogLikelihood"
	if err := p.checkTheta(op, theta); err != nil {
		return nil, err
	}
	if len(x) != len(p.observables) {
		return nil, errors.NewShapeMismatchError(op, len(p.observables), len(x))
	}
	out, err := p.estimator.ScoreSamples(p.points(theta, x), p.params)
	if err != nil {
		return nil, errors.Wrap(err, "scoring likelihood")
	}
	p.logger.Debug("Evaluated log-likelihood",
		log.OperationKey, log.OperationLogLikelihood,
		log.PointsKey, len(out),
	)
	return out, nil
}

// LogProb returns the unnormalised log posterior of every row of theta given
// all rows of observations (n × |observables|) as independent draws.
func (p *Posterior) LogProb(theta mat.Matrix, observations mat.Matrix) ([]float64, error) {
	const op = "Posterior.LogProb"
	if err := p.checkTheta(op, theta); err != nil {
		return nil, err
	}
	n, c := observations.Dims()
	if c != len(p.observables) {
		return nil, errors.NewShapeMismatchError(op, len(p.observables), c)
	}
	if n == 0 {
		return nil, errors.NewValidationError("observations", "need at least one row", n)
	}

	per := make([][]float64, n)
	x := make([]float64, c)
	for i := 0; i < n; i++ {
		mat.Row(x, i, observations)
		lp, err := p.estimator.ScoreSamples(p.points(theta, x), p.observables)
		if err != nil {
			return nil, errors.Wrapf(err, "scoring observation %d", i)
		}
		per[i] = lp
	}

	m, _ := theta.Dims()
	logPrior := make([]float64, m)
	row := make([]float64, len(p.params))
	for i := 0; i < m; i++ {
		mat.Row(row, i, theta)
		logPrior[i] = p.prior.LogProb(row)
	}

	out, err := Combine(per, logPrior)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("Evaluated log-posterior",
		log.OperationKey, log.OperationLogPosterior,
		log.PointsKey, m,
		log.SamplesKey, n,
	)
	return out, nil
}

// Combine merges single-observation log posteriors perObservation[i][k] =
// log p(theta_k | x_i) into log p(theta_k | x_1..x_n) up to a constant,
// dividing out the prior n-1 times. Outside the prior support the result is
// -Inf.
func Combine(perObservation [][]float64, logPrior []float64) ([]float64, error) {
	if len(perObservation) == 0 {
		return nil, errors.NewValidationError("observations", "need at least one observation", 0)
	}
	m := len(logPrior)
	for _, lp := range perObservation {
		if len(lp) != m {
			return nil, errors.NewShapeMismatchError("posterior.Combine", m, len(lp))
		}
	}

	extra := float64(len(perObservation) - 1)
	out := make([]float64, m)
	for k := 0; k < m; k++ {
		if math.IsInf(logPrior[k], -1) {
			out[k] = math.Inf(-1)
			continue
		}
		s := 0.0
		for _, lp := range perObservation {
			s += lp[k]
		}
		if extra > 0 {
			s -= extra * logPrior[k]
		}
		out[k] = s
	}
	return out, nil
}
