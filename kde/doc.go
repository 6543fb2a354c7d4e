// Package kde implements a conditional Gaussian kernel density estimator.
//
// A ConditionalKDE is fitted once on joint samples of named features. Any
// proper subset of the features can then be fixed at query time:
// ScoreSamples returns the exact log density of the remaining features
// given the fixed ones, and Sample draws from that conditional distribution.
//
// Kernels are isotropic with width h in a whitened space (see package
// preprocessing). In the original coordinates every kernel is a Gaussian
// with covariance h²Σ, so conditioning reduces to closed-form Gaussian
// conditioning of each kernel followed by reweighting the kernels by their
// marginal density at the conditioning values.
//
// The bandwidth h is given directly, taken from Scott's rule, or found by a
// K-fold cross-validated likelihood search:
//
//	est, err := kde.New(
//	    kde.WithWhitening(kde.WhiteningZCA),
//	    kde.WithBandwidth(kde.Optimized(10, 5, -1)),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := est.Fit(X, []string{"theta", "x"}); err != nil {
//	    return err
//	}
//	logp, err := est.ScoreSamples(points, []string{"x"})
//
// A fitted estimator is safe for concurrent queries and can be persisted
// with model.SaveModel.
package kde
