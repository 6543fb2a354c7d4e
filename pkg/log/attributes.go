// Standard attribute keys for estimator logging. Keys follow a hierarchical
// naming convention ("model.name", "data.samples") so records from different
// components can be filtered together.

package log

import "github.com/YuminosukeSato/sbikde/pkg/errors"

// Model and Operation Context
const (
	// ModelNameKey identifies the estimator type, e.g. "ConditionalKDE".
	ModelNameKey = "model.name"

	// EstimatorIDKey is a unique identifier for a specific estimator instance.
	EstimatorIDKey = "estimator.id"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "score_samples", "sample", "bandwidth_search"
	OperationKey = "ml.operation"

	// ComponentKey identifies the package performing the operation.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of model lifecycle.
	PhaseKey = "ml.phase"
)

// Data Shape
const (
	// SamplesKey is the number of rows in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey is the number of features (columns) in the dataset.
	FeaturesKey = "data.features"

	// FeatureNamesKey lists the fitted feature names.
	FeatureNamesKey = "data.feature_names"

	// ConditioningKey lists the conditioning feature names of a query.
	ConditioningKey = "data.conditioning"

	// PointsKey is the number of query points or requested draws.
	PointsKey = "data.points"
)

// Kernel density configuration
const (
	// WhiteningKey is the whitening algorithm ("none", "rescale", "zca").
	WhiteningKey = "kde.whitening"

	// BandwidthKey is the resolved bandwidth in whitened units.
	BandwidthKey = "kde.bandwidth"

	// BandwidthModeKey is the bandwidth selection mode ("scott", "fixed", "optimized").
	BandwidthModeKey = "kde.bandwidth_mode"

	// StepsKey is the number of bandwidth candidates searched.
	StepsKey = "kde.steps"

	// CVFoldsKey is the number of cross-validation folds.
	CVFoldsKey = "kde.cv_folds"

	// CVScoreKey is the mean held-out log-likelihood of the selected bandwidth.
	CVScoreKey = "kde.cv_score"

	// NJobsKey is the degree of parallelism used.
	NJobsKey = "kde.n_jobs"
)

// Performance
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"
)

// Error Context
const (
	// ErrorCodeKey provides a structured error code for programmatic handling.
	ErrorCodeKey = "error.code"

	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"
)

// Standard attribute values.
const (
	OperationFit             = "fit"
	OperationScoreSamples    = "score_samples"
	OperationSample          = "sample"
	OperationBandwidthSearch = "bandwidth_search"
	OperationLogPosterior    = "log_posterior"
	OperationLogLikelihood   = "log_likelihood"

	PhaseTraining  = "training"
	PhaseInference = "inference"

	ErrorNotFitted           = "NOT_FITTED"
	ErrorShapeMismatch       = "SHAPE_MISMATCH"
	ErrorDegenerateInput     = "DEGENERATE_INPUT"
	ErrorInvalidConditioning = "INVALID_CONDITIONING"
	ErrorInvalidInput        = "INVALID_INPUT"
	ErrorInternal            = "INTERNAL"
)

// ErrorCode maps an error to one of the Error* codes above.
func ErrorCode(err error) string {
	var (
		notFitted    *errors.NotFittedError
		shape        *errors.ShapeMismatchError
		degenerate   *errors.DegenerateInputError
		conditioning *errors.InvalidConditioningError
		validation   *errors.ValidationError
		numerical    *errors.NumericalInstabilityError
	)
	switch {
	case errors.As(err, &notFitted):
		return ErrorNotFitted
	case errors.As(err, &shape):
		return ErrorShapeMismatch
	case errors.As(err, &degenerate):
		return ErrorDegenerateInput
	case errors.As(err, &conditioning):
		return ErrorInvalidConditioning
	case errors.As(err, &validation), errors.As(err, &numerical):
		return ErrorInvalidInput
	default:
		return ErrorInternal
	}
}
