package kde

import "github.com/YuminosukeSato/sbikde/pkg/log"

// Option is a function that configures ConditionalKDE
type Option func(*ConditionalKDE)

// WithWhitening sets the whitening algorithm (default WhiteningRescale)
func WithWhitening(w Whitening) Option {
	return func(k *ConditionalKDE) {
		k.whitening = w
	}
}

// WithBandwidth sets the bandwidth selection (default Scott)
func WithBandwidth(b Bandwidth) Option {
	return func(k *ConditionalKDE) {
		k.bandwidth = b
	}
}

// WithRandomState seeds the fold shuffling of the bandwidth search and the
// default sampling source
func WithRandomState(seed uint64) Option {
	return func(k *ConditionalKDE) {
		k.seed = seed
	}
}

// WithNJobs sets the number of goroutines used by ScoreSamples (<= 0 for all cores)
func WithNJobs(n int) Option {
	return func(k *ConditionalKDE) {
		k.nJobs = n
	}
}

// WithLogger sets the logger (default log.GetLogger())
func WithLogger(l log.Logger) Option {
	return func(k *ConditionalKDE) {
		k.logger = l
	}
}
