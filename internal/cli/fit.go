package cli

import (
	"fmt"

	"github.com/YuminosukeSato/sbikde/core/model"
	"github.com/YuminosukeSato/sbikde/kde"
	"github.com/YuminosukeSato/sbikde/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// estimatorOptions builds kde options from the whitening, bandwidth and
// search flags.
func estimatorOptions(v *viper.Viper) ([]kde.Option, error) {
	w, err := kde.ParseWhitening(v.GetString("whitening"))
	if err != nil {
		return nil, err
	}
	b, err := kde.ParseBandwidth(v.GetString("bandwidth"))
	if err != nil {
		return nil, err
	}
	nJobs := v.GetInt("n-jobs")
	b = b.WithSearch(v.GetInt("steps"), v.GetInt("cv-folds"), nJobs)
	return []kde.Option{
		kde.WithWhitening(w),
		kde.WithBandwidth(b),
		kde.WithNJobs(nJobs),
		kde.WithRandomState(v.GetUint64("seed")),
	}, nil
}

func addEstimatorFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("whitening", "rescale", "whitening: none, rescale or zca")
	f.String("bandwidth", "scott", `bandwidth: "scott", "optimized" or a positive number`)
	f.Int("steps", kde.DefaultSteps, "number of bandwidth candidates for --bandwidth optimized")
	f.Int("cv-folds", kde.DefaultCVFolds, "cross-validation folds for --bandwidth optimized")
	f.Int("n-jobs", -1, "worker goroutines, <= 0 for one per CPU")
	f.Uint64("seed", 0, "random seed for fold assignment and sampling")
}

func newFitCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit an estimator on a CSV of joint samples",
		Long: "Fit reads a CSV whose header names the features and writes the fitted\n" +
			"estimator to --output.",
		Example: "  sbikde fit --input sims.csv --output model.gob --whitening zca --bandwidth optimized",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, output := v.GetString("input"), v.GetString("output")
			if input == "" || output == "" {
				return errors.NewValidationError("input/output", "both --input and --output are required", nil)
			}
			opts, err := estimatorOptions(v)
			if err != nil {
				return err
			}
			X, features, err := readCSVFile(input)
			if err != nil {
				return err
			}
			est, err := kde.New(opts...)
			if err != nil {
				return err
			}
			if err := est.Fit(X, features); err != nil {
				return err
			}
			if err := model.SaveModel(est, output); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), est)
			return nil
		},
	}
	cmd.Flags().StringP("input", "i", "", "CSV of joint samples with a header row")
	cmd.Flags().StringP("output", "o", "", "path of the fitted model")
	addEstimatorFlags(cmd)
	return cmd
}

func loadEstimator(path string) (*kde.ConditionalKDE, error) {
	if path == "" {
		return nil, errors.NewValidationError("model", "--model is required", nil)
	}
	est := &kde.ConditionalKDE{}
	if err := model.LoadModel(est, path); err != nil {
		return nil, err
	}
	if !est.IsFitted() {
		return nil, errors.NewNotFittedError("ConditionalKDE", "load")
	}
	return est, nil
}
