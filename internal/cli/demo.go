package cli

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/YuminosukeSato/sbikde/dataset"
	"github.com/YuminosukeSato/sbikde/kde"
	"github.com/YuminosukeSato/sbikde/metrics"
	"github.com/YuminosukeSato/sbikde/pkg/errors"
	"github.com/YuminosukeSato/sbikde/pkg/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gonum.org/v1/gonum/mat"
)

func newDemoCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Fit the bimodal mixture and compare with its exact conditional density",
		Long: "Demo samples N([0,-5], diag(1,5)) + N([10,5], diag(5,1)), fits an estimator\n" +
			"and prints p(x | y) next to the exact mixture value for a few y.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := estimatorOptions(v)
			if err != nil {
				return err
			}
			g := dataset.Bimodal()
			seed := v.GetUint64("seed")
			X, err := g.SampleEach(rand.New(rand.NewPCG(seed, seed)), v.GetInt("per-component"))
			if err != nil {
				return err
			}

			est, err := kde.New(opts...)
			if err != nil {
				return err
			}
			start := time.Now()
			if err := est.Fit(X, g.Features); err != nil {
				return err
			}
			logger := log.GetLoggerWithName("demo")
			logger.Info("Demo estimator fitted",
				log.BandwidthKey, est.Bandwidth(),
				log.DurationMsKey, time.Since(start).Milliseconds(),
			)

			xs, err := floatSlice(v, "x")
			if err != nil {
				return err
			}
			ys, err := floatSlice(v, "y")
			if err != nil {
				return err
			}
			var logKDE, logExact []float64
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintf(tw, "%s\n", est)
			fmt.Fprintln(tw, "y\tx\tkde p(x|y)\texact p(x|y)\t")
			for _, y := range ys {
				P := mat.NewDense(len(xs), 2, nil)
				for i, x := range xs {
					P.Set(i, 0, x)
					P.Set(i, 1, y)
				}
				logp, err := est.ScoreSamples(P, []string{"y"})
				if err != nil {
					return err
				}
				for i, x := range xs {
					exact, err := g.ConditionalLogProb([]float64{x, y}, []string{"y"})
					if err != nil {
						return err
					}
					fmt.Fprintf(tw, "%.3g\t%.3g\t%.4g\t%.4g\t\n", y, x, math.Exp(logp[i]), math.Exp(exact))
					logKDE = append(logKDE, logp[i])
					logExact = append(logExact, exact)
				}
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			mae, err := metrics.MAE(logExact, logKDE)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "mean |log error| = %.4g\n", mae)
			return err
		},
	}
	addEstimatorFlags(cmd)
	cmd.Flags().Int("per-component", 10000, "samples drawn from each mixture component")
	cmd.Flags().StringSlice("y", []string{"-5", "1.72", "5"}, "conditioning values of y")
	cmd.Flags().StringSlice("x", []string{"-2", "0", "2", "5", "8", "10", "12"}, "points of x to evaluate")
	return cmd
}

func floatSlice(v *viper.Viper, key string) ([]float64, error) {
	raw := v.GetStringSlice(key)
	if len(raw) == 0 {
		return nil, errors.NewValidationError(key, "need at least one value", nil)
	}
	out := make([]float64, len(raw))
	for i, r := range raw {
		f, err := strconv.ParseFloat(r, 64)
		if err != nil {
			return nil, errors.NewValidationError(key, "value is not a number", r)
		}
		out[i] = f
	}
	return out, nil
}
