// Package cli implements the sbikde command line tool.
package cli

import (
	"io"
	"os"
	"strings"

	"github.com/YuminosukeSato/sbikde/pkg/errors"
	"github.com/YuminosukeSato/sbikde/pkg/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gonum.org/v1/gonum/mat"
)

// EnvPrefix is prepended to every flag name to form its environment
// variable, e.g. SBIKDE_LOG_LEVEL.
const EnvPrefix = "SBIKDE"

// NewRootCommand builds the sbikde command tree writing results to out and
// logs to errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "sbikde",
		Short: "Conditional kernel density estimation for simulation-based inference",
		Long: "sbikde fits a Gaussian kernel density estimator on joint simulations and\n" +
			"evaluates or samples its conditional distributions.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return errors.Wrap(err, "binding flags")
			}
			if path := v.GetString("config"); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return errors.Wrapf(err, "reading config %s", path)
				}
			}
			return setupLogging(v, errOut)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (yaml, toml or json) with flag values")
	pf.String("log-level", "warn", "log level: debug, info, warn, error")
	pf.String("log-format", "console", "log format: console, json or slog")

	root.AddCommand(
		newFitCommand(v),
		newScoreCommand(v),
		newSampleCommand(v),
		newDemoCommand(v),
	)
	return root
}

func setupLogging(v *viper.Viper, errOut io.Writer) error {
	level, err := log.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return err
	}
	switch format := v.GetString("log-format"); format {
	case "console", "json":
		log.SetupZerolog(errOut, level, format == "console")
		return nil
	case "slog":
		return log.SetupLogger(errOut, v.GetString("log-level"))
	default:
		return errors.NewValidationError("log-format", "must be console, json or slog", format)
	}
}

// Execute runs the command tree on os.Args and returns the process exit code.
func Execute() int {
	root := NewRootCommand(os.Stdout, os.Stderr)
	if err := errors.SafeExecute("sbikde", root.Execute); err != nil {
		log.GetLogger().Error("command failed", err, log.ErrorCodeKey, log.ErrorCode(err))
		root.PrintErrln("Error:", err)
		return 1
	}
	return 0
}

// openOutput returns out for "" or "-", and a created file otherwise.
func openOutput(path string, out io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return out, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "creating %s", path)
	}
	return f, f.Close, nil
}

func readCSVFile(path string) (*mat.Dense, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	X, header, err := ReadCSV(f)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "reading %s", path)
	}
	return X, header, nil
}
