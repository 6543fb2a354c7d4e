// Command sbikde fits, evaluates and samples conditional kernel density
// estimators from the command line.
package main

import (
	"os"

	"github.com/YuminosukeSato/sbikde/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
