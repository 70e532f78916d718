// Command tidy organizes files according to categorization suggestions.
package main

import (
	"os"

	"github.com/kilupskalvis/tidy/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
