// Command mchgeo builds and serves the muon chamber detection element
// geometry.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/banshee-data/mchgeo/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
