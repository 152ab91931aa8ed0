package main

import (
	"os"

	"github.com/beamspace/beam/cmd/beam/commands"
)

// version is set through ldflags by the release pipeline.
var version = "v0.0.0-dev"

func main() {
	if err := commands.Root(version).Execute(); err != nil {
		os.Exit(1)
	}
}
