package main

import (
	"context"
	"os"

	"github.com/ironsheep/artgrid/internal/cli"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cli.SetVersion(Version, GitCommit, BuildTime)
	if err := cli.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
