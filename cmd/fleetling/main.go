package main

import (
	"os"

	"github.com/avoronin/fleetling/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
