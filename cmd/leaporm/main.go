// Package main is the leaporm command-line entry point.
package main

import (
	"os"

	"github.com/leapstack-labs/leaporm/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
