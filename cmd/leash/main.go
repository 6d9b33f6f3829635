// Package main is the entry point for the leash CLI.
package main

import (
	"os"

	"github.com/leash-dev/leash/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
