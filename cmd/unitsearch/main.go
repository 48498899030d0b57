// Package main provides the entry point for the unitsearch CLI.
package main

import (
	"os"

	"github.com/needledetector/unit-search/cmd/unitsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
