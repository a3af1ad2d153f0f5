// Package main is the entry point for the forgeline CLI.
package main

import (
	"os"

	"github.com/forgeline-io/forgeline/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
