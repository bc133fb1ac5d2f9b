// Package main is the entry point for the m3uclean application.
package main

import (
	"os"

	"github.com/jmylchreest/m3uclean/cmd/m3uclean/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
