// Package main provides the entry point for the obsidian-tools CLI.
package main

import (
	"os"

	"github.com/glibalien/obsidian-tools-sub002/cmd/obsidian-tools/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
