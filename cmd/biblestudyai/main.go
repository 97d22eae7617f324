// Package main provides the entry point for the biblestudyai CLI.
package main

import (
	"os"

	"github.com/AssetOverflow/BibleStudyAI/cmd/biblestudyai/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
