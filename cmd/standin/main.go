// Package main is the entry point for the standin CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/standinhq/standin/cmd/standin/commands"
)

// version is injected at build time via ldflags.
var version = "dev"

func main() {
	// A missing .env file is fine; env vars still apply.
	_ = godotenv.Load()

	rootCmd := commands.NewRootCmd(version)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
