// Package main is the entry point for the envboot CLI.
//
// envboot bootstraps an isolated Python environment for the project in the
// current directory (create it if absent, install requirements.txt) and then
// runs script.py inside it, exiting with the script's exit status.
package main

import (
	"os"

	"github.com/shinji-kodama/envboot/internal/cli"
)

// Build-time variables injected via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123 -X main.date=2026-10-18"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	os.Exit(cli.Execute(cli.NewRootCommand()))
}
