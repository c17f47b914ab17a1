// Package model defines the domain types and value objects for the
// envboot CLI.
//
// This package contains pure data structures with no external dependencies.
// The only persistent thing envboot knows about is the environment
// directory on disk; everything here (Runtime, PullPolicy, Requirement,
// EnvInfo) is a transient, per-run representation.
//
// The package also defines exit codes (ExitCode), a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling,
// and ExitError, which carries a launched program's exit status back to
// the CLI layer unchanged.
package model
