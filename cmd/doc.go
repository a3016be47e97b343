// Package cmd implements the command-line interface of the terminology
// knowledge store. Every command opens the store directory given by --data-dir
// (or TKS_DATA_DIR), runs and closes the store again, so the usual startup
// work (index rebuild, stamp recovery) happens on every invocation.
//
// The package is organized into several subpackages:
//
//   - inspect: Read-only commands (info, get, latest, scan, stats)
//   - repair: Commands that change a store (recover, erase, import)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See tks -help for a list of all commands.
package cmd
