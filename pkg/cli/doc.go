// Package cli provides common utilities for the lmnt command-line tool.
//
// This package includes:
//   - Configuration management with kubectl-style contexts
//   - Output formatting (YAML, JSON, table) with jq queries
//   - Request file loading (YAML/JSON)
//   - Terminal styles for tables and summary panels
//
// Configuration is stored in ~/.lmnt/<app>/config.yaml.
//
// Example usage:
//
//	cfg, err := cli.LoadConfig("lmnt")
//	ctx, err := cfg.ResolveContext("")
//
//	cli.Output(voices, cli.OutputOptions{
//	    Format: cli.FormatJSON,
//	    Query:  ".[].id",
//	})
package cli
