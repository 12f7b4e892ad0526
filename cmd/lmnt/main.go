// Package main provides the LMNT CLI tool.
//
// Usage:
//
//	lmnt [flags] <service> <command> [args]
//
// Services:
//
//	speech   - Speech synthesis (one-shot, streaming, conversion)
//	voice    - Voice management
//	account  - Plan and usage
//	config   - Configuration management
//
// Configuration:
//
//	The CLI stores configuration in ~/.lmnt/lmnt/
//	Use 'lmnt config' commands to manage contexts.
package main

import (
	"os"

	"github.com/lmnt-com/lmnt-go/cmd/lmnt/commands"
	"github.com/lmnt-com/lmnt-go/pkg/cli"
)

func main() {
	if err := commands.Execute(); err != nil {
		cli.PrintError("%v", err)
		os.Exit(1)
	}
}
