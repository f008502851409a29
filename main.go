// ./main.go
package main

import (
	"github.com/planopticon/planopticon/cmd"
)

// main is the entry point for the planopticon CLI.
func main() {
	// Execute the root command defined in the cmd package.
	// This handles all command-line parsing, configuration, and execution.
	cmd.Execute()
}
