package main

import (
	"os"

	"github.com/dyluth/streams/cmd/streams/commands"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := commands.NewRootCmd()
	commands.SetVersionInfo(root, version, commit, date)

	// Errors are printed directly by the printer package with color formatting
	if err := commands.Execute(root); err != nil {
		os.Exit(1)
	}
}
