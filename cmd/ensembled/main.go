// Package main implements the ensemble host daemon (ensembled), which runs an
// embedded coordination node configured from a native property file.
package main

import (
	"os"

	"github.com/concave-dev/ensemble/cmd/ensembled/commands"
)

func main() {
	commands.SetupCommands()
	if err := commands.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
