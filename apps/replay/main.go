package main

import (
	"fmt"
	"os"

	cmds "github.com/evstack/ev-derive/apps/replay/cmd"
	derivecmd "github.com/evstack/ev-derive/pkg/cmd"
)

func main() {
	// Initiate the root command
	rootCmd := cmds.RootCmd

	// Add subcommands to the root command
	rootCmd.AddCommand(
		cmds.RunCmd,
		cmds.GenCmd,
		derivecmd.InitCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		// Print to stderr and exit with error
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
