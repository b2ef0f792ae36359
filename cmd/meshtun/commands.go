package main

import "github.com/spf13/cobra"

// registerCommands wires every subcommand into rootCmd. Split out from
// main.go so adding a subcommand never touches the entry point.
func registerCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(versionCmd)
}
