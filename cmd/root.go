package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments, startup failure).
	ExitCodeError = 1
)

// rootCmd represents the base command for the engine binary.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sker",
	Short: "Run a pluggable MCP tool host",
	Long: `sker loads plugins from a configured directory, installs the tools,
resources, and prompts they declare into a shared registry, and serves
them over the Model Context Protocol via stdio or HTTP.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the
// application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application. It is called by
// main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "sker version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ExitCodeError)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
