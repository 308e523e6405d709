package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sker/internal/app"
	"sker/internal/transport"
)

// serveHomeDir is the directory holding config/ and plugins/
// subdirectories. Defaults to a "sker" directory inside the user config
// directory.
var serveHomeDir string

// serveConfigPath, when set, loads a single config file instead of the
// layered config/ directory under the home directory.
var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the plugin host and serve MCP over stdio or HTTP",
	Long: `Starts the engine: discovers and loads plugins under <home>/plugins,
installs the tools, resources, and prompts they declare into the
registry, and serves them over the Model Context Protocol using the
transport configured in <home>/config/app.yaml (stdio by default).

Runs until interrupted (SIGINT/SIGTERM), then shuts down every loaded
plugin in reverse load order.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	homeDir := serveHomeDir
	if homeDir == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("serve: resolve default home directory: %w", err)
		}
		homeDir = dir + "/sker"
	}

	application, err := app.NewApplication(app.Options{
		HomeDir:       homeDir,
		ConfigPath:    serveConfigPath,
		EngineVersion: GetVersion(),
	})
	if err != nil {
		return fmt.Errorf("serve: initialize application: %w", err)
	}
	defer application.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("serve: start application: %w", err)
	}

	snap := application.Config().Get()
	srv := transport.NewServer(snap.Server.Name, snap.Server.Version, application.Dispatcher(), application.Registry(), application.Logger())
	if err := srv.Start(ctx, snap.Server.Transport); err != nil {
		_ = application.Stop(ctx)
		return fmt.Errorf("serve: start transport: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "sker serving over %s\n", snap.Server.Transport.Type)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	stopCtx := context.Background()
	if err := srv.Stop(stopCtx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "serve: transport shutdown error: %v\n", err)
	}
	return application.Stop(stopCtx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHomeDir, "home", "", "Home directory holding config/ and plugins/ (default: <user config dir>/sker)")
	serveCmd.Flags().StringVar(&serveConfigPath, "config-path", "", "Load a single config file instead of the layered config/ directory")
}
