package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"stagehand/internal/app"
)

// serveDebug enables verbose logging across the application.
var serveDebug bool

// serveConfigPath specifies a custom configuration directory path.
// When set, config.yaml is loaded from this directory instead of the
// per-user configuration directory.
var serveConfigPath string

// serveMode overrides the configured watch mode.
var serveMode string

// servePath overrides the configured base directory for filesystem mode.
var servePath string

// serveCmd defines the serve command structure. This is the main command of
// stagehand: it starts the controller and blocks until terminated.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the stagehand controller",
	Long: `Starts the stagehand controller.

The controller watches Playbook and Actor definitions and reconciles every
playbook: it resolves the actors' sources and dependency order, builds and
pushes images, deploys workloads, and live-syncs or restarts running actors
when their sources change.

Two backends are supported:

1. Kubernetes mode:
   - Playbooks and Actors are CRDs, watched through informers.
   - Build jobs, deployments and events are created in the cluster.

2. Filesystem mode:
   - Definitions are YAML files under the watch path, watched with fsnotify.
   - Useful for local development without a cluster.

By default the backend is auto-detected: Kubernetes when a cluster with the
stagehand CRDs is reachable, filesystem otherwise.

Configuration:
  stagehand loads config.yaml from the per-user configuration directory.
  Use --config-path to load it from another directory instead. The --mode
  and --path flags override the configured watch settings.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// runServe is the main entry point for the serve command
func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(serveDebug, serveConfigPath, serveMode, servePath)

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveConfigPath, "config-path", "", "Custom configuration directory path")
	serveCmd.Flags().StringVar(&serveMode, "mode", "", "Watch mode: auto, kubernetes or filesystem (overrides config)")
	serveCmd.Flags().StringVar(&servePath, "path", "", "Base directory for filesystem mode (overrides config)")
}
