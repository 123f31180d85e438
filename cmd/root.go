package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the stagehand application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "stagehand",
	Short: "Deploy and orchestrate playbooks of interdependent services",
	Long: `stagehand watches Playbook and Actor definitions (Kubernetes CRDs or
local YAML files) and drives every actor through its resolve, build, push
and deploy pipeline in dependency order, keeping the running workloads in
sync with their sources.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This is called from the main package to inject the build-time version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// It is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "stagehand version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
