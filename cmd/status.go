package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"stagehand/internal/client"
	"stagehand/internal/config"
	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
)

var (
	statusConfigPath string
	statusMode       string
	statusPath       string
	statusPlaybook   string
	statusWatch      bool
	statusInterval   time.Duration
)

// statusCmd shows the current stage of every actor, grouped by playbook.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show playbook and actor stages",
	Long: `Shows every playbook with its phase and every actor with its current
pipeline stage, consumed retries and last error.

Reads the same backend the controller uses: the Kubernetes CRDs when a
cluster is reachable, the filesystem YAML records otherwise.

Examples:
  stagehand status                     # One-shot status of all playbooks
  stagehand status --playbook demo     # Only the demo playbook
  stagehand status --watch             # Refresh continuously`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	configPath := statusConfigPath
	if configPath == "" {
		configPath = config.GetDefaultConfigPathOrPanic()
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	mode := cfg.Watch.Mode
	if statusMode != "" {
		mode = statusMode
	}
	path := cfg.Watch.Path
	if statusPath != "" {
		path = statusPath
	}

	stageClient, err := client.NewStageClientWithConfig(&client.StageClientConfig{
		FilesystemPath:      path,
		ForceFilesystemMode: mode == config.WatchModeFilesystem,
	})
	if err != nil {
		return fmt.Errorf("failed to create stage client: %w", err)
	}
	defer stageClient.Close()

	if !statusWatch {
		return printStatus(ctx, stageClient, cmd.OutOrStdout())
	}

	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	sp.Suffix = " refreshing"

	for {
		sp.Start()
		// Clear the screen between refreshes so the table stays in place.
		fmt.Fprint(cmd.OutOrStdout(), "\033[H\033[2J")
		err := printStatus(ctx, stageClient, cmd.OutOrStdout())
		sp.Stop()
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(statusInterval):
		}
	}
}

// printStatus renders one status table for all (or one) playbooks.
func printStatus(ctx context.Context, stageClient client.StageClient, out io.Writer) error {
	playbooks, err := stageClient.ListPlaybooks(ctx)
	if err != nil {
		return fmt.Errorf("failed to list playbooks: %w", err)
	}
	actors, err := stageClient.ListActors(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to list actors: %w", err)
	}

	sort.Slice(playbooks, func(i, j int) bool { return playbooks[i].Name < playbooks[j].Name })
	sort.Slice(actors, func(i, j int) bool { return actors[i].Spec.Name < actors[j].Spec.Name })

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Playbook", "Phase", "Actor", "Stage", "Retries", "Error"})

	shown := 0
	for i := range playbooks {
		playbook := &playbooks[i]
		if statusPlaybook != "" && playbook.Name != statusPlaybook {
			continue
		}
		shown++

		rows := 0
		for j := range actors {
			actor := &actors[j]
			if actor.Spec.Playbook != playbook.Name {
				continue
			}
			t.AppendRow(table.Row{
				playbook.Name,
				phaseOrPending(playbook),
				actor.Spec.Name,
				stageOrPending(actor),
				actor.Status.RetryCount,
				actor.Status.LastError,
			})
			rows++
		}
		if rows == 0 {
			t.AppendRow(table.Row{playbook.Name, phaseOrPending(playbook), "", "", "", ""})
		}
		t.AppendSeparator()
	}

	if statusPlaybook != "" && shown == 0 {
		return fmt.Errorf("playbook %q not found", statusPlaybook)
	}
	if shown == 0 {
		fmt.Fprintln(out, "No playbooks found.")
		return nil
	}

	t.Render()
	return nil
}

func phaseOrPending(playbook *v1alpha1.Playbook) v1alpha1.PlaybookPhase {
	if playbook.Status.Phase == "" {
		return v1alpha1.PlaybookPhasePending
	}
	return playbook.Status.Phase
}

func stageOrPending(actor *v1alpha1.Actor) v1alpha1.Stage {
	if actor.Status.Stage == "" {
		return v1alpha1.StagePending
	}
	return actor.Status.Stage
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusConfigPath, "config-path", "", "Custom configuration directory path")
	statusCmd.Flags().StringVar(&statusMode, "mode", "", "Watch mode: auto, kubernetes or filesystem (overrides config)")
	statusCmd.Flags().StringVar(&statusPath, "path", "", "Base directory for filesystem mode (overrides config)")
	statusCmd.Flags().StringVar(&statusPlaybook, "playbook", "", "Show only this playbook")
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "Refresh the status continuously")
	statusCmd.Flags().DurationVar(&statusInterval, "interval", 2*time.Second, "Refresh interval for --watch")
}
