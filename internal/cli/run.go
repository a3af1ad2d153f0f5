package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/forgeline-io/forgeline/internal/daemon/runner"
	"github.com/forgeline-io/forgeline/internal/daemon/scheduler"
	"github.com/forgeline-io/forgeline/internal/tui"
)

var (
	runProject  string
	runMode     string
	runProvider string
	runWorkDir  string
	runPlain    bool
)

var runCmd = &cobra.Command{
	Use:   "run <ticket-id>...",
	Short: "Run tickets in dependency order",
	Long: `Run one agent session per ticket, in dependency order.

Tickets with no dependencies among the given set run first, in parallel.
Each later layer starts only after the previous layer has fully settled.
Tickets downstream of a failure are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runProject, "project", "p", "", "Project ID (required)")
	runCmd.Flags().StringVarP(&runMode, "mode", "m", "ticket", "Session mode")
	runCmd.Flags().StringVar(&runProvider, "provider", "", "Agent provider (default from settings)")
	runCmd.Flags().StringVarP(&runWorkDir, "workdir", "w", "", "Working directory for agent processes")
	runCmd.Flags().BoolVar(&runPlain, "plain", false, "Disable the progress display")
	_ = runCmd.MarkFlagRequired("project")
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := EnsureDaemon(); err != nil {
		return err
	}

	client, err := connectDaemonForRun()
	if err != nil {
		return err
	}

	body := map[string]any{
		"ticket_ids": args,
		"mode":       runMode,
		"provider":   runProvider,
		"work_dir":   runWorkDir,
	}
	path := fmt.Sprintf("/projects/%s/runs", runProject)

	var result runner.BatchResult
	request := func() error {
		return client.post(path, body, &result)
	}

	if runPlain {
		fmt.Printf("Running %d tickets...\n", len(args))
		if err := request(); err != nil {
			return err
		}
	} else {
		if err := tui.RunWithProgress(fmt.Sprintf("Running %d tickets", len(args)), request); err != nil {
			return err
		}
	}

	printBatchResult(&result)
	if batchFailed(&result) {
		return fmt.Errorf("run finished with failures")
	}
	return nil
}

func printBatchResult(result *runner.BatchResult) {
	fmt.Println()
	for i, layer := range result.Layers {
		fmt.Println(styleLabel.Render(fmt.Sprintf("Layer %d:", i+1)))
		for _, ticketID := range layer {
			state := result.Tickets[ticketID]
			line := fmt.Sprintf("  %s %s", renderTicketStatus(state.Status), ticketID)
			if sessionID, ok := result.Sessions[ticketID]; ok {
				line += styleHint.Render(fmt.Sprintf("  session %s", sessionID))
			}
			if state.Reason != "" {
				line += styleHint.Render(fmt.Sprintf("  (%s)", state.Reason))
			}
			fmt.Println(line)
		}
	}

	counts := map[scheduler.TicketStatus]int{}
	for _, state := range result.Tickets {
		counts[state.Status]++
	}
	keys := make([]string, 0, len(counts))
	for status := range counts {
		keys = append(keys, string(status))
	}
	sort.Strings(keys)

	fmt.Println()
	summary := ""
	for _, k := range keys {
		if summary != "" {
			summary += ", "
		}
		summary += fmt.Sprintf("%d %s", counts[scheduler.TicketStatus(k)], k)
	}
	fmt.Println(styleValue.Render(summary))
}

func batchFailed(result *runner.BatchResult) bool {
	for _, state := range result.Tickets {
		if state.Status == scheduler.StatusFailed {
			return true
		}
	}
	return false
}

func renderTicketStatus(status scheduler.TicketStatus) string {
	switch status {
	case scheduler.StatusDone:
		return badgeDone.Render("✓")
	case scheduler.StatusFailed:
		return styleError.Render("✗")
	case scheduler.StatusSkipped:
		return styleWarning.Render("⊘")
	default:
		return badgeReady.Render("·")
	}
}
