package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgeline-io/forgeline/internal/models"
	"github.com/forgeline-io/forgeline/internal/sessionlog"
)

var sessionProject string

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and control agent sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions for a project",
	RunE:  runSessionList,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionShow,
}

var sessionCancelCmd = &cobra.Command{
	Use:   "cancel <session-id>",
	Short: "Cancel a running session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionCancel,
}

var sessionLogCmd = &cobra.Command{
	Use:   "log <session-id>",
	Short: "Print a session's log",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionLog,
}

func init() {
	sessionListCmd.Flags().StringVarP(&sessionProject, "project", "p", "", "Project ID (required)")
	_ = sessionListCmd.MarkFlagRequired("project")

	sessionCmd.AddCommand(sessionCancelCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionLogCmd)
	sessionCmd.AddCommand(sessionShowCmd)
}

func runSessionList(cmd *cobra.Command, args []string) error {
	client, err := connectDaemon()
	if err != nil {
		return err
	}

	var resp struct {
		Sessions []*models.Session `json:"sessions"`
	}
	if err := client.get(fmt.Sprintf("/projects/%s/sessions", sessionProject), &resp); err != nil {
		return err
	}

	if len(resp.Sessions) == 0 {
		fmt.Println("No sessions.")
		return nil
	}
	for _, s := range resp.Sessions {
		scope := s.EpicID
		if s.StoryID != "" {
			scope += "/" + s.StoryID
		}
		fmt.Printf("%s  %s  %s  %s\n",
			s.ID,
			renderSessionStatus(s.Status),
			styleValue.Render(scope),
			styleHint.Render(s.CreatedAt.Format(time.RFC3339)),
		)
	}
	return nil
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	client, err := connectDaemon()
	if err != nil {
		return err
	}

	var s models.Session
	if err := client.get("/sessions/"+args[0], &s); err != nil {
		return err
	}

	fmt.Printf("Session %s\n", s.ID)
	fmt.Printf("  Status:     %s\n", renderSessionStatus(s.Status))
	fmt.Printf("  Project:    %s\n", s.ProjectID)
	fmt.Printf("  Epic:       %s\n", s.EpicID)
	if s.StoryID != "" {
		fmt.Printf("  Story:      %s\n", s.StoryID)
	}
	fmt.Printf("  Mode:       %s\n", s.Mode)
	fmt.Printf("  Provider:   %s\n", s.Provider)
	if s.StartedAt != nil {
		fmt.Printf("  Started:    %s\n", s.StartedAt.Format(time.RFC3339))
	}
	if s.EndedAt != nil {
		fmt.Printf("  Ended:      %s\n", s.EndedAt.Format(time.RFC3339))
	}
	if s.Error != "" {
		fmt.Printf("  Error:      %s\n", styleError.Render(s.Error))
	}
	return nil
}

func runSessionCancel(cmd *cobra.Command, args []string) error {
	client, err := connectDaemon()
	if err != nil {
		return err
	}

	if err := client.post("/sessions/"+args[0]+"/cancel", nil, nil); err != nil {
		return err
	}
	fmt.Println(styleSuccess.Render("Session cancelled."))
	return nil
}

func runSessionLog(cmd *cobra.Command, args []string) error {
	client, err := connectDaemon()
	if err != nil {
		return err
	}

	var resp struct {
		Entries []sessionlog.Entry `json:"entries"`
	}
	if err := client.get("/sessions/"+args[0]+"/log", &resp); err != nil {
		return err
	}

	for _, e := range resp.Entries {
		switch e.Type {
		case "output":
			if line, ok := e.Fields["line"].(string); ok {
				fmt.Println(line)
			}
		default:
			fmt.Println(styleHint.Render(fmt.Sprintf("[%s]", e.Type)))
		}
	}
	return nil
}

func renderSessionStatus(status models.SessionStatus) string {
	switch status {
	case models.SessionStatusCompleted:
		return badgeDone.Render(string(status))
	case models.SessionStatusFailed:
		return styleError.Render(string(status))
	case models.SessionStatusCancelled:
		return styleWarning.Render(string(status))
	case models.SessionStatusRunning:
		return badgeReady.Render(string(status))
	default:
		return badgeDraft.Render(string(status))
	}
}
