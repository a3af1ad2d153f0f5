package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgeline-io/forgeline/internal/models"
)

var (
	ticketProject string
	ticketEpic    string
	ticketKind    string
	ticketID      string
)

var ticketCmd = &cobra.Command{
	Use:   "ticket",
	Short: "Manage tickets and their dependencies",
}

var ticketAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a ticket",
	Args:  cobra.ExactArgs(1),
	RunE:  runTicketAdd,
}

var ticketListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tickets for a project",
	RunE:  runTicketList,
}

var ticketDepCmd = &cobra.Command{
	Use:   "dep",
	Short: "Manage ticket dependencies",
}

var ticketDepAddCmd = &cobra.Command{
	Use:   "add <ticket-id> <depends-on-id>",
	Short: "Add a dependency edge",
	Long: `Add a dependency edge: the first ticket cannot start until the second
has finished. Edges that would close a cycle are rejected with the full
cycle path.`,
	Args: cobra.ExactArgs(2),
	RunE: runTicketDepAdd,
}

var ticketDepListCmd = &cobra.Command{
	Use:     "list <ticket-id>",
	Aliases: []string{"ls"},
	Short:   "List a ticket's dependencies",
	Args:    cobra.ExactArgs(1),
	RunE:    runTicketDepList,
}

var ticketDepRemoveCmd = &cobra.Command{
	Use:     "remove <ticket-id> <depends-on-id>",
	Aliases: []string{"rm"},
	Short:   "Remove a dependency edge",
	Args:    cobra.ExactArgs(2),
	RunE:    runTicketDepRemove,
}

func init() {
	ticketAddCmd.Flags().StringVarP(&ticketProject, "project", "p", "", "Project ID (required)")
	ticketAddCmd.Flags().StringVarP(&ticketEpic, "epic", "e", "", "Parent epic ID")
	ticketAddCmd.Flags().StringVarP(&ticketKind, "kind", "k", "story", "Ticket kind (epic or story)")
	ticketAddCmd.Flags().StringVar(&ticketID, "id", "", "Ticket ID (generated when empty)")
	_ = ticketAddCmd.MarkFlagRequired("project")

	ticketListCmd.Flags().StringVarP(&ticketProject, "project", "p", "", "Project ID (required)")
	_ = ticketListCmd.MarkFlagRequired("project")

	ticketDepCmd.AddCommand(ticketDepAddCmd)
	ticketDepCmd.AddCommand(ticketDepListCmd)
	ticketDepCmd.AddCommand(ticketDepRemoveCmd)

	ticketCmd.AddCommand(ticketAddCmd)
	ticketCmd.AddCommand(ticketDepCmd)
	ticketCmd.AddCommand(ticketListCmd)
}

func runTicketAdd(cmd *cobra.Command, args []string) error {
	if err := EnsureDaemon(); err != nil {
		return err
	}
	client, err := connectDaemon()
	if err != nil {
		return err
	}

	body := map[string]string{
		"id":      ticketID,
		"epic_id": ticketEpic,
		"title":   args[0],
		"kind":    ticketKind,
	}
	var ticket models.Ticket
	if err := client.post(fmt.Sprintf("/projects/%s/tickets", ticketProject), body, &ticket); err != nil {
		return err
	}

	fmt.Printf("Created %s %s\n", ticket.Kind, styleValue.Render(ticket.ID))
	return nil
}

func runTicketList(cmd *cobra.Command, args []string) error {
	client, err := connectDaemon()
	if err != nil {
		return err
	}

	var resp struct {
		Tickets []*models.Ticket `json:"tickets"`
	}
	if err := client.get(fmt.Sprintf("/projects/%s/tickets", ticketProject), &resp); err != nil {
		return err
	}

	if len(resp.Tickets) == 0 {
		fmt.Println("No tickets.")
		return nil
	}
	for _, t := range resp.Tickets {
		badge := badgeReady
		if t.Kind == models.TicketKindEpic {
			badge = badgeDone
		}
		fmt.Printf("%s  %s  %s\n", t.ID, badge.Render(string(t.Kind)), t.Title)
	}
	return nil
}

func runTicketDepAdd(cmd *cobra.Command, args []string) error {
	if err := EnsureDaemon(); err != nil {
		return err
	}
	client, err := connectDaemon()
	if err != nil {
		return err
	}

	body := map[string]string{"depends_on": args[1]}
	if err := client.post(fmt.Sprintf("/tickets/%s/dependencies", args[0]), body, nil); err != nil {
		return err
	}

	fmt.Println(styleSuccess.Render(fmt.Sprintf("%s now depends on %s.", args[0], args[1])))
	return nil
}

func runTicketDepList(cmd *cobra.Command, args []string) error {
	client, err := connectDaemon()
	if err != nil {
		return err
	}

	var resp struct {
		Dependencies []models.DependencyEdge `json:"dependencies"`
	}
	if err := client.get(fmt.Sprintf("/tickets/%s/dependencies", args[0]), &resp); err != nil {
		return err
	}

	if len(resp.Dependencies) == 0 {
		fmt.Println("No dependencies.")
		return nil
	}
	for _, e := range resp.Dependencies {
		fmt.Printf("%s %s %s\n", e.TicketID, styleHint.Render("depends on"), styleValue.Render(e.DependsOnTicketID))
	}
	return nil
}

func runTicketDepRemove(cmd *cobra.Command, args []string) error {
	client, err := connectDaemon()
	if err != nil {
		return err
	}

	if err := client.delete(fmt.Sprintf("/tickets/%s/dependencies/%s", args[0], args[1])); err != nil {
		return err
	}

	fmt.Println("Dependency removed.")
	return nil
}
