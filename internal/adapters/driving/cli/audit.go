package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit [resource-id]",
	Short: "Show the audit trail for a document or image",
	Long: `Print the audit reason chain for a resource, newest first. Every
state transition, override, escalation and violation the pipeline
recorded for the resource appears here.`,
	Args: cobra.ExactArgs(1),
	RunE: runAudit,
}

// auditLimit bounds how many events are shown.
var auditLimit int

func init() {
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 50, "Number of events to show")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	if reviewService == nil {
		return errors.New("review service not configured")
	}

	resource := args[0]
	events, err := reviewService.ReasonChain(context.Background(), resource, auditLimit)
	if err != nil {
		return fmt.Errorf("failed to load audit trail: %w", err)
	}

	if len(events) == 0 {
		cmd.Printf("No audit events for %s\n", resource)
		return nil
	}

	for _, ev := range events {
		cmd.Printf("%s  [%s] %s\n", ev.Timestamp.Format("2006-01-02 15:04:05"), ev.Severity, ev.Action)
		cmd.Printf("  Actor:    %s (%s)\n", ev.Actor, ev.ActorKind)
		if ev.BeforeState != "" || ev.AfterState != "" {
			cmd.Printf("  State:    %s -> %s\n", ev.BeforeState, ev.AfterState)
		}
		if ev.Rationale != "" {
			cmd.Printf("  Rationale: %s\n", ev.Rationale)
		}
		if ev.Tag != "" {
			cmd.Printf("  Tag:      %s\n", ev.Tag)
		}
		for k, v := range ev.Detail {
			cmd.Printf("  %s: %s\n", k, v)
		}
		cmd.Println()
	}

	cmd.Printf("Total: %d events (ruleset %s)\n", len(events), events[0].Ruleset)
	return nil
}
