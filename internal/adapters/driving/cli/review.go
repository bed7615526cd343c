package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/casefile-labs/verity/internal/core/domain"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Work the reviewer queue",
	Long: `List pending escalations, resolve them, and override automated
decisions. Every reviewer action requires a rationale; it becomes part
of the permanent audit record.`,
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending escalations",
	RunE:  runReviewList,
}

var reviewResolveCmd = &cobra.Command{
	Use:   "resolve [task-id] [choice]",
	Short: "Resolve a pending escalation",
	Long: `Record a reviewer decision on a task and wake the suspended pipeline
step.

Choices by task kind:
  near_duplicate    link_duplicate | process_unique
  interpretation    approve | ignore
  blocked_document  approve | ignore`,
	Args: cobra.ExactArgs(2),
	RunE: runReviewResolve,
}

var reviewOverrideCmd = &cobra.Command{
	Use:   "override [image-id] [diagram-type]",
	Short: "Reclassify an image's diagram type",
	Long: `Override the automated diagram classification. Valid types: title,
method, supporting, decorative.`,
	Args: cobra.ExactArgs(2),
	RunE: runReviewOverride,
}

var reviewReinstateCmd = &cobra.Command{
	Use:   "reinstate [image-id]",
	Short: "Reverse an auto-ignore",
	Long: `Send an auto-ignored image back for interpretation. The image
re-enters the reviewer queue as an interpretation task.`,
	Args: cobra.ExactArgs(1),
	RunE: runReviewReinstate,
}

var reviewChainCmd = &cobra.Command{
	Use:   "chain [resource-id]",
	Short: "Show a resource's audit reason chain",
	Args:  cobra.ExactArgs(1),
	RunE:  runReviewChain,
}

// Flags for the review commands.
var (
	reviewCorpus      string
	reviewActor       string
	reviewRationale   string
	reviewDescription string
	reviewChainLimit  int
)

func init() {
	reviewListCmd.Flags().StringVarP(&reviewCorpus, "corpus", "c", "", "Limit to one corpus")

	reviewResolveCmd.Flags().StringVarP(&reviewActor, "actor", "a", "", "Reviewer identity (required)")
	reviewResolveCmd.Flags().StringVarP(&reviewRationale, "rationale", "r", "", "Why this decision (required)")
	reviewResolveCmd.Flags().StringVarP(&reviewDescription, "description", "d", "", "Corrected interpretation text when approving with edits")

	reviewOverrideCmd.Flags().StringVarP(&reviewActor, "actor", "a", "", "Reviewer identity (required)")
	reviewOverrideCmd.Flags().StringVarP(&reviewRationale, "rationale", "r", "", "Why this override (required)")

	reviewReinstateCmd.Flags().StringVarP(&reviewActor, "actor", "a", "", "Reviewer identity (required)")
	reviewReinstateCmd.Flags().StringVarP(&reviewRationale, "rationale", "r", "", "Why reinstate (required)")

	reviewChainCmd.Flags().IntVarP(&reviewChainLimit, "limit", "n", 20, "Number of events to show")

	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewResolveCmd)
	reviewCmd.AddCommand(reviewOverrideCmd)
	reviewCmd.AddCommand(reviewReinstateCmd)
	reviewCmd.AddCommand(reviewChainCmd)
	rootCmd.AddCommand(reviewCmd)
}

func runReviewList(cmd *cobra.Command, _ []string) error {
	if reviewService == nil {
		return errors.New("review service not configured")
	}

	tasks, err := reviewService.PendingTasks(context.Background(), reviewCorpus)
	if err != nil {
		return fmt.Errorf("failed to list pending tasks: %w", err)
	}

	if len(tasks) == 0 {
		cmd.Println("No pending escalations.")
		return nil
	}

	for i := range tasks {
		t := &tasks[i]
		cmd.Printf("  %s  %s\n", t.ID, t.Kind)
		cmd.Printf("    Corpus:   %s\n", t.CorpusID)
		cmd.Printf("    Document: %s\n", t.DocumentID)
		if t.ImageID != "" {
			cmd.Printf("    Image:    %s\n", t.ImageID)
		}
		for k, v := range t.Evidence {
			cmd.Printf("    %s: %s\n", k, v)
		}
		cmd.Printf("    Waiting since: %s\n", t.CreatedAt.Format("2006-01-02 15:04:05"))
		cmd.Println()
	}

	cmd.Printf("Total: %d pending\n", len(tasks))
	return nil
}

func runReviewResolve(cmd *cobra.Command, args []string) error {
	if reviewService == nil {
		return errors.New("review service not configured")
	}

	decision := domain.Decision{
		TaskID:      args[0],
		Choice:      domain.DecisionChoice(args[1]),
		Actor:       reviewActor,
		ActorKind:   domain.ActorHuman,
		Rationale:   reviewRationale,
		Description: reviewDescription,
		DecidedAt:   time.Now(),
	}

	if err := reviewService.ResolveTask(context.Background(), decision); err != nil {
		return fmt.Errorf("failed to resolve task: %w", err)
	}

	cmd.Printf("Task %s resolved: %s\n", decision.TaskID, decision.Choice)
	return nil
}

func runReviewOverride(cmd *cobra.Command, args []string) error {
	if reviewService == nil {
		return errors.New("review service not configured")
	}

	imageID := args[0]
	dt := domain.DiagramType(args[1])

	err := reviewService.OverrideDiagramType(context.Background(), imageID, dt, reviewActor, reviewRationale)
	if err != nil {
		return fmt.Errorf("failed to override diagram type: %w", err)
	}

	cmd.Printf("Image %s reclassified as %s\n", imageID, dt)
	return nil
}

func runReviewReinstate(cmd *cobra.Command, args []string) error {
	if reviewService == nil {
		return errors.New("review service not configured")
	}

	imageID := args[0]
	err := reviewService.ReinstateIgnored(context.Background(), imageID, reviewActor, reviewRationale)
	if err != nil {
		return fmt.Errorf("failed to reinstate image: %w", err)
	}

	cmd.Printf("Image %s reinstated; an interpretation task is pending.\n", imageID)
	return nil
}

func runReviewChain(cmd *cobra.Command, args []string) error {
	if reviewService == nil {
		return errors.New("review service not configured")
	}

	resource := args[0]
	events, err := reviewService.ReasonChain(context.Background(), resource, reviewChainLimit)
	if err != nil {
		return fmt.Errorf("failed to load reason chain: %w", err)
	}

	if len(events) == 0 {
		cmd.Printf("No audit events for %s\n", resource)
		return nil
	}

	cmd.Printf("Reason chain for %s (newest first):\n\n", resource)
	for _, ev := range events {
		cmd.Printf("  %s  [%s] %s by %s (%s)\n",
			ev.Timestamp.Format("2006-01-02 15:04:05"), ev.Severity, ev.Action, ev.Actor, ev.ActorKind)
		if ev.BeforeState != "" || ev.AfterState != "" {
			cmd.Printf("    %s -> %s\n", ev.BeforeState, ev.AfterState)
		}
		if ev.Rationale != "" {
			cmd.Printf("    Rationale: %s\n", ev.Rationale)
		}
		if ev.Tag != "" {
			cmd.Printf("    Tag: %s\n", ev.Tag)
		}
	}

	return nil
}
