package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/casefile-labs/verity/internal/core/domain"
)

var removeCmd = &cobra.Command{
	Use:   "remove [doc-id]",
	Short: "Take a document out of service",
	Long: `Remove a document under one of the three deletion strategies:

  soft_keep    vectors stay stored but excluded from retrieval;
               instantly reversible
  soft_remove  vectors deleted immediately, metadata retained;
               reversible only by full reprocessing
  hard_delete  vectors, images and files physically removed after the
               retention window; irreversible once swept

Provenance and audit records survive every strategy.`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

var restoreCmd = &cobra.Command{
	Use:   "restore [doc-id]",
	Short: "Reverse a removal",
	Long: `Restore a removed document while its restoration window is live.
Soft-keep restores instantly; soft-remove and hard-delete re-enter
reprocessing.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the retention sweep",
	Long: `Expire lapsed restoration windows and execute hard deletes whose
retention window has passed.`,
	RunE: runSweep,
}

// Flags for removal commands.
var (
	removeStrategy string
	removeActor    string
	removeReason   string
	restoreActor   string
)

func init() {
	removeCmd.Flags().StringVarP(&removeStrategy, "strategy", "s", string(domain.SoftKeep), "Deletion strategy: soft_keep, soft_remove or hard_delete")
	removeCmd.Flags().StringVarP(&removeActor, "actor", "a", "", "Who is removing the document (required)")
	removeCmd.Flags().StringVarP(&removeReason, "reason", "r", "", "Reason code for the cleanup audit record (required)")

	restoreCmd.Flags().StringVarP(&restoreActor, "actor", "a", "", "Who is restoring the document (required)")

	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(sweepCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	if removalService == nil {
		return errors.New("removal service not configured")
	}
	if removeActor == "" {
		return errors.New("--actor is required")
	}
	if removeReason == "" {
		return errors.New("--reason is required")
	}

	docID := args[0]
	strategy := domain.DeletionStrategy(removeStrategy)

	err := removalService.Remove(context.Background(), docID, strategy, removeActor, removeReason)
	if err != nil {
		return fmt.Errorf("failed to remove document: %w", err)
	}

	cmd.Printf("Document %s removed under %s.\n", docID, strategy)
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	if removalService == nil {
		return errors.New("removal service not configured")
	}
	if restoreActor == "" {
		return errors.New("--actor is required")
	}

	docID := args[0]
	if err := removalService.Restore(context.Background(), docID, restoreActor); err != nil {
		return fmt.Errorf("failed to restore document: %w", err)
	}

	cmd.Printf("Document %s restored.\n", docID)
	return nil
}

func runSweep(cmd *cobra.Command, _ []string) error {
	if removalService == nil {
		return errors.New("removal service not configured")
	}

	if err := removalService.Sweep(context.Background(), time.Now()); err != nil {
		return fmt.Errorf("retention sweep failed: %w", err)
	}

	cmd.Println("Retention sweep complete.")
	return nil
}
