package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:   "process [doc-id]",
	Short: "Drive a document through the pipeline",
	Long: `Drive a document from its current state as far as the pipeline can
take it without human decisions. Blocks while images wait on reviewer
escalations; resolve those from another terminal with 'verity review'.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess [doc-id]",
	Short: "Start a new processing epoch for a document",
	Long: `Re-run the pipeline over a document in a new epoch. Outputs from
prior epochs are preserved as versions; approved interpretations are
never overwritten.`,
	Args: cobra.ExactArgs(1),
	RunE: runReprocess,
}

// reprocessActor identifies who requested the reprocess.
var reprocessActor string

func init() {
	reprocessCmd.Flags().StringVarP(&reprocessActor, "actor", "a", "", "Reviewer identity requesting the reprocess (required)")

	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(reprocessCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	if pipelineService == nil {
		return errors.New("pipeline service not configured")
	}

	docID := args[0]
	ctx := context.Background()

	cmd.Printf("Processing document %s...\n", docID)
	if err := pipelineService.Process(ctx, docID); err != nil {
		return fmt.Errorf("failed to process document: %w", err)
	}

	status, err := pipelineService.Status(ctx, docID)
	if err != nil {
		return fmt.Errorf("failed to read document status: %w", err)
	}

	cmd.Printf("Document %s is now %s (%.1f%% complete)\n",
		docID, status.Document.State, status.Completion.Percent)
	return nil
}

func runReprocess(cmd *cobra.Command, args []string) error {
	if pipelineService == nil {
		return errors.New("pipeline service not configured")
	}
	if reprocessActor == "" {
		return errors.New("--actor is required")
	}

	docID := args[0]
	ctx := context.Background()

	if err := pipelineService.Reprocess(ctx, docID, reprocessActor); err != nil {
		return fmt.Errorf("failed to reprocess document: %w", err)
	}

	status, err := pipelineService.Status(ctx, docID)
	if err != nil {
		return fmt.Errorf("failed to read document status: %w", err)
	}

	cmd.Printf("Document %s reprocessed in epoch %d, now %s\n",
		docID, status.Document.Epoch, status.Document.State)
	return nil
}
