package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [doc-id]",
	Short: "Show a document's full discoverable state",
	Long: `Report a document's lifecycle state, weighted completion picture,
per-image states and the audit reason chain explaining how it got
there. Blocked and failed documents are never reported bare.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if pipelineService == nil {
		return errors.New("pipeline service not configured")
	}

	docID := args[0]
	ctx := context.Background()

	status, err := pipelineService.Status(ctx, docID)
	if err != nil {
		return fmt.Errorf("failed to get document status: %w", err)
	}

	doc := status.Document
	cmd.Printf("Document: %s\n\n", doc.ID)
	cmd.Printf("  Title:    %s\n", doc.Title)
	cmd.Printf("  Corpus:   %s\n", doc.CorpusID)
	cmd.Printf("  State:    %s\n", doc.State)
	cmd.Printf("  Epoch:    %d\n", doc.Epoch)
	cmd.Printf("  Ingested: %s\n", doc.IngestedAt.Format("2006-01-02 15:04:05"))
	if doc.ProcessingCompletedAt != nil {
		cmd.Printf("  Completed: %s\n", doc.ProcessingCompletedAt.Format("2006-01-02 15:04:05"))
	}
	if doc.RemovedAt != nil {
		cmd.Printf("  Removed:  %s", doc.RemovedAt.Format("2006-01-02 15:04:05"))
		if doc.Deletion != nil {
			cmd.Printf(" (%s)", *doc.Deletion)
		}
		cmd.Println()
	}

	m := status.Completion
	cmd.Printf("\n  Completion: %.1f%% (%d/%d images settled", m.Percent, m.SettledImages, m.TotalImages)
	if m.CriticalTotal > 0 {
		cmd.Printf(", %d/%d critical", m.CriticalSettled, m.CriticalTotal)
	}
	cmd.Println(")")
	if len(m.Blocking) > 0 {
		cmd.Printf("  Blocking images: %v\n", m.Blocking)
	}

	if len(status.Images) > 0 {
		cmd.Println("\n  Images:")
		for i := range status.Images {
			img := &status.Images[i]
			cmd.Printf("    %s  %-20s %-11s", img.ID, img.State, img.DiagramType)
			if img.CanonicalID != nil {
				cmd.Printf("  duplicate of %s", *img.CanonicalID)
			} else if img.Description != "" {
				validated := ""
				if img.HumanValidated {
					validated = " [validated]"
				}
				cmd.Printf("  %q %.2f%s", img.Description, img.DescriptionConfidence, validated)
			}
			cmd.Println()
		}
	}

	if len(status.ReasonChain) > 0 {
		cmd.Println("\n  Recent decisions:")
		for _, ev := range status.ReasonChain {
			cmd.Printf("    %s  %-28s %s", ev.Timestamp.Format("2006-01-02 15:04:05"), ev.Action, ev.Actor)
			if ev.Rationale != "" {
				cmd.Printf("  (%s)", ev.Rationale)
			}
			cmd.Println()
		}
	}

	return nil
}
