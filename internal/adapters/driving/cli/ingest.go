package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [corpus-id] [file...]",
	Short: "Ingest source files into a corpus",
	Long: `Register one or more source files into a corpus. Each file becomes a
document in the ingested state. Pass --process to drive the documents
through the pipeline immediately.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runIngest,
}

// ingestProcess drives each document through the pipeline after ingest.
var ingestProcess bool

func init() {
	ingestCmd.Flags().BoolVarP(&ingestProcess, "process", "p", false, "Process each document after ingesting")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if pipelineService == nil {
		return errors.New("pipeline service not configured")
	}

	corpusID := args[0]
	ctx := context.Background()

	for _, path := range args[1:] {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", path, err)
		}

		content, err := os.ReadFile(abs)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		doc, err := pipelineService.Ingest(ctx, corpusID, "file://"+abs, content)
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", path, err)
		}
		cmd.Printf("Ingested %s as document %s\n", path, doc.ID)

		if ingestProcess {
			if err := pipelineService.Process(ctx, doc.ID); err != nil {
				return fmt.Errorf("failed to process %s: %w", doc.ID, err)
			}
			cmd.Printf("Processed document %s\n", doc.ID)
		}
	}

	return nil
}
