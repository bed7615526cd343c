package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/casefile-labs/verity/internal/core/domain"
)

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Manage corpora",
	Long: `Register and list corpora. A corpus is the isolation boundary for
one matter; documents and their derived artifacts never cross it.`,
}

var corpusAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Register a new corpus",
	Args:  cobra.ExactArgs(1),
	RunE:  runCorpusAdd,
}

var corpusListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered corpora",
	RunE:  runCorpusList,
}

// corpusDescription is a flag for the add command.
var corpusDescription string

func init() {
	corpusAddCmd.Flags().StringVarP(&corpusDescription, "description", "d", "", "What the corpus collects")

	corpusCmd.AddCommand(corpusAddCmd)
	corpusCmd.AddCommand(corpusListCmd)
	rootCmd.AddCommand(corpusCmd)
}

func runCorpusAdd(cmd *cobra.Command, args []string) error {
	if corpusStore == nil {
		return errors.New("corpus store not configured")
	}

	c := domain.Corpus{
		ID:          uuid.NewString(),
		Name:        args[0],
		Description: corpusDescription,
		CreatedAt:   time.Now(),
	}

	if err := corpusStore.Save(context.Background(), c); err != nil {
		return fmt.Errorf("failed to register corpus: %w", err)
	}

	cmd.Printf("Corpus registered: %s\n", c.ID)
	cmd.Printf("  Name: %s\n", c.Name)
	return nil
}

func runCorpusList(cmd *cobra.Command, _ []string) error {
	if corpusStore == nil {
		return errors.New("corpus store not configured")
	}

	corpora, err := corpusStore.List(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list corpora: %w", err)
	}

	if len(corpora) == 0 {
		cmd.Println("No corpora registered. Use 'verity corpus add' to create one.")
		return nil
	}

	for i := range corpora {
		cmd.Printf("  %s\n", corpora[i].ID)
		cmd.Printf("    Name:    %s\n", corpora[i].Name)
		if corpora[i].Description != "" {
			cmd.Printf("    About:   %s\n", corpora[i].Description)
		}
		cmd.Printf("    Created: %s\n", corpora[i].CreatedAt.Format("2006-01-02 15:04:05"))
		cmd.Println()
	}

	cmd.Printf("Total: %d corpora\n", len(corpora))
	return nil
}
