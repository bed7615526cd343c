package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/casefile-labs/verity/internal/adapters/driving/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [corpus-id] [dir]",
	Short: "Watch an inbox directory and ingest new files",
	Long: `Watch a directory and ingest every new file into the given corpus,
driving each document through the pipeline as it lands. Runs until
interrupted.`,
	Args: cobra.ExactArgs(2),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if pipelineService == nil {
		return errors.New("pipeline service not configured")
	}

	corpusID, dir := args[0], args[1]

	watcher, err := watch.New(pipelineService, corpusID, dir)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.Printf("Watching %s for corpus %s. Press Ctrl+C to stop.\n", dir, corpusID)

	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watcher stopped: %w", err)
	}

	cmd.Println("Watcher stopped.")
	return nil
}
