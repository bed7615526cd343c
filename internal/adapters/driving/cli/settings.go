package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show pipeline settings",
	Long: `Show the tuning thresholds in force: similarity bands, completion
thresholds, quality floors, retry budgets, scheduler slots and
retention windows. Edit ~/.verity/settings.toml to change them; a
partial file only overrides the keys it names.`,
	RunE: runSettingsShow,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsStore == nil {
		return errors.New("settings store not configured")
	}

	s, err := settingsStore.Load(context.Background())
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	cmd.Println("[similarity]")
	cmd.Printf("  exact_threshold    = %.2f\n", s.Similarity.ExactThreshold)
	cmd.Printf("  near_threshold     = %.2f\n", s.Similarity.NearThreshold)
	cmd.Printf("  possible_threshold = %.2f\n", s.Similarity.PossibleThreshold)

	cmd.Println("\n[completion]")
	cmd.Printf("  ready_percent   = %.1f\n", s.Completion.ReadyPercent)
	cmd.Printf("  partial_percent = %.1f\n", s.Completion.PartialPercent)

	cmd.Println("\n[quality]")
	cmd.Printf("  ocr_floor            = %.2f\n", s.Quality.OCRFloor)
	cmd.Printf("  vision_floor         = %.2f\n", s.Quality.VisionFloor)
	cmd.Printf("  interpretation_floor = %.2f\n", s.Quality.InterpretationFloor)

	cmd.Println("\n[retry]")
	cmd.Printf("  max_attempts = %d\n", s.Retry.MaxAttempts)
	cmd.Printf("  backoff      = %s\n", s.Retry.Backoff)

	cmd.Println("\n[scheduler]")
	cmd.Printf("  ocr_slots       = %d\n", s.Scheduler.OCRSlots)
	cmd.Printf("  vision_slots    = %d\n", s.Scheduler.VisionSlots)
	cmd.Printf("  embedding_slots = %d\n", s.Scheduler.EmbeddingSlots)
	cmd.Printf("  acquire_timeout = %s\n", s.Scheduler.AcquireTimeout)
	cmd.Printf("  promote_after   = %s\n", s.Scheduler.PromoteAfter)

	cmd.Println("\n[timeouts]")
	cmd.Printf("  small            = %s\n", s.Timeouts.Small)
	cmd.Printf("  standard         = %s\n", s.Timeouts.Standard)
	cmd.Printf("  complex          = %s\n", s.Timeouts.Complex)
	cmd.Printf("  force_completion = %s\n", s.Timeouts.ForceCompletion)

	cmd.Println("\n[retention]")
	cmd.Printf("  hard_delete_after = %s\n", s.Retention.HardDeleteAfter)
	cmd.Printf("  restoration_ttl   = %s\n", s.Retention.RestorationTTL)

	cmd.Println("\n[override]")
	cmd.Printf("  min_justification = %d\n", s.Override.MinJustification)

	return nil
}
