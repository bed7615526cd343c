// Package cli provides the command-line interface for Verity.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/casefile-labs/verity/internal/core/ports/driven"
	"github.com/casefile-labs/verity/internal/core/ports/driving"
	"github.com/casefile-labs/verity/internal/logger"
)

// version is set at build time via ldflags.
var version = "dev"

// Services injected by the composition root. Commands nil-check the
// services they need so a partially wired binary fails loudly instead
// of panicking.
var (
	pipelineService driving.Pipeline
	removalService  driving.Removal
	reviewService   driving.Review
	corpusStore     driven.CorpusStore
	settingsStore   driven.SettingsStore
)

// verboseFlag enables debug logging on stderr.
var verboseFlag bool

var rootCmd = &cobra.Command{
	Use:   "verity",
	Short: "Governed document processing for legal evidence",
	Long: `Verity ingests legal and patent filings into isolated corpora and
drives them through a governed analysis pipeline: text and diagram
extraction, duplicate resolution, OCR, vision analysis, interpretation
synthesis and vector embedding.

Every decision the pipeline takes is recorded in an append-only
provenance ledger and audit trail. Low-confidence results escalate to
a human reviewer instead of completing silently.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verboseFlag)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose debug output")
}

// Services bundles everything the CLI needs from the composition root.
type Services struct {
	Pipeline driving.Pipeline
	Removal  driving.Removal
	Review   driving.Review
	Corpora  driven.CorpusStore
	Settings driven.SettingsStore
}

// SetServices injects the wired services. Must be called before Execute.
func SetServices(s Services) {
	pipelineService = s.Pipeline
	removalService = s.Removal
	reviewService = s.Review
	corpusStore = s.Corpora
	settingsStore = s.Settings
}

// SetVersion sets the version string reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
