// Command verity is the governed document-processing pipeline for
// legal and patent evidence.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/casefile-labs/verity/internal/adapters/driven/config/file"
	"github.com/casefile-labs/verity/internal/adapters/driven/engines/openai"
	"github.com/casefile-labs/verity/internal/adapters/driven/extract/plaintext"
	"github.com/casefile-labs/verity/internal/adapters/driven/storage/sqlite"
	"github.com/casefile-labs/verity/internal/adapters/driving/cli"
	"github.com/casefile-labs/verity/internal/core/ports/driven"
	"github.com/casefile-labs/verity/internal/core/services"
	"github.com/casefile-labs/verity/internal/logger"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	settingsStore, err := file.NewSettingsStore("")
	if err != nil {
		return fmt.Errorf("settings store: %w", err)
	}
	settings, err := settingsStore.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	store, err := sqlite.NewStore("")
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	corpora := store.CorpusStore()
	docs := store.DocumentStore()
	imgs := store.ImageStore()
	ledger := store.ProvenanceLedger()
	audit := store.AuditLog()
	vectors := store.VectorStore()
	restoration := store.RestorationCache()

	// Tasks persist alongside the documents, so a 'verity review' in
	// another terminal sees and resolves escalations a blocked 'verity
	// process' is waiting on.
	tasks := store.TaskQueue()

	machine := services.NewStateMachine(docs, imgs, audit)
	completion := services.NewCompletion(settings.Completion)
	scheduler := services.NewScheduler(settings.Scheduler)
	isolation := services.NewIsolation(corpora, audit, settings.Override.MinJustification)
	provenance := services.NewProvenance(ledger)
	duplicates := services.NewDuplicates(imgs, isolation, provenance, settings.Similarity)

	wired := cli.Services{
		Corpora:  corpora,
		Settings: settingsStore,
	}

	// Engine-backed services need an API key. Without one the inspection
	// commands still work; processing commands report unconfigured.
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		logger.Warn("OPENAI_API_KEY not set; processing commands are disabled")
	} else {
		assetDir := filepath.Join(filepath.Dir(store.Path()), "assets")
		extractor, err := plaintext.New(assetDir)
		if err != nil {
			return fmt.Errorf("extractor: %w", err)
		}

		client, err := openai.NewClient(openai.Config{
			APIKey:   apiKey,
			AssetDir: assetDir,
		})
		if err != nil {
			return fmt.Errorf("openai client: %w", err)
		}

		pipeline := services.NewPipeline(
			machine, completion, scheduler, duplicates, provenance, isolation,
			services.Stores{
				Documents: docs,
				Images:    imgs,
				Vectors:   vectors,
				Tasks:     tasks,
				Audit:     audit,
			},
			services.Engines{
				Extractor: extractor,
				OCR:       []driven.OCREngine{openai.NewOCREngine(client, "")},
				Vision:    openai.NewVisionEngine(client),
				Synthesis: openai.NewSynthesisService(client),
				Embedding: openai.NewEmbeddingService(client, ""),
			},
			settings,
		)

		wired.Pipeline = pipeline
		wired.Removal = services.NewRemoval(
			machine, pipeline, provenance,
			docs, imgs, vectors, restoration, tasks, audit,
			settings.Retention,
		)
		wired.Review = services.NewReview(machine, pipeline, provenance, docs, imgs, tasks, audit)
	}

	cli.SetVersion(version)
	cli.SetServices(wired)
	return cli.Execute()
}
