package services

import (
	"context"
	"fmt"
	"math"
	"math/bits"
	"strconv"

	"github.com/casefile-labs/verity/internal/core/domain"
	"github.com/casefile-labs/verity/internal/core/ports/driven"
	"github.com/casefile-labs/verity/internal/logger"
)

// Duplicates classifies newly extracted images against the canonical
// images already seen in the same corpus. Cross-corpus candidates are
// never compared; the enforcer re-checks every candidate pulled from
// the store. Every outcome, including "unique", commits a provenance
// record of what the image was compared against.
type Duplicates struct {
	images     driven.ImageStore
	isolation  *Isolation
	provenance *Provenance
	cfg        domain.SimilaritySettings
}

// NewDuplicates creates the resolver.
func NewDuplicates(images driven.ImageStore, isolation *Isolation, provenance *Provenance, cfg domain.SimilaritySettings) *Duplicates {
	return &Duplicates{images: images, isolation: isolation, provenance: provenance, cfg: cfg}
}

// Resolve classifies img against the closest same-corpus canonical.
func (d *Duplicates) Resolve(ctx context.Context, img domain.Image) (*domain.DuplicateOutcome, error) {
	candidates, err := d.images.ListCanonical(ctx, img.CorpusID)
	if err != nil {
		return nil, fmt.Errorf("list canonical images: %w", err)
	}

	var (
		best      *domain.Image
		bestScore float64
	)
	for i := range candidates {
		cand := candidates[i]
		if cand.ID == img.ID {
			continue
		}
		// The candidate pool is corpus-scoped by construction; the
		// enforcer still validates each reference so a miswired store
		// can never leak a cross-corpus comparison.
		if err := d.isolation.ValidateReference(ctx, img.CorpusID, cand.CorpusID, img.ID+"->"+cand.ID); err != nil {
			return nil, err
		}

		score, ok := fingerprintSimilarity(img.Fingerprint, cand.Fingerprint)
		if !ok {
			continue
		}
		if best == nil || score > bestScore || (score == bestScore && d.closerSecondary(img, cand, *best)) {
			best = &candidates[i]
			bestScore = score
		}
	}

	outcome := &domain.DuplicateOutcome{Band: domain.BandUnique}
	if best != nil {
		outcome.Similarity = bestScore
		outcome.CanonicalID = best.ID
		outcome.Band = d.band(bestScore)
	}

	if err := d.recordComparison(ctx, img, outcome); err != nil {
		return nil, err
	}

	logger.Debug("Duplicate resolution for %s: band=%s similarity=%.3f", img.ID, outcome.Band, outcome.Similarity)
	return outcome, nil
}

// band maps a similarity score to its classification band.
func (d *Duplicates) band(score float64) domain.DuplicateBand {
	switch {
	case score >= d.cfg.ExactThreshold:
		return domain.BandExact
	case score >= d.cfg.NearThreshold:
		return domain.BandNear
	case score >= d.cfg.PossibleThreshold:
		return domain.BandPossible
	default:
		return domain.BandUnique
	}
}

// closerSecondary breaks similarity ties on byte size and aspect ratio.
func (d *Duplicates) closerSecondary(img, a, b domain.Image) bool {
	sizeA := math.Abs(float64(img.ByteSize - a.ByteSize))
	sizeB := math.Abs(float64(img.ByteSize - b.ByteSize))
	if sizeA != sizeB {
		return sizeA < sizeB
	}
	return math.Abs(aspect(img)-aspect(a)) < math.Abs(aspect(img)-aspect(b))
}

func aspect(img domain.Image) float64 {
	if img.Height == 0 {
		return 0
	}
	return float64(img.Width) / float64(img.Height)
}

// recordComparison commits the mandatory provenance record for the
// outcome. With no prior canonical in the corpus, the record documents
// that nothing existed to compare against.
func (d *Duplicates) recordComparison(ctx context.Context, img domain.Image, outcome *domain.DuplicateOutcome) error {
	rec := domain.ProvenanceRecord{
		Outputs:   []string{img.ID},
		Kind:      domain.TransformDuplicateCompare,
		Agent:     "duplicate-resolver",
		AgentKind: domain.AgentSystem,
		Note:      string(outcome.Band),
	}
	if outcome.CanonicalID != "" {
		rec.Inputs = []string{outcome.CanonicalID}
		score := outcome.Similarity
		rec.Confidence = &score
	} else {
		rec.Note = "unique: no prior canonical in corpus"
	}
	if _, err := d.provenance.Record(ctx, rec); err != nil {
		return fmt.Errorf("record comparison: %w", err)
	}
	return nil
}

// fingerprintSimilarity scores two 64-bit perceptual hashes in [0,1]
// by Hamming distance. Returns false when either fingerprint is absent
// or malformed.
func fingerprintSimilarity(a, b string) (float64, bool) {
	ha, errA := strconv.ParseUint(a, 16, 64)
	hb, errB := strconv.ParseUint(b, 16, 64)
	if errA != nil || errB != nil {
		return 0, false
	}
	distance := bits.OnesCount64(ha ^ hb)
	return 1.0 - float64(distance)/64.0, true
}
