package services

import (
	"github.com/casefile-labs/verity/internal/core/domain"
)

// Completion computes the weighted completion picture for a document
// and recommends the resulting document state. Critical diagrams
// (title, method) gate every threshold: no percentage arithmetic can
// move a document past an unfinished or blocked critical image.
type Completion struct {
	cfg domain.CompletionSettings
}

// NewCompletion creates a calculator with the configured thresholds.
func NewCompletion(cfg domain.CompletionSettings) *Completion {
	return &Completion{cfg: cfg}
}

// Calculate measures the document's images. Images marked for deletion
// do not participate; a document with no participating images counts
// as fully complete.
func (c *Completion) Calculate(documentID string, images []domain.Image) domain.CompletionMetrics {
	m := domain.CompletionMetrics{DocumentID: documentID}

	for _, img := range images {
		if img.State == domain.ImgMarkedForDeletion {
			continue
		}
		weight := img.DiagramType.CompletionWeight()
		m.TotalImages++
		m.WeightedTotal += weight

		settled := img.State.Settled()
		if settled {
			m.SettledImages++
			m.WeightedSettled += weight
		} else {
			m.Blocking = append(m.Blocking, img.ID)
		}

		blocked := img.State == domain.ImgNeedsInterpretation
		if blocked {
			m.BlockedImages++
		}

		if img.DiagramType.Critical() {
			m.CriticalTotal++
			if settled {
				m.CriticalSettled++
			}
			if blocked {
				m.BlockedCritical++
			}
		}
	}

	if m.WeightedTotal == 0 {
		m.Percent = 100.0
	} else {
		m.Percent = m.WeightedSettled / m.WeightedTotal * 100.0
	}
	return m
}

// Recommend maps metrics to the document state the thresholds call for.
// Ready requires the ready percentage, every critical image settled and
// no images waiting on a human. Partially processed requires the
// partial percentage with every critical image settled. A blocked
// critical image blocks the document outright. Anything else stays at
// images extracted.
func (c *Completion) Recommend(m domain.CompletionMetrics) domain.DocumentState {
	if m.BlockedCritical > 0 {
		return domain.DocBlocked
	}
	if m.Percent >= c.cfg.ReadyPercent && m.CriticalComplete() && m.BlockedImages == 0 {
		return domain.DocReady
	}
	if m.Percent >= c.cfg.PartialPercent && m.CriticalComplete() {
		return domain.DocPartiallyProcessed
	}
	return domain.DocImagesExtracted
}
