package domain

// CompletionMetrics is the weighted completion picture for a document's
// images. Critical diagrams (title, method) weigh 2.0, supporting 1.0,
// decorative 0.1.
type CompletionMetrics struct {
	// DocumentID is the measured document.
	DocumentID string

	// TotalImages counts images participating in completion; images
	// marked for deletion are excluded.
	TotalImages int

	// SettledImages counts completed or ignored images.
	SettledImages int

	// WeightedTotal and WeightedSettled are the weight sums.
	WeightedTotal   float64
	WeightedSettled float64

	// Percent is WeightedSettled / WeightedTotal * 100, or 100 when the
	// document has no images.
	Percent float64

	// CriticalTotal and CriticalSettled count title/method diagrams.
	CriticalTotal   int
	CriticalSettled int

	// BlockedImages counts images waiting on a human.
	BlockedImages int

	// BlockedCritical counts critical images waiting on a human.
	BlockedCritical int

	// Blocking lists the IDs of images holding the document back.
	Blocking []string
}

// CriticalComplete reports whether every critical diagram is settled.
func (m CompletionMetrics) CriticalComplete() bool {
	return m.CriticalSettled == m.CriticalTotal
}
