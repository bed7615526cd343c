package domain

// OCRResult is one OCR engine attempt. The pipeline stores every
// attempt, not just the best.
type OCRResult struct {
	// Text is the extracted text.
	Text string

	// Confidence is the engine's self-reported confidence in [0,1].
	Confidence float64

	// EngineID identifies which engine produced the attempt.
	EngineID string
}

// VisionResult is the structured output of vision analysis.
type VisionResult struct {
	// Objects lists the detected elements.
	Objects []string

	// SpatialRelations lists relations between detected elements.
	SpatialRelations []string

	// Confidence is the model's confidence in [0,1].
	Confidence float64
}

// SynthesisResult is the natural-language description produced from OCR
// text and vision output.
type SynthesisResult struct {
	// Description is the synthesised interpretation.
	Description string

	// Confidence is the synthesis confidence in [0,1].
	Confidence float64
}

// DuplicateBand is the similarity classification for a new image
// against its closest same-corpus canonical.
type DuplicateBand string

const (
	// BandExact auto-links to the canonical with zero human involvement.
	BandExact DuplicateBand = "exact"

	// BandNear blocks the image and creates a side-by-side review task.
	BandNear DuplicateBand = "near"

	// BandPossible proceeds with full processing, flagged for optional
	// batch review.
	BandPossible DuplicateBand = "possible"

	// BandUnique proceeds with full processing.
	BandUnique DuplicateBand = "unique"
)

// DuplicateOutcome is the resolver's verdict for one image.
type DuplicateOutcome struct {
	// Band is the similarity classification.
	Band DuplicateBand

	// Similarity is the score in [0,1] against the closest candidate,
	// zero when the corpus held no prior canonical.
	Similarity float64

	// CanonicalID is the closest candidate compared against, empty when
	// the corpus held no prior canonical.
	CanonicalID string
}
