package domain

import "time"

// ImageState is the lifecycle state of an extracted visual asset.
type ImageState string

// Image states. Draft means a reviewer is editing the interpretation;
// drafts are never indexed until completed.
const (
	ImgExtracted           ImageState = "extracted"
	ImgProcessing          ImageState = "processing"
	ImgNeedsInterpretation ImageState = "needs_interpretation"
	ImgCompleted           ImageState = "completed"
	ImgIgnored             ImageState = "ignored"
	ImgDraft               ImageState = "draft"
	ImgMarkedForDeletion   ImageState = "marked_for_deletion"
)

// Active reports whether the image still participates in processing.
func (s ImageState) Active() bool {
	switch s {
	case ImgIgnored, ImgMarkedForDeletion:
		return false
	}
	return true
}

// Settled reports whether the image counts toward document completion.
// Ignored images are settled: the pipeline decided, on the record, that
// they carry no interpretable content.
func (s ImageState) Settled() bool {
	return s == ImgCompleted || s == ImgIgnored
}

// DiagramType classifies what role a diagram plays in its document.
type DiagramType string

const (
	DiagramTitle      DiagramType = "title"
	DiagramMethod     DiagramType = "method"
	DiagramSupporting DiagramType = "supporting"
	DiagramDecorative DiagramType = "decorative"
)

// Critical reports whether the diagram must be fully processed before
// its document can be considered complete at any threshold.
func (d DiagramType) Critical() bool {
	return d == DiagramTitle || d == DiagramMethod
}

// CompletionWeight is the contribution of one image of this type to the
// weighted document completion percentage.
func (d DiagramType) CompletionWeight() float64 {
	switch d {
	case DiagramTitle, DiagramMethod:
		return 2.0
	case DiagramDecorative:
		return 0.1
	default:
		return 1.0
	}
}

// Valid reports whether the diagram type is one of the known values.
func (d DiagramType) Valid() bool {
	switch d {
	case DiagramTitle, DiagramMethod, DiagramSupporting, DiagramDecorative:
		return true
	}
	return false
}

// Image is a visual asset extracted from a document. Its corpus is
// inherited from the owning document and cannot diverge.
type Image struct {
	// ID is the unique identifier for the image.
	ID string

	// DocumentID links to the owning document.
	DocumentID string

	// CorpusID mirrors the owning document's corpus.
	CorpusID string

	// Fingerprint is the perceptual hash as a hex string (64-bit).
	Fingerprint string

	// State is the current lifecycle state.
	State ImageState

	// DiagramType classifies the diagram's role.
	DiagramType DiagramType

	// Width and Height in pixels, used as duplicate tie-breaks.
	Width  int
	Height int

	// ByteSize of the encoded image, used as a duplicate tie-break.
	ByteSize int

	// OCRAttempts and VisionAttempts count engine invocations across
	// retries. Every attempt's output is stored, not just the best.
	OCRAttempts    int
	VisionAttempts int

	// CanonicalID links a duplicate to its canonical image, nil for
	// canonical and unique images.
	CanonicalID *string

	// Description is the synthesised natural-language interpretation.
	Description string

	// DescriptionConfidence is the synthesis confidence for Description.
	DescriptionConfidence float64

	// HumanValidated marks descriptions approved by a reviewer.
	HumanValidated bool

	// Epoch is the reprocessing round this interpretation belongs to.
	Epoch int

	// CreatedAt is when the image was extracted.
	CreatedAt time.Time

	// UpdatedAt is when the image last changed.
	UpdatedAt time.Time
}

// ImageVersion preserves an image's interpretation from a prior epoch.
// Reprocessing must never overwrite a previously approved result.
type ImageVersion struct {
	// ID is the unique identifier for the version row.
	ID string

	// ImageID links to the image this version belongs to.
	ImageID string

	// Epoch is the reprocessing round the interpretation was made in.
	Epoch int

	// Description is the preserved interpretation.
	Description string

	// DescriptionConfidence is the preserved confidence.
	DescriptionConfidence float64

	// HumanValidated records whether a reviewer approved it.
	HumanValidated bool

	// PreservedAt is when the version was captured.
	PreservedAt time.Time
}
