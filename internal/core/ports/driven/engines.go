package driven

import (
	"context"

	"github.com/casefile-labs/verity/internal/core/domain"
)

// OCREngine extracts text from a visual asset. The pipeline may invoke
// several engines for one image and stores every attempt.
type OCREngine interface {
	// ExtractText runs OCR on the image.
	ExtractText(ctx context.Context, img domain.Image) (domain.OCRResult, error)

	// ID identifies the engine in attempt records.
	ID() string
}

// VisionEngine produces structured analysis of a visual asset.
type VisionEngine interface {
	// Analyze detects objects and spatial relations in the image.
	Analyze(ctx context.Context, img domain.Image) (domain.VisionResult, error)
}

// SynthesisService turns OCR text and vision output into a
// natural-language description.
type SynthesisService interface {
	// Synthesize produces a description for the image given its OCR
	// text, vision result and surrounding document context.
	Synthesize(ctx context.Context, ocrText string, vision domain.VisionResult, docContext string) (domain.SynthesisResult, error)
}

// EmbeddingService generates vector embeddings from text.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Extractor is the document-format black box: it normalises raw
// filings, extracts the text body and isolates embedded visual assets.
// The parsing grammar behind it is out of scope for the core.
type Extractor interface {
	// Normalize standardises the raw source format and returns the
	// normalised content hash.
	Normalize(ctx context.Context, doc domain.Document) (string, error)

	// ExtractText returns the document's text body and a confidence.
	ExtractText(ctx context.Context, doc domain.Document) (string, float64, error)

	// ExtractImages isolates the embedded visual assets. Returned
	// images carry fingerprints and diagram classifications.
	ExtractImages(ctx context.Context, doc domain.Document) ([]domain.Image, error)
}
