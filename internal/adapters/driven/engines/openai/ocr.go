package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/casefile-labs/verity/internal/core/domain"
	"github.com/casefile-labs/verity/internal/core/ports/driven"
)

// Ensure OCREngine implements the interface.
var _ driven.OCREngine = (*OCREngine)(nil)

const ocrPrompt = `Extract ALL text visible in this diagram, verbatim.
Include labels, annotations, figure numbers and axis text. Preserve
reading order top to bottom, left to right. Respond with JSON:
{"text": "...", "confidence": 0.0-1.0}
Confidence reflects how legible the text was. Empty text with high
confidence means the image genuinely contains no text.`

// OCREngine extracts text from diagram images via a vision-capable
// chat model.
type OCREngine struct {
	client *Client
	id     string
}

// NewOCREngine creates an OCR engine on a shared client. The id appears
// in attempt records and provenance.
func NewOCREngine(client *Client, id string) *OCREngine {
	if id == "" {
		id = "openai-ocr"
	}
	return &OCREngine{client: client, id: id}
}

// ID identifies the engine in attempt records.
func (e *OCREngine) ID() string { return e.id }

// ExtractText runs OCR on the image.
func (e *OCREngine) ExtractText(ctx context.Context, img domain.Image) (domain.OCRResult, error) {
	dataURL, err := e.client.imageDataURL(img.ID)
	if err != nil {
		return domain.OCRResult{}, &domain.StructuralCorruptionError{
			Resource: img.ID,
			Reason:   fmt.Sprintf("image payload unreadable: %v", err),
		}
	}

	content, err := e.client.chat(ctx, chatRequest{
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: ocrPrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		}},
		MaxTokens:      2048,
		ResponseFormat: &chatFormat{Type: "json_object"},
	})
	if err != nil {
		return domain.OCRResult{}, fmt.Errorf("ocr request: %w", err)
	}

	var parsed struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return domain.OCRResult{}, &domain.TransientEngineError{
			Engine: e.id,
			Err:    fmt.Errorf("malformed ocr payload: %w", err),
		}
	}

	return domain.OCRResult{
		Text:       strings.TrimSpace(parsed.Text),
		Confidence: parsed.Confidence,
		EngineID:   e.id,
	}, nil
}
