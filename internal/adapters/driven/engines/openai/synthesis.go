package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/casefile-labs/verity/internal/core/domain"
	"github.com/casefile-labs/verity/internal/core/ports/driven"
)

// Ensure SynthesisService implements the interface.
var _ driven.SynthesisService = (*SynthesisService)(nil)

const synthesisPrompt = `You are describing a technical diagram for a
legal evidence index. Combine the OCR text and the vision analysis
below into one precise natural-language description of what the diagram
shows. Do not speculate beyond the evidence. Respond with JSON:
{"description": "...", "confidence": 0.0-1.0}

Document context:
%s

OCR text:
%s

Detected objects: %s
Spatial relations: %s`

// SynthesisService turns OCR text and vision output into a description.
type SynthesisService struct {
	client *Client
}

// NewSynthesisService creates a synthesis service on a shared client.
func NewSynthesisService(client *Client) *SynthesisService {
	return &SynthesisService{client: client}
}

// Synthesize produces a description for the image given its OCR text,
// vision result and surrounding document context.
func (s *SynthesisService) Synthesize(ctx context.Context, ocrText string, vision domain.VisionResult, docContext string) (domain.SynthesisResult, error) {
	prompt := fmt.Sprintf(synthesisPrompt,
		truncate(docContext, 2000),
		truncate(ocrText, 4000),
		strings.Join(vision.Objects, "; "),
		strings.Join(vision.SpatialRelations, "; "))

	content, err := s.client.chat(ctx, chatRequest{
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:      1024,
		Temperature:    0.2,
		ResponseFormat: &chatFormat{Type: "json_object"},
	})
	if err != nil {
		return domain.SynthesisResult{}, fmt.Errorf("synthesis request: %w", err)
	}

	var parsed struct {
		Description string  `json:"description"`
		Confidence  float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return domain.SynthesisResult{}, &domain.TransientEngineError{
			Engine: "openai-synthesis",
			Err:    fmt.Errorf("malformed synthesis payload: %w", err),
		}
	}

	return domain.SynthesisResult{
		Description: strings.TrimSpace(parsed.Description),
		Confidence:  parsed.Confidence,
	}, nil
}

// truncate bounds prompt sections so oversized documents cannot blow the
// context window.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
