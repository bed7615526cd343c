package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/casefile-labs/verity/internal/core/domain"
	"github.com/casefile-labs/verity/internal/core/ports/driven"
)

// Ensure VisionEngine implements the interface.
var _ driven.VisionEngine = (*VisionEngine)(nil)

const visionPrompt = `Analyze this technical diagram from a patent or
legal filing. Identify the drawn elements and how they relate
spatially. Respond with JSON:
{"objects": ["..."], "spatial_relations": ["..."], "confidence": 0.0-1.0}
objects are the distinct drawn elements; spatial_relations describe how
they connect (e.g. "valve 12 feeds into chamber 14").`

// VisionEngine produces structured analysis of diagram images.
type VisionEngine struct {
	client *Client
}

// NewVisionEngine creates a vision engine on a shared client.
func NewVisionEngine(client *Client) *VisionEngine {
	return &VisionEngine{client: client}
}

// Analyze detects objects and spatial relations in the image.
func (e *VisionEngine) Analyze(ctx context.Context, img domain.Image) (domain.VisionResult, error) {
	dataURL, err := e.client.imageDataURL(img.ID)
	if err != nil {
		return domain.VisionResult{}, &domain.StructuralCorruptionError{
			Resource: img.ID,
			Reason:   fmt.Sprintf("image payload unreadable: %v", err),
		}
	}

	content, err := e.client.chat(ctx, chatRequest{
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: visionPrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		}},
		MaxTokens:      2048,
		ResponseFormat: &chatFormat{Type: "json_object"},
	})
	if err != nil {
		return domain.VisionResult{}, fmt.Errorf("vision request: %w", err)
	}

	var parsed struct {
		Objects          []string `json:"objects"`
		SpatialRelations []string `json:"spatial_relations"`
		Confidence       float64  `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return domain.VisionResult{}, &domain.TransientEngineError{
			Engine: "openai-vision",
			Err:    fmt.Errorf("malformed vision payload: %w", err),
		}
	}

	return domain.VisionResult{
		Objects:          parsed.Objects,
		SpatialRelations: parsed.SpatialRelations,
		Confidence:       parsed.Confidence,
	}, nil
}
