package domain

import "time"

// TransformationKind names what a provenance record describes.
type TransformationKind string

// Transformation kinds recorded in the ledger.
const (
	TransformIngestion        TransformationKind = "ingestion"
	TransformNormalization    TransformationKind = "normalization"
	TransformTextExtraction   TransformationKind = "text_extraction"
	TransformImageExtraction  TransformationKind = "image_extraction"
	TransformOCR              TransformationKind = "ocr"
	TransformVisionAnalysis   TransformationKind = "vision_analysis"
	TransformSynthesis        TransformationKind = "synthesis"
	TransformEmbedding        TransformationKind = "embedding"
	TransformDuplicateCompare TransformationKind = "duplicate_comparison"
	TransformDuplicateLink    TransformationKind = "duplicate_link"
	TransformVersionPreserve  TransformationKind = "version_preserve"
	TransformHumanCorrection  TransformationKind = "human_correction"
	TransformRemoval          TransformationKind = "removal"
)

// AgentKind identifies what kind of actor performed a transformation.
type AgentKind string

const (
	AgentSystem AgentKind = "system"
	AgentModel  AgentKind = "model"
	AgentHuman  AgentKind = "human"
)

// ProvenanceRecord is an immutable edge in the artifact derivation DAG.
// Records are never mutated or deleted; corrections are new records.
// The graph formed by all records must stay acyclic: a record may never
// list an output that is a transitive input of itself.
type ProvenanceRecord struct {
	// ID is the unique identifier for the record.
	ID string

	// Inputs are the artifact IDs consumed. Empty only for root records
	// such as ingestion.
	Inputs []string

	// Outputs are the artifact IDs produced. Never empty.
	Outputs []string

	// Kind names the transformation.
	Kind TransformationKind

	// Agent identifies who or what performed it (engine ID, model name,
	// reviewer identity).
	Agent string

	// AgentKind classifies the agent.
	AgentKind AgentKind

	// Confidence is the transformation's confidence where one applies
	// (engine output, similarity score), nil otherwise.
	Confidence *float64

	// Note carries a short free-form detail, e.g. the duplicate band.
	Note string

	// RecordedAt is when the record was appended.
	RecordedAt time.Time
}
