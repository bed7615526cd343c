package domain

// OverrideCategory classifies an administrative isolation override.
// Overrides additionally require a free-form justification of at least
// the configured minimum length.
type OverrideCategory string

const (
	// OverrideDataCorrection fixes an artifact filed into the wrong
	// corpus at ingestion.
	OverrideDataCorrection OverrideCategory = "data_correction"

	// OverrideLegalOrder executes a court-ordered cross-matter
	// disclosure.
	OverrideLegalOrder OverrideCategory = "legal_order"

	// OverrideCorpusMigration moves artifacts during a sanctioned
	// corpus split or merge.
	OverrideCorpusMigration OverrideCategory = "corpus_migration"
)

// Valid reports whether the category is one of the known values.
func (c OverrideCategory) Valid() bool {
	switch c {
	case OverrideDataCorrection, OverrideLegalOrder, OverrideCorpusMigration:
		return true
	}
	return false
}
