package types

// =============================================================================
// EXTRACTED FACTS
// =============================================================================

// FactType tags the variant of an extracted fact.
type FactType string

const (
	FactNumerical FactType = "numerical"
	FactBoolean   FactType = "boolean"
	FactTemporal  FactType = "temporal"
	FactStatement FactType = "statement"
)

// Fact is a typed comparison unit extracted from a story event or an
// observation. Exactly one variant's fields are meaningful, selected by Type:
// numerical (Value, Unit), boolean (BoolValue), temporal (Token),
// statement (Text). OriginID/OriginKey carry provenance back to the source
// event id or observation key; Confidence is inherited from the source.
type Fact struct {
	Type       FactType `json:"type"`
	Value      float64  `json:"value,omitempty"`
	Unit       string   `json:"unit,omitempty"`
	BoolValue  bool     `json:"bool_value,omitempty"`
	Token      string   `json:"token,omitempty"`
	Text       string   `json:"text,omitempty"`
	OriginID   string   `json:"origin_id,omitempty"`
	OriginKey  string   `json:"origin_key,omitempty"`
	Confidence float64  `json:"confidence"`
}

// Origin returns the best available provenance identifier for the fact.
func (f Fact) Origin() string {
	if f.OriginID != "" {
		return f.OriginID
	}
	return f.OriginKey
}

// =============================================================================
// CONFLICT RESULTS
// =============================================================================

// ConflictType classifies a detected contradiction between two facts.
type ConflictType string

const (
	ConflictFactualContradiction  ConflictType = "factual_contradiction"
	ConflictTemporalInconsistency ConflictType = "temporal_inconsistency"
	ConflictLogicalImpossibility  ConflictType = "logical_impossibility"
	ConflictValueMismatch         ConflictType = "value_mismatch"
	ConflictContextViolation      ConflictType = "context_violation"
)

// Severity grades how badly a conflict damages narrative coherence.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ConflictResult reports one pairwise contradiction between a new fact and
// an existing fact.
type ConflictResult struct {
	HasConflict         bool         `json:"has_conflict"`
	ConflictType        ConflictType `json:"conflict_type"`
	Severity            Severity     `json:"severity"`
	Description         string       `json:"description"`
	NewOrigin           string       `json:"new_origin"`
	ExistingOrigin      string       `json:"existing_origin"`
	Confidence          float64      `json:"confidence"`
	SuggestedResolution string       `json:"suggested_resolution"`
}
