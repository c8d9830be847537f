package model

import (
	"time"

	"github.com/lumenreach/visibility-cli/pkg/wikidata"
)

// NotabilityAssessment is the confidence-scored verdict on whether a
// business has enough independent public references for a knowledge-graph
// entry. Insufficiency is an outcome, not an error.
type NotabilityAssessment struct {
	IsNotable              bool    `json:"is_notable"`
	Confidence             float64 `json:"confidence"` // 0-1, continuous even when not notable
	Recommendation         string  `json:"recommendation"`
	SeriousReferenceCount  int     `json:"serious_reference_count"`
	PubliclyAvailableCount int     `json:"publicly_available_count"`
	IndependentCount       int     `json:"independent_count"`
}

// WikidataEntity is the currently published knowledge-graph state for a
// business. Republishing creates a new version rather than mutating history.
type WikidataEntity struct {
	ID              string          `json:"id"`
	BusinessID      string          `json:"business_id"`
	QID             string          `json:"qid"`
	EntityData      wikidata.Entity `json:"entity_data"`
	PublishedTo     string          `json:"published_to"`
	Version         int             `json:"version"`
	EnrichmentLevel string          `json:"enrichment_level"`
	CreatedAt       time.Time       `json:"created_at"`
}

// StoredManualEntity points at a durably stored entity snapshot awaiting
// human review. Retained until explicitly deleted.
type StoredManualEntity struct {
	BusinessID       string               `json:"business_id"`
	BusinessName     string               `json:"business_name"`
	EntityFileName   string               `json:"entity_file_name"`
	MetadataFileName string               `json:"metadata_file_name"`
	CanPublish       bool                 `json:"can_publish"`
	Notability       NotabilityAssessment `json:"notability"`
	StoredAt         time.Time            `json:"stored_at"`
}
