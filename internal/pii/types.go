// Package pii contains the core types and detectors for personally
// identifiable and legally sensitive information in documents.
//
// Detection runs in layers (see internal/detect for the orchestration):
//  1. Fast regex pass for structured patterns (email, phone, IDs, amounts)
//  2. NER model pass for context-dependent entities (names, organizations)
//  3. Optional remote analyzer pass with a much finer entity taxonomy
//
// This package owns layer 1 plus the stateful Anonymizer that rewrites a
// document once entities are known.
package pii

import "sort"

// EntityType classifies a detected span of sensitive text.
type EntityType string

// Entity types recognized across all detection layers.
const (
	Person              EntityType = "PERSON"
	Organization        EntityType = "ORGANIZATION"
	Location            EntityType = "LOCATION"
	Date                EntityType = "DATE"
	Money               EntityType = "MONEY"
	Law                 EntityType = "LAW"
	Case                EntityType = "CASE"
	Email               EntityType = "EMAIL"
	Phone               EntityType = "PHONE"
	Identification      EntityType = "IDENTIFICATION"
	TechnicalIdentifier EntityType = "TECHNICAL_IDENTIFIER"
)

// AllEntityTypes lists every entity type in a fixed order. Used to
// pre-populate per-type counter maps and to validate API input.
var AllEntityTypes = []EntityType{
	Person, Organization, Location, Date, Money, Law,
	Case, Email, Phone, Identification, TechnicalIdentifier,
}

// ShouldAnonymize reports whether spans of this type are ever replaced.
// Legal references must survive anonymization verbatim; everything else
// is replaced by default.
func (t EntityType) ShouldAnonymize() bool {
	return t != Law
}

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	for _, known := range AllEntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Entity is one detected span of sensitive text.
// Start and End are byte offsets into the original text, half-open
// [Start, End). After fusion no two entities in a result overlap.
type Entity struct {
	Type       EntityType `json:"entityType"`
	Text       string     `json:"text"`
	Start      int        `json:"start"`
	End        int        `json:"end"`
	Confidence float64    `json:"confidence"`

	// Replacement is the placeholder assigned by the Anonymizer.
	// Empty until anonymization runs.
	Replacement string `json:"replacement,omitempty"`
}

// Overlaps reports whether e and other share at least one byte.
func (e Entity) Overlaps(other Entity) bool {
	return !(e.End <= other.Start || e.Start >= other.End)
}

// SortByStart orders entities by start offset, earlier first.
// Ties keep their relative order stable.
func SortByStart(entities []Entity) {
	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].Start < entities[j].Start
	})
}

// AnonymizationSettings controls one anonymization pass.
type AnonymizationSettings struct {
	// EntityTypes limits which types are replaced.
	EntityTypes []EntityType `json:"entityTypes"`
	// ConfidenceThreshold drops detections below this score.
	ConfidenceThreshold float64 `json:"confidenceThreshold"`
	// PreserveLegalReferences keeps LAW spans out of the replacement set.
	PreserveLegalReferences bool `json:"preserveLegalReferences"`
	// ConsistentReplacement keeps the replacement map across calls so the
	// same surface text gets the same placeholder throughout a batch.
	ConsistentReplacement bool `json:"consistentReplacement"`
	// Language is the document language code ("en", "nl", "de", ...).
	Language string `json:"language"`
}

// Anonymizes reports whether settings include the given entity type.
func (s *AnonymizationSettings) Anonymizes(t EntityType) bool {
	for _, et := range s.EntityTypes {
		if et == t {
			return true
		}
	}
	return false
}

// DefaultSettings returns the settings used when a caller supplies none:
// the usual identifying types at a 0.7 threshold, legal references
// preserved, consistent replacement on.
func DefaultSettings() AnonymizationSettings {
	return AnonymizationSettings{
		EntityTypes: []EntityType{
			Person, Organization, Location, Date,
			Email, Phone, Identification,
		},
		ConfidenceThreshold:     0.7,
		PreserveLegalReferences: true,
		ConsistentReplacement:   true,
		Language:                "en",
	}
}

// AnonymizationResult is the output of one anonymization pass.
type AnonymizationResult struct {
	OriginalText   string   `json:"originalText"`
	AnonymizedText string   `json:"anonymizedText"`
	Entities       []Entity `json:"entities"`
	// Replacements pairs each original surface text with its placeholder,
	// in entity order.
	Replacements []Replacement `json:"replacements"`
}

// Replacement is one original → placeholder pair.
type Replacement struct {
	Original    string `json:"original"`
	Replacement string `json:"replacement"`
}
