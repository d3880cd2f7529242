package presidio

import (
	"strings"

	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/pii"
)

// Mapper converts between analyzer entity type names and internal entity
// types. The analyzer side has 50+ names; many collapse onto one internal
// type.
type Mapper struct {
	toInternal map[string]pii.EntityType
	toRemote   map[pii.EntityType]string
}

// National id and license type names that all map to Identification.
var idTypeNames = []string{
	"US_SSN", "US_ITIN", "US_PASSPORT", "US_DRIVER_LICENSE",
	"UK_NHS", "UK_NINO",
	"AU_ABN", "AU_ACN", "AU_TFN", "AU_MEDICARE",
	"IN_AADHAAR", "IN_PAN", "IN_VOTER",
	"SG_NRIC_FIN",
	"IT_FISCAL_CODE", "IT_DRIVER_LICENSE", "IT_VAT_CODE", "IT_PASSPORT", "IT_IDENTITY_CARD",
	"ES_NIF", "ES_NIE",
	"PL_PESEL", "PL_NIP", "PL_REGON",
	"MEDICAL_LICENSE", "NRP",
}

// NewMapper builds the default bidirectional mapping.
func NewMapper() *Mapper {
	toInternal := map[string]pii.EntityType{
		"PERSON": pii.Person,

		"LOCATION": pii.Location,
		"GPE":      pii.Location,
		"LOC":      pii.Location,

		"ORGANIZATION": pii.Organization,
		"ORG":          pii.Organization,

		"EMAIL_ADDRESS": pii.Email,
		"EMAIL":         pii.Email,

		"PHONE_NUMBER": pii.Phone,
		"PHONE":        pii.Phone,

		"DATE_TIME":     pii.Date,
		"DATE":          pii.Date,
		"TIME":          pii.Date,
		"DATE_OF_BIRTH": pii.Date,

		"MONEY": pii.Money,

		"CREDIT_CARD":    pii.Identification,
		"IBAN_CODE":      pii.Identification,
		"US_BANK_NUMBER": pii.Identification,
		"CRYPTO":         pii.Identification,

		"IP_ADDRESS":  pii.TechnicalIdentifier,
		"URL":         pii.TechnicalIdentifier,
		"MAC_ADDRESS": pii.TechnicalIdentifier,
	}
	for _, name := range idTypeNames {
		toInternal[name] = pii.Identification
	}

	// One canonical remote name per internal type. Case and Law have no
	// analyzer equivalent; the names below only matter for outbound
	// requests that scope entity types.
	toRemote := map[pii.EntityType]string{
		pii.Person:              "PERSON",
		pii.Location:            "LOCATION",
		pii.Organization:        "ORGANIZATION",
		pii.Email:               "EMAIL_ADDRESS",
		pii.Phone:               "PHONE_NUMBER",
		pii.Date:                "DATE_TIME",
		pii.Money:               "MONEY",
		pii.Identification:      "US_SSN",
		pii.TechnicalIdentifier: "IP_ADDRESS",
		pii.Case:                "CASE_NUMBER",
		pii.Law:                 "LAW_REFERENCE",
	}

	return &Mapper{toInternal: toInternal, toRemote: toRemote}
}

// ToInternal maps an analyzer type name to an internal entity type.
func (m *Mapper) ToInternal(remoteType string) (pii.EntityType, bool) {
	t, ok := m.toInternal[remoteType]
	return t, ok
}

// ToRemote maps an internal entity type to its canonical analyzer name.
func (m *Mapper) ToRemote(t pii.EntityType) (string, bool) {
	name, ok := m.toRemote[t]
	return name, ok
}

// Recognized reports whether the analyzer type name has a mapping.
func (m *Mapper) Recognized(remoteType string) bool {
	_, ok := m.toInternal[remoteType]
	return ok
}

// RemoteTypesFor lists every analyzer name that maps onto t.
func (m *Mapper) RemoteTypesFor(t pii.EntityType) []string {
	var names []string
	for name, internal := range m.toInternal {
		if internal == t {
			names = append(names, name)
		}
	}
	return names
}

// AddMapping registers a custom analyzer type name. The reverse direction
// is only set when the internal type has no canonical name yet.
func (m *Mapper) AddMapping(remoteType string, t pii.EntityType) {
	m.toInternal[remoteType] = t
	if _, ok := m.toRemote[t]; !ok {
		m.toRemote[t] = remoteType
	}
}

// ConvertEntity resolves one analyzer finding against the source text.
// Unknown types and out-of-bounds spans are dropped.
func (m *Mapper) ConvertEntity(re RemoteEntity, text string) (pii.Entity, bool) {
	t, ok := m.ToInternal(re.EntityType)
	if !ok {
		return pii.Entity{}, false
	}
	if re.Start < 0 || re.End > len(text) || re.Start >= re.End {
		return pii.Entity{}, false
	}
	return pii.Entity{
		Type:       t,
		Text:       text[re.Start:re.End],
		Start:      re.Start,
		End:        re.End,
		Confidence: re.Score,
	}, true
}

// ConvertEntities converts a batch, dropping unmappable findings.
func (m *Mapper) ConvertEntities(remote []RemoteEntity, text string) []pii.Entity {
	entities := make([]pii.Entity, 0, len(remote))
	for _, re := range remote {
		if e, ok := m.ConvertEntity(re, text); ok {
			entities = append(entities, e)
		}
	}
	return entities
}

// ConfidenceAdjuster nudges analyzer scores using nearby context words and
// filters out low-confidence findings.
type ConfidenceAdjuster struct {
	minConfidence   float64
	contextKeywords map[pii.EntityType][]string
}

// NewConfidenceAdjuster builds an adjuster with the default keyword sets
// and a 0.5 confidence floor.
func NewConfidenceAdjuster() *ConfidenceAdjuster {
	return &ConfidenceAdjuster{
		minConfidence: 0.5,
		contextKeywords: map[pii.EntityType][]string{
			pii.Person: {
				"mr.", "mrs.", "ms.", "dr.", "prof.",
				"attorney", "counsel", "plaintiff", "defendant", "witness", "client",
			},
			pii.Organization: {
				"inc.", "llc", "ltd.", "corp.",
				"company", "firm", "court", "tribunal",
			},
			pii.Law: {
				"article", "section", "§", "gdpr",
				"regulation", "directive", "statute",
			},
		},
	}
}

// Adjust returns the entity confidence boosted by 0.05 per matched context
// keyword, capped at 1.0.
func (a *ConfidenceAdjuster) Adjust(e pii.Entity, surrounding string) float64 {
	confidence := e.Confidence
	lower := strings.ToLower(surrounding)
	for _, kw := range a.contextKeywords[e.Type] {
		if strings.Contains(lower, kw) {
			confidence += 0.05
		}
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

// Filter drops entities below the confidence floor.
func (a *ConfidenceAdjuster) Filter(entities []pii.Entity) []pii.Entity {
	kept := entities[:0]
	for _, e := range entities {
		if e.Confidence >= a.minConfidence {
			kept = append(kept, e)
		}
	}
	return kept
}

// SetMinConfidence clamps min into [0,1] and installs it as the floor.
func (a *ConfidenceAdjuster) SetMinConfidence(min float64) {
	if min < 0 {
		min = 0
	}
	if min > 1 {
		min = 1
	}
	a.minConfidence = min
}
