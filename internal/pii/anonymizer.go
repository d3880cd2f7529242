package pii

import (
	"fmt"
	"strings"
	"sync"
)

// Anonymizer rewrites documents with consistent placeholders. Replacement
// state (map + per-type counters) lives for the lifetime of the instance:
// created empty, grows while a batch runs, cleared explicitly by the caller.
// It is never persisted.
//
// All state is guarded by one mutex held for the whole of an Anonymize or
// AnonymizeBatch call, so counter increments and map lookups stay atomic
// with respect to concurrent redaction requests. Callers serialize here;
// that is acceptable because model inference, not redaction, is the
// throughput bottleneck.
type Anonymizer struct {
	detector *PatternDetector

	mu           sync.Mutex
	replacements map[string]string
	counters     map[EntityType]int
	linker       *EntityLinker // nil → verbatim-text consistency keys
}

// NewAnonymizer returns an Anonymizer using the given pattern detector.
func NewAnonymizer(detector *PatternDetector) *Anonymizer {
	return &Anonymizer{
		detector:     detector,
		replacements: make(map[string]string),
		counters:     make(map[EntityType]int),
	}
}

// SetLinker attaches an EntityLinker. When set, PERSON replacements are
// keyed by the linker's canonical form, so "John Doe" and "Mr. John Doe"
// share one placeholder. Without it only exact-text repeats are
// deduplicated.
func (a *Anonymizer) SetLinker(l *EntityLinker) {
	a.mu.Lock()
	a.linker = l
	a.mu.Unlock()
}

// Anonymize detects entities in text and rewrites it according to settings.
func (a *Anonymizer) Anonymize(text string, settings AnonymizationSettings) AnonymizationResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.anonymizeLocked(text, settings)
}

// AnonymizeBatch anonymizes documents in order under one lock acquisition,
// so with ConsistentReplacement the whole batch shares one numbering.
func (a *Anonymizer) AnonymizeBatch(texts []string, settings AnonymizationSettings) []AnonymizationResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	results := make([]AnonymizationResult, 0, len(texts))
	for _, text := range texts {
		results = append(results, a.anonymizeLocked(text, settings))
	}
	return results
}

// AnonymizeEntities rewrites text using entities found by an external
// detection pass (such as the fused multi-layer detector) instead of the
// built-in pattern pass. Filtering, numbering and consistency behave
// exactly as in Anonymize.
func (a *Anonymizer) AnonymizeEntities(text string, entities []Entity, settings AnonymizationSettings) AnonymizationResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.applyLocked(text, entities, settings)
}

// AnonymizeEntitiesBatch is AnonymizeEntities over parallel slices of
// documents and their detections, under one lock acquisition. Like
// AnonymizeBatch, the whole batch shares one numbering and no other
// caller's replacements interleave with it.
func (a *Anonymizer) AnonymizeEntitiesBatch(texts []string, entities [][]Entity, settings AnonymizationSettings) []AnonymizationResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	results := make([]AnonymizationResult, 0, len(texts))
	for i, text := range texts {
		results = append(results, a.applyLocked(text, entities[i], settings))
	}
	return results
}

func (a *Anonymizer) anonymizeLocked(text string, settings AnonymizationSettings) AnonymizationResult {
	entities := a.detector.Detect(text)
	entities = append(entities, a.detector.DetectPersonNames(text)...)
	return a.applyLocked(text, entities, settings)
}

func (a *Anonymizer) applyLocked(text string, entities []Entity, settings AnonymizationSettings) AnonymizationResult {
	// Each document numbers independently unless consistency is requested.
	if !settings.ConsistentReplacement {
		a.replacements = make(map[string]string)
		a.counters = make(map[EntityType]int)
	}

	SortByStart(entities)

	kept := entities[:0]
	for _, e := range entities {
		if e.Confidence < settings.ConfidenceThreshold || !settings.Anonymizes(e.Type) {
			continue
		}
		if settings.PreserveLegalReferences && e.Type == Law {
			continue
		}
		kept = append(kept, e)
	}
	kept = removeOverlaps(kept)

	for i := range kept {
		if kept[i].Type.ShouldAnonymize() {
			kept[i].Replacement = a.replacementFor(kept[i])
		} else {
			// Defensive: LAW normally never reaches this point because the
			// settings filter removed it above.
			kept[i].Replacement = kept[i].Text
		}
	}

	replacements := make([]Replacement, 0, len(kept))
	for _, e := range kept {
		replacements = append(replacements, Replacement{Original: e.Text, Replacement: e.Replacement})
	}

	return AnonymizationResult{
		OriginalText:   text,
		AnonymizedText: rewrite(text, kept),
		Entities:       kept,
		Replacements:   replacements,
	}
}

// replacementFor returns the placeholder for an entity, reusing the stored
// one when the consistency key has been seen before.
func (a *Anonymizer) replacementFor(e Entity) string {
	key := e.Text
	if a.linker != nil && e.Type == Person {
		key = a.linker.Canonical(e.Text)
	}

	if r, ok := a.replacements[key]; ok {
		return r
	}

	a.counters[e.Type]++
	n := a.counters[e.Type]

	var r string
	switch e.Type {
	case Person:
		r = fmt.Sprintf("[PERSON-%s]", letterIndex(n))
	case Organization:
		r = fmt.Sprintf("[ORGANIZATION-%s]", letterIndex(n))
	case Location:
		r = fmt.Sprintf("[LOCATION-%s]", letterIndex(n))
	case Date:
		r = fmt.Sprintf("[DATE-%d]", n)
	case Money:
		r = fmt.Sprintf("[AMOUNT-%d]", n)
	case Email:
		r = fmt.Sprintf("[EMAIL-%d]", n)
	case Phone:
		r = fmt.Sprintf("[PHONE-%d]", n)
	case Case:
		r = fmt.Sprintf("[CASE-%d]", n)
	case Identification:
		r = fmt.Sprintf("[ID-%d]", n)
	case TechnicalIdentifier:
		r = fmt.Sprintf("[TECH-ID-%d]", n)
	default:
		r = fmt.Sprintf("[REDACTED-%d]", n)
	}

	a.replacements[key] = r
	return r
}

// rewrite applies replacements in one left-to-right scan. Entities must be
// sorted and non-overlapping, which the detector pass guarantees.
func rewrite(text string, entities []Entity) string {
	if len(entities) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, e := range entities {
		b.WriteString(text[last:e.Start])
		if e.Replacement != "" {
			b.WriteString(e.Replacement)
		} else {
			b.WriteString(e.Text)
		}
		last = e.End
	}
	b.WriteString(text[last:])
	return b.String()
}

// letterIndex converts 1-based n to spreadsheet column letters:
// 1→A, 26→Z, 27→AA.
func letterIndex(n int) string {
	if n <= 0 {
		return "A"
	}
	var b []byte
	for n > 0 {
		rem := (n - 1) % 26
		b = append([]byte{byte('A' + rem)}, b...)
		n = (n - 1) / 26
	}
	return string(b)
}

// ClearReplacements resets the replacement map and counters.
func (a *Anonymizer) ClearReplacements() {
	a.mu.Lock()
	a.replacements = make(map[string]string)
	a.counters = make(map[EntityType]int)
	a.mu.Unlock()
}

// Statistics returns a copy of the per-type replacement counters.
func (a *Anonymizer) Statistics() map[EntityType]int {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := make(map[EntityType]int, len(a.counters))
	for t, n := range a.counters {
		stats[t] = n
	}
	return stats
}
