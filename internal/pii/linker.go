package pii

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// honorifics are stripped before any name comparison. Both the dotted and
// bare forms appear in legal documents.
var honorifics = []string{
	"mr.", "mrs.", "ms.", "dr.", "prof.",
	"mr", "mrs", "ms", "dr", "prof",
}

// EntityLinker canonicalizes entity surface forms so that variants of one
// real-world entity ("John Doe", "Mr. John Doe", "J. Doe") are recognized
// as equivalent.
//
// This is a standalone heuristic: the Anonymizer keys its replacement map
// on verbatim text and does not consult a linker unless one is attached via
// Anonymizer.SetLinker. Callers needing cross-variant consistency must opt
// in explicitly.
type EntityLinker struct {
	// canonical form → known variations (normalized).
	variants map[string][]string
}

// NewEntityLinker returns an empty linker.
func NewEntityLinker() *EntityLinker {
	return &EntityLinker{variants: make(map[string][]string)}
}

// Canonical returns the canonical form for text: the recorded canonical if
// a linked variation matches, otherwise the normalized text itself.
func (l *EntityLinker) Canonical(text string) string {
	normalized := l.normalize(text)
	for canonical, vars := range l.variants {
		for _, v := range vars {
			if v == normalized {
				return canonical
			}
		}
	}
	return normalized
}

// LinkVariation records variation as an alias of canonical.
func (l *EntityLinker) LinkVariation(canonical, variation string) {
	ck := l.normalize(canonical)
	l.variants[ck] = append(l.variants[ck], l.normalize(variation))
	if len(l.variants[ck]) == 1 {
		// First link: the canonical form is its own variation.
		l.variants[ck] = append([]string{ck}, l.variants[ck]...)
	}
}

// MightBeSamePerson reports whether two surface forms plausibly refer to
// the same person: identical after normalization, one containing the other,
// or sharing a last word (assumed surname) plus at least one initial.
func (l *EntityLinker) MightBeSamePerson(a, b string) bool {
	na := l.normalize(a)
	nb := l.normalize(b)

	if na == nb {
		return true
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}

	lastA, okA := lastName(na)
	lastB, okB := lastName(nb)
	if okA && okB && lastA == lastB && shareInitial(na, nb) {
		return true
	}
	return false
}

// AutoLink compares every pair in candidates and records links for the ones
// judged to be the same person. O(n²) over the candidate list; callers pass
// the distinct person mentions of a document, not every token.
func (l *EntityLinker) AutoLink(candidates []string) {
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			if l.MightBeSamePerson(candidates[i], candidates[j]) {
				l.LinkVariation(candidates[i], candidates[j])
			}
		}
	}
}

// normalize strips honorific titles, applies Unicode NFC, lower-cases and
// trims. Comparisons all operate on this form.
func (l *EntityLinker) normalize(text string) string {
	s := norm.NFC.String(text)
	s = strings.ToLower(strings.TrimSpace(s))
	for _, title := range honorifics {
		s = strings.ReplaceAll(s, title+" ", "")
	}
	return strings.TrimSpace(s)
}

// lastName returns the final word of a multi-word name.
func lastName(name string) (string, bool) {
	words := strings.Fields(name)
	if len(words) < 2 {
		return "", false
	}
	return words[len(words)-1], true
}

// shareInitial reports whether any word initial appears in both names.
func shareInitial(a, b string) bool {
	initialsB := make(map[rune]bool)
	for _, w := range strings.Fields(b) {
		for _, r := range w {
			initialsB[r] = true
			break
		}
	}
	for _, w := range strings.Fields(a) {
		for _, r := range w {
			if initialsB[r] {
				return true
			}
			break
		}
	}
	return false
}
