package pii

import (
	_ "embed"
	"regexp"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/logger"
)

//go:embed patterns.yaml
var patternsYAML []byte

// patternConfidence is the score assigned to every regex match. The pattern
// layer is high precision but knows nothing about context, so it sits below
// a confident model prediction and above the broad name heuristic.
const patternConfidence = 0.85

// nameConfidence is the score for the capitalized-words person heuristic.
const nameConfidence = 0.75

// patternSet is one entity type with its ordered, compiled regex list.
type patternSet struct {
	entityType EntityType
	regexps    []*regexp.Regexp
}

// PatternDetector is the regex detection layer. It holds per-type pattern
// lists plus a whitelist of legal-reference shapes that suppress non-LAW
// matches, so statute citations survive even when they look like
// identifiers.
//
// Construction never fails: a pattern that does not compile is logged and
// omitted from its type's list.
type PatternDetector struct {
	patterns  []patternSet
	whitelist []*regexp.Regexp

	namePattern  *regexp.Regexp
	contextWords map[string]bool
	exclusions   map[string]bool
	legalTokens  map[string]bool

	log *logger.Logger
}

// patternFile mirrors the embedded patterns.yaml layout.
type patternFile struct {
	Recognizers []struct {
		Type     string   `yaml:"type"`
		Patterns []string `yaml:"patterns"`
	} `yaml:"recognizers"`
	Whitelist []string `yaml:"whitelist"`
}

// NewPatternDetector compiles the embedded pattern config.
func NewPatternDetector(log *logger.Logger) *PatternDetector {
	d := &PatternDetector{
		// Matches 2-4 capitalized words.
		namePattern: regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,3}\b`),
		contextWords: toLowerSet(
			"Contact", "Call", "Email", "Under", "Dear", "From",
			"To", "Attention", "Regarding", "Per", "See", "Between",
		),
		exclusions: toLowerSet(
			"United States", "Supreme Court", "District Court",
			"Court Of", "State Of", "City Of", "County Of",
		),
		legalTokens: toLowerSet(
			"Court", "Act", "Code", "Amendment", "Article",
			"Section", "Statute", "Regulation", "Law",
		),
		log: log,
	}
	d.loadPatterns()
	return d
}

func (d *PatternDetector) loadPatterns() {
	var file patternFile
	if err := yaml.Unmarshal(patternsYAML, &file); err != nil {
		// The config is embedded and covered by tests; an unparseable file
		// leaves the detector empty rather than failing construction.
		d.log.Errorf("pattern_config", "parse embedded patterns.yaml: %v", err)
		return
	}

	for _, rec := range file.Recognizers {
		set := patternSet{entityType: EntityType(rec.Type)}
		for _, expr := range rec.Patterns {
			re, err := regexp.Compile(expr)
			if err != nil {
				d.log.Warnf("pattern_compile", "skipping %s pattern %q: %v", rec.Type, expr, err)
				continue
			}
			set.regexps = append(set.regexps, re)
		}
		if len(set.regexps) > 0 {
			d.patterns = append(d.patterns, set)
		}
	}

	for _, expr := range file.Whitelist {
		re, err := regexp.Compile(expr)
		if err != nil {
			d.log.Warnf("pattern_compile", "skipping whitelist pattern %q: %v", expr, err)
			continue
		}
		d.whitelist = append(d.whitelist, re)
	}
}

// Detect runs every pattern over text and returns a sorted, non-overlapping
// entity list. Non-LAW matches whose text also matches the legal whitelist
// are dropped. Same-layer overlaps keep the longer match.
func (d *PatternDetector) Detect(text string) []Entity {
	var entities []Entity

	for _, set := range d.patterns {
		for _, re := range set.regexps {
			for _, loc := range re.FindAllStringIndex(text, -1) {
				matched := text[loc[0]:loc[1]]

				if set.entityType != Law && d.isWhitelisted(matched) {
					continue
				}

				entities = append(entities, Entity{
					Type:       set.entityType,
					Text:       matched,
					Start:      loc[0],
					End:        loc[1],
					Confidence: patternConfidence,
				})
			}
		}
	}

	SortByStart(entities)
	return removeOverlaps(entities)
}

func (d *PatternDetector) isWhitelisted(text string) bool {
	for _, re := range d.whitelist {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// removeOverlaps scans position-sorted entities and keeps at most one span
// per region: a match starting at or after the previous kept end is kept; an
// overlapping match replaces the previous one only when strictly longer.
func removeOverlaps(entities []Entity) []Entity {
	if len(entities) == 0 {
		return entities
	}

	result := make([]Entity, 0, len(entities))
	lastEnd := 0

	for _, e := range entities {
		if e.Start >= lastEnd {
			lastEnd = e.End
			result = append(result, e)
			continue
		}
		if e.End > lastEnd && len(result) > 0 {
			prev := &result[len(result)-1]
			if len(e.Text) > len(prev.Text) {
				*prev = e
				lastEnd = e.End
			}
		}
	}

	return result
}

// DetectPersonNames runs the broad capitalized-words heuristic. It is lower
// precision than Detect and kept separate so callers can opt out.
//
// A match is first stripped of leading context words ("Contact John Doe" →
// "John Doe"), then rejected if it equals a known non-name phrase or
// contains a legal vocabulary token.
func (d *PatternDetector) DetectPersonNames(text string) []Entity {
	var entities []Entity

	for _, loc := range d.namePattern.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		matched := text[start:end]

		matched, start = d.stripContextWords(matched, start)
		if matched == "" {
			continue
		}
		if !d.isLikelyName(matched) {
			continue
		}

		entities = append(entities, Entity{
			Type:       Person,
			Text:       matched,
			Start:      start,
			End:        end,
			Confidence: nameConfidence,
		})
	}

	return entities
}

// stripContextWords drops leading words that introduce a name without being
// part of it, advancing the start offset accordingly.
func (d *PatternDetector) stripContextWords(matched string, start int) (string, int) {
	for {
		i := strings.IndexFunc(matched, unicode.IsSpace)
		if i < 0 {
			return matched, start
		}
		if !d.contextWords[strings.ToLower(matched[:i])] {
			return matched, start
		}
		rest := strings.TrimLeftFunc(matched[i:], unicode.IsSpace)
		start += len(matched) - len(rest)
		matched = rest
	}
}

func (d *PatternDetector) isLikelyName(text string) bool {
	if d.exclusions[strings.ToLower(text)] {
		return false
	}
	// Needs at least two words after context stripping.
	words := strings.Fields(text)
	if len(words) < 2 {
		return false
	}
	for _, w := range words {
		if d.legalTokens[strings.ToLower(w)] {
			return false
		}
	}
	return true
}

func toLowerSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = true
	}
	return set
}
