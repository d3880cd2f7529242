// Package detect combines the pattern, NER and remote analyzer layers into
// a single detector with runtime-selectable modes and graceful fallback.
package detect

import "fmt"

// Mode selects which detection layers run and how their results combine.
type Mode string

const (
	// ModePatternOnly runs only the regex layer.
	ModePatternOnly Mode = "pattern_only"
	// ModeNerOnly runs only the local model layer.
	ModeNerOnly Mode = "ner_only"
	// ModeHybrid fuses the pattern and model layers.
	ModeHybrid Mode = "hybrid"
	// ModePresidioOnly runs only the remote analyzer.
	ModePresidioOnly Mode = "presidio_only"
	// ModeFull fuses all three layers.
	ModeFull Mode = "full"

	// modePatternRemote is the degraded form of ModeFull when the model
	// layer is unavailable: the pattern and remote layers still run. Not
	// requestable through ParseMode.
	modePatternRemote Mode = "pattern_remote"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePatternOnly, ModeNerOnly, ModeHybrid, ModePresidioOnly, ModeFull:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown detection mode %q", s)
}

// LayerStatus reports which layers are currently usable.
type LayerStatus struct {
	Pattern bool `json:"pattern"`
	Ner     bool `json:"ner"`
	Remote  bool `json:"remote"`
}

// AvailableLayers counts usable layers.
func (s LayerStatus) AvailableLayers() int {
	n := 0
	for _, ok := range []bool{s.Pattern, s.Ner, s.Remote} {
		if ok {
			n++
		}
	}
	return n
}

// RecommendedMode picks the richest mode the current layers support.
func (s LayerStatus) RecommendedMode() Mode {
	switch {
	case s.Ner && s.Remote:
		return ModeFull
	case s.Ner:
		return ModeHybrid
	case s.Remote:
		return ModePresidioOnly
	default:
		return ModePatternOnly
	}
}
