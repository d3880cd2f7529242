// Package presidio talks to a Microsoft Presidio analyzer service and
// converts its results into the entity types used by the rest of the
// service.
package presidio

// RemoteEntity is one finding in an analyzer response. Start and End are
// byte offsets into the analyzed text.
type RemoteEntity struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

// AnalyzeRequest is the body of POST /analyze.
type AnalyzeRequest struct {
	Text     string   `json:"text"`
	Language string   `json:"language"`
	Entities []string `json:"entities,omitempty"`
	// ScoreThreshold lets the analyzer drop low-confidence findings
	// server-side.
	ScoreThreshold float64 `json:"score_threshold,omitempty"`
}
