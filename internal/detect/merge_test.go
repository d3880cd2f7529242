package detect

import (
	"testing"

	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/pii"
)

func TestMergeCandidates_Empty(t *testing.T) {
	if got := mergeCandidates(nil); got != nil {
		t.Errorf("mergeCandidates(nil) = %v, want nil", got)
	}
}

func TestMergeCandidates_CollapsesDuplicates(t *testing.T) {
	merged := mergeCandidates([]pii.Entity{
		{Type: pii.Person, Text: "John Doe", Start: 0, End: 8, Confidence: 0.75},
		{Type: pii.Person, Text: "John Doe", Start: 0, End: 8, Confidence: 0.92},
	})

	if len(merged) != 1 {
		t.Fatalf("got %d entities, want 1", len(merged))
	}
	if merged[0].Confidence != 0.92 {
		t.Errorf("Confidence = %f, want the higher copy 0.92", merged[0].Confidence)
	}
}

func TestMergeCandidates_OverlapKeepsStronger(t *testing.T) {
	merged := mergeCandidates([]pii.Entity{
		{Type: pii.Person, Text: "John", Start: 0, End: 4, Confidence: 0.7},
		{Type: pii.Person, Text: "John Doe", Start: 0, End: 8, Confidence: 0.9},
	})

	if len(merged) != 1 {
		t.Fatalf("got %d entities %v, want 1", len(merged), merged)
	}
	if merged[0].Text != "John Doe" {
		t.Errorf("kept %q, want the stronger John Doe", merged[0].Text)
	}
}

func TestMergeCandidates_PairBeatsSpanning(t *testing.T) {
	// Two non-overlapping candidates with higher total confidence win over
	// a single candidate covering both.
	merged := mergeCandidates([]pii.Entity{
		{Type: pii.Person, Text: "John", Start: 0, End: 4, Confidence: 0.6},
		{Type: pii.Location, Text: "Paris", Start: 5, End: 10, Confidence: 0.6},
		{Type: pii.Organization, Text: "John Paris", Start: 0, End: 10, Confidence: 0.9},
	})

	if len(merged) != 2 {
		t.Fatalf("got %d entities %v, want 2", len(merged), merged)
	}
	if merged[0].Type != pii.Person || merged[1].Type != pii.Location {
		t.Errorf("kept %v, want the Person+Location pair", merged)
	}
}

func TestMergeCandidates_ResultSortedAndDisjoint(t *testing.T) {
	merged := mergeCandidates([]pii.Entity{
		{Type: pii.Email, Start: 30, End: 45, Confidence: 0.85},
		{Type: pii.Person, Start: 0, End: 8, Confidence: 0.75},
		{Type: pii.Person, Start: 0, End: 12, Confidence: 0.8},
		{Type: pii.Phone, Start: 14, End: 26, Confidence: 0.85},
		{Type: pii.Date, Start: 50, End: 60, Confidence: 0.85},
	})

	for i := 1; i < len(merged); i++ {
		if merged[i].Start < merged[i-1].Start {
			t.Errorf("not sorted by start: %v", merged)
		}
		if merged[i].Start < merged[i-1].End {
			t.Errorf("overlap in result: %v", merged)
		}
	}
	if len(merged) != 4 {
		t.Errorf("got %d entities %v, want 4", len(merged), merged)
	}
}
