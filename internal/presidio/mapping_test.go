package presidio

import (
	"testing"

	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/pii"
)

func TestToInternal(t *testing.T) {
	m := NewMapper()

	cases := []struct {
		remote string
		want   pii.EntityType
	}{
		{"PERSON", pii.Person},
		{"EMAIL_ADDRESS", pii.Email},
		{"PHONE_NUMBER", pii.Phone},
		{"LOCATION", pii.Location},
		{"GPE", pii.Location},
		{"ORG", pii.Organization},
		{"DATE_TIME", pii.Date},
		{"MONEY", pii.Money},
		{"US_SSN", pii.Identification},
		{"IBAN_CODE", pii.Identification},
		{"CREDIT_CARD", pii.Identification},
		{"IP_ADDRESS", pii.TechnicalIdentifier},
		{"URL", pii.TechnicalIdentifier},
	}
	for _, c := range cases {
		got, ok := m.ToInternal(c.remote)
		if !ok {
			t.Errorf("ToInternal(%q) not recognized", c.remote)
			continue
		}
		if got != c.want {
			t.Errorf("ToInternal(%q) = %v, want %v", c.remote, got, c.want)
		}
	}

	if _, ok := m.ToInternal("NOT_A_TYPE"); ok {
		t.Error("unknown remote type was mapped")
	}
}

func TestToRemote_Canonical(t *testing.T) {
	m := NewMapper()

	cases := []struct {
		internal pii.EntityType
		want     string
	}{
		{pii.Person, "PERSON"},
		{pii.Email, "EMAIL_ADDRESS"},
		{pii.Phone, "PHONE_NUMBER"},
		{pii.Location, "LOCATION"},
		{pii.Organization, "ORGANIZATION"},
	}
	for _, c := range cases {
		got, ok := m.ToRemote(c.internal)
		if !ok || got != c.want {
			t.Errorf("ToRemote(%v) = %q/%v, want %q", c.internal, got, ok, c.want)
		}
	}
}

func TestAddMapping(t *testing.T) {
	m := NewMapper()
	m.AddMapping("BSN", pii.Identification)

	if got, ok := m.ToInternal("BSN"); !ok || got != pii.Identification {
		t.Errorf("ToInternal(BSN) = %v/%v after AddMapping", got, ok)
	}
	if !m.Recognized("BSN") {
		t.Error("added mapping not recognized")
	}
}

func TestConvertEntity(t *testing.T) {
	m := NewMapper()
	text := "John Doe lives here."

	e, ok := m.ConvertEntity(RemoteEntity{
		EntityType: "PERSON", Start: 0, End: 8, Score: 0.85,
	}, text)
	if !ok {
		t.Fatal("valid finding was dropped")
	}
	if e.Type != pii.Person || e.Text != "John Doe" || e.Start != 0 || e.End != 8 {
		t.Errorf("converted entity = %+v", e)
	}
	if e.Confidence != 0.85 {
		t.Errorf("Confidence = %f, want 0.85", e.Confidence)
	}

	// Out-of-bounds and inverted spans are dropped, not clamped.
	if _, ok := m.ConvertEntity(RemoteEntity{EntityType: "PERSON", Start: 0, End: 99, Score: 0.9}, text); ok {
		t.Error("out-of-bounds span was kept")
	}
	if _, ok := m.ConvertEntity(RemoteEntity{EntityType: "PERSON", Start: 5, End: 5, Score: 0.9}, text); ok {
		t.Error("empty span was kept")
	}
	if _, ok := m.ConvertEntity(RemoteEntity{EntityType: "NOT_A_TYPE", Start: 0, End: 8, Score: 0.9}, text); ok {
		t.Error("unknown type was kept")
	}
}

func TestConvertEntities_DropsUnmappable(t *testing.T) {
	m := NewMapper()
	text := "Mail bob@example.com today."

	entities := m.ConvertEntities([]RemoteEntity{
		{EntityType: "EMAIL_ADDRESS", Start: 5, End: 20, Score: 0.99},
		{EntityType: "NOT_A_TYPE", Start: 0, End: 4, Score: 0.99},
	}, text)

	if len(entities) != 1 {
		t.Fatalf("got %d entities, want 1", len(entities))
	}
	if entities[0].Text != "bob@example.com" {
		t.Errorf("Text = %q", entities[0].Text)
	}
}

func TestAdjust_BoostsPerKeyword(t *testing.T) {
	a := NewConfidenceAdjuster()
	e := pii.Entity{Type: pii.Person, Text: "John Doe", Confidence: 0.6}

	// "mr." and "witness" both match: two 0.05 boosts.
	got := a.Adjust(e, "Mr. John Doe, a witness, testified")
	if got < 0.699 || got > 0.701 {
		t.Errorf("Adjust = %f, want 0.70", got)
	}

	// No keywords, no change.
	if got := a.Adjust(e, "John Doe went home"); got != 0.6 {
		t.Errorf("Adjust without keywords = %f, want 0.6", got)
	}

	// Capped at 1.0.
	e.Confidence = 0.99
	if got := a.Adjust(e, "Mr. John Doe, attorney and witness"); got != 1.0 {
		t.Errorf("Adjust = %f, want cap at 1.0", got)
	}
}

func TestFilter_AppliesFloor(t *testing.T) {
	a := NewConfidenceAdjuster()
	entities := []pii.Entity{
		{Type: pii.Person, Confidence: 0.8},
		{Type: pii.Person, Confidence: 0.4},
		{Type: pii.Person, Confidence: 0.5},
	}

	kept := a.Filter(entities)
	if len(kept) != 2 {
		t.Fatalf("got %d entities, want 2 (floor 0.5 inclusive)", len(kept))
	}

	a.SetMinConfidence(0.9)
	if kept := a.Filter([]pii.Entity{{Confidence: 0.8}}); len(kept) != 0 {
		t.Error("raised floor did not drop 0.8")
	}

	// Out-of-range floors are clamped.
	a.SetMinConfidence(-1)
	if kept := a.Filter([]pii.Entity{{Confidence: 0}}); len(kept) != 1 {
		t.Error("clamped floor 0 should keep everything")
	}
}
