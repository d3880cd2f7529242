// Package ner turns raw text into labelled entities using a token
// classification model. The tensor-execution backend is abstracted behind
// the TokenClassifier interface so inference can run on ONNX Runtime in
// production and on a fake in tests.
package ner

// Label is one BIO tag from the model's label set.
type Label int

// The standard 9-label BIO set (O plus B/I for four entity kinds). Label
// ids match the dslim/bert-base-NER convention the pipeline defaults to.
const (
	LabelO Label = iota
	LabelBeginPerson
	LabelInsidePerson
	LabelBeginOrganization
	LabelInsideOrganization
	LabelBeginLocation
	LabelInsideLocation
	LabelBeginMisc
	LabelInsideMisc

	// NumLabels is the size of the default label set.
	NumLabels = int(LabelInsideMisc) + 1
)

var labelNames = [NumLabels]string{
	"O",
	"B-PER", "I-PER",
	"B-ORG", "I-ORG",
	"B-LOC", "I-LOC",
	"B-MISC", "I-MISC",
}

// String returns the conventional tag name ("B-PER", "O", ...).
func (l Label) String() string {
	if l < 0 || int(l) >= NumLabels {
		return "O"
	}
	return labelNames[l]
}

// LabelFromID converts a raw label id, reporting whether it is in range.
func LabelFromID(id int) (Label, bool) {
	if id < 0 || id >= NumLabels {
		return LabelO, false
	}
	return Label(id), true
}

// IsBegin reports whether l opens a new entity.
func (l Label) IsBegin() bool {
	switch l {
	case LabelBeginPerson, LabelBeginOrganization, LabelBeginLocation, LabelBeginMisc:
		return true
	}
	return false
}

// IsInside reports whether l continues an entity.
func (l Label) IsInside() bool {
	switch l {
	case LabelInsidePerson, LabelInsideOrganization, LabelInsideLocation, LabelInsideMisc:
		return true
	}
	return false
}

// Kind returns the entity kind without the B-/I- prefix ("PER", "ORG",
// "LOC", "MISC"), or "" for O.
func (l Label) Kind() string {
	switch l {
	case LabelBeginPerson, LabelInsidePerson:
		return "PER"
	case LabelBeginOrganization, LabelInsideOrganization:
		return "ORG"
	case LabelBeginLocation, LabelInsideLocation:
		return "LOC"
	case LabelBeginMisc, LabelInsideMisc:
		return "MISC"
	}
	return ""
}
