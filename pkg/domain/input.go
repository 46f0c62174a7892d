package domain

// InputKind identifies the variant of an Input.
type InputKind string

const (
	InputSelection InputKind = "selection"
	InputForm      InputKind = "form"
)

// Input is what a visitor submits in a turn. A nil Input is a first load.
// The set of implementations is closed: Selection and FormPayload.
type Input interface {
	InputKind() InputKind
	sealedInput()
}

// Selection picks one option by value, falling back to its label.
type Selection struct {
	Value any    `json:"value,omitempty"`
	Label string `json:"label,omitempty"`
}

func (Selection) InputKind() InputKind { return InputSelection }
func (Selection) sealedInput()         {}

// Key returns the selection's matching key: Value when present, otherwise Label.
func (s Selection) Key() any {
	if s.Value != nil {
		return s.Value
	}
	if s.Label != "" {
		return s.Label
	}
	return nil
}

// FormPayload is a flat key/value form submission.
type FormPayload map[string]any

func (FormPayload) InputKind() InputKind { return InputForm }
func (FormPayload) sealedInput()         {}
