package output

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// LineType is the discriminator of a line item.
type LineType string

const (
	TypeText     LineType = "text"
	TypeProgress LineType = "progress"
	TypeBadge    LineType = "badge"
)

// Unit qualifies a progress value.
type Unit string

const (
	UnitPercent Unit = "percent"
	UnitDollars Unit = "dollars"
)

// Line is one display metric. Exactly one of Text, Progress or Badge.
type Line interface {
	Type() LineType
	Title() string
}

// Text is a label/value pair.
type Text struct {
	Label string
	Value string
	Color string
}

// Progress is a bounded numeric value.
type Progress struct {
	Label string
	Value float64
	Max   float64
	Unit  Unit
	Color string
}

// Badge is a short status tag.
type Badge struct {
	Label string
	Text  string
	Color string
}

func (Text) Type() LineType     { return TypeText }
func (Progress) Type() LineType { return TypeProgress }
func (Badge) Type() LineType    { return TypeBadge }

func (t Text) Title() string     { return t.Label }
func (p Progress) Title() string { return p.Label }
func (b Badge) Title() string    { return b.Label }

// MarshalJSON writes the line in its wire shape with the type tag.
func (t Text) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(struct {
		Type  LineType `json:"type"`
		Label string   `json:"label"`
		Value string   `json:"value"`
		Color string   `json:"color,omitempty"`
	}{TypeText, t.Label, t.Value, t.Color})
}

// MarshalJSON writes the line in its wire shape with the type tag.
func (p Progress) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(struct {
		Type  LineType `json:"type"`
		Label string   `json:"label"`
		Value float64  `json:"value"`
		Max   float64  `json:"max"`
		Unit  Unit     `json:"unit,omitempty"`
		Color string   `json:"color,omitempty"`
	}{TypeProgress, p.Label, p.Value, p.Max, p.Unit, p.Color})
}

// MarshalJSON writes the line in its wire shape with the type tag.
func (b Badge) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(struct {
		Type  LineType `json:"type"`
		Label string   `json:"label"`
		Text  string   `json:"text"`
		Color string   `json:"color,omitempty"`
	}{TypeBadge, b.Label, b.Text, b.Color})
}

// Output is an accepted probe result.
type Output struct {
	Lines []Line `json:"lines"`
}

// Reason classifies a validation failure.
type Reason string

const (
	NonObjectReturn Reason = "non_object_return"
	MissingLines    Reason = "missing_lines"
	UnknownLineType Reason = "unknown_line_type"
)

// ValidationError reports why a returned value was rejected.
// For UnknownLineType, Detail is the element's declared type ("" if it had
// none), Index its position and Problem the first mismatch found.
type ValidationError struct {
	Reason  Reason
	Detail  string
	Index   int
	Problem string
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case UnknownLineType:
		return fmt.Sprintf("invalid probe output: lines[%d] (type %q): %s", e.Index, e.Detail, e.Problem)
	default:
		return fmt.Sprintf("invalid probe output: %s: %s", e.Reason, e.Detail)
	}
}
