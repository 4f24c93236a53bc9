package atom

import (
	"strconv"
	"strings"
)

// Value is a typed payload attached to an atom under a value-key. Each
// variant has a canonical s-expression form returned by String.
type Value interface {
	String() string
}

// FloatValue is a vector of floats: (FloatValue 1 2 3).
type FloatValue []float64

func (v FloatValue) String() string {
	var b strings.Builder
	b.WriteString("(FloatValue")
	for _, f := range v {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	b.WriteByte(')')
	return b.String()
}

// StringValue is a vector of strings: (StringValue "a" "b").
type StringValue []string

func (v StringValue) String() string {
	var b strings.Builder
	b.WriteString("(StringValue")
	for _, s := range v {
		b.WriteByte(' ')
		b.WriteString(strconv.Quote(s))
	}
	b.WriteByte(')')
	return b.String()
}

// LinkValue is a vector of values: (LinkValue (stv 1 0) (FloatValue 2)).
type LinkValue []Value

func (v LinkValue) String() string {
	var b strings.Builder
	b.WriteString("(LinkValue")
	for _, x := range v {
		b.WriteByte(' ')
		b.WriteString(x.String())
	}
	b.WriteByte(')')
	return b.String()
}

// TruthValue is the (strength, confidence) pair with the short form
// (stv s c).
type TruthValue struct {
	Strength   float64
	Confidence float64
}

func (v *TruthValue) String() string {
	return "(stv " + strconv.FormatFloat(v.Strength, 'g', -1, 64) +
		" " + strconv.FormatFloat(v.Confidence, 'g', -1, 64) + ")"
}

// DefaultTV is the truth value every atom implicitly carries. The engine
// never persists it: a stored default would be indistinguishable from an
// unset one, so it is elided on store and on re-store any previously
// persisted entry is cleared.
func DefaultTV() *TruthValue { return &TruthValue{Strength: 1, Confidence: 0} }

// IsDefault reports whether the truth value equals the implicit default.
func (v *TruthValue) IsDefault() bool {
	return v.Strength == 1 && v.Confidence == 0
}
