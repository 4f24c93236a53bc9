// Package sexpr is the s-expression codec for atoms and values.
// See doc.go for complete package documentation.
package sexpr

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/dreamware/hyperstore/internal/atom"
)

// EncodeAtom returns the canonical s-expression of an atom.
func EncodeAtom(a *atom.Atom) string { return a.String() }

// EncodeValue returns the canonical s-expression of a value.
func EncodeValue(v atom.Value) string { return v.String() }

// DecodeAtom parses an atom s-expression starting at *pos and leaves
// *pos at the first byte past the form.
func DecodeAtom(s string, pos *int) (*atom.Atom, error) {
	skipSpace(s, pos)
	if err := expect(s, pos, '('); err != nil {
		return nil, err
	}
	name, err := symbol(s, pos)
	if err != nil {
		return nil, err
	}
	skipSpace(s, pos)
	if *pos >= len(s) {
		return nil, errors.Errorf("truncated atom at %d in %q", *pos, s)
	}

	if s[*pos] == '"' {
		// Node: a quoted name then the closing paren.
		t := nodeType(name)
		nm, err := quoted(s, pos)
		if err != nil {
			return nil, err
		}
		skipSpace(s, pos)
		if err := expect(s, pos, ')'); err != nil {
			return nil, err
		}
		return atom.NewNode(t, nm), nil
	}

	// Link: sub-forms until the closing paren.
	t := linkType(name)
	var out []*atom.Atom
	for {
		skipSpace(s, pos)
		if *pos >= len(s) {
			return nil, errors.Errorf("unterminated link in %q", s)
		}
		if s[*pos] == ')' {
			*pos++
			return atom.NewLink(t, out...), nil
		}
		ch, err := DecodeAtom(s, pos)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
}

// DecodeValue parses a value s-expression starting at *pos and leaves
// *pos at the first byte past the form.
func DecodeValue(s string, pos *int) (atom.Value, error) {
	skipSpace(s, pos)
	if err := expect(s, pos, '('); err != nil {
		return nil, err
	}
	name, err := symbol(s, pos)
	if err != nil {
		return nil, err
	}

	switch name {
	case "stv":
		st, err := number(s, pos)
		if err != nil {
			return nil, err
		}
		cf, err := number(s, pos)
		if err != nil {
			return nil, err
		}
		skipSpace(s, pos)
		if err := expect(s, pos, ')'); err != nil {
			return nil, err
		}
		return &atom.TruthValue{Strength: st, Confidence: cf}, nil

	case "FloatValue":
		var fv atom.FloatValue
		for {
			skipSpace(s, pos)
			if *pos < len(s) && s[*pos] == ')' {
				*pos++
				return fv, nil
			}
			f, err := number(s, pos)
			if err != nil {
				return nil, err
			}
			fv = append(fv, f)
		}

	case "StringValue":
		var sv atom.StringValue
		for {
			skipSpace(s, pos)
			if *pos >= len(s) {
				return nil, errors.Errorf("unterminated StringValue in %q", s)
			}
			if s[*pos] == ')' {
				*pos++
				return sv, nil
			}
			str, err := quoted(s, pos)
			if err != nil {
				return nil, err
			}
			sv = append(sv, str)
		}

	case "LinkValue":
		var lv atom.LinkValue
		for {
			skipSpace(s, pos)
			if *pos >= len(s) {
				return nil, errors.Errorf("unterminated LinkValue in %q", s)
			}
			if s[*pos] == ')' {
				*pos++
				return lv, nil
			}
			v, err := DecodeValue(s, pos)
			if err != nil {
				return nil, err
			}
			lv = append(lv, v)
		}

	default:
		return nil, errors.Errorf("unknown value type %q in %q", name, s)
	}
}

/* ================================================================ */
// Structural helpers.

// SkipHash strips the optional 16-hex-digit hash prefix from an a@
// record, returning the serialization from the first '('.
func SkipHash(s string) string {
	i := strings.IndexByte(s, '(')
	if i <= 0 {
		return s
	}
	return s[i:]
}

// LinkTypeName extracts the type name of a serialized link: the text
// between the opening paren and the first space.
func LinkTypeName(satom string) (string, error) {
	if len(satom) == 0 || satom[0] != '(' {
		return "", errors.Errorf("not an s-expression: %q", satom)
	}
	i := strings.IndexByte(satom, ' ')
	if i < 0 {
		return "", errors.Errorf("no outgoing list in %q", satom)
	}
	return satom[1:i], nil
}

// SplitOutgoing splits a serialized link into the serializations of its
// children, located by parenthesis counting. Quoted node names may
// contain parens; the scan honors quoting and escapes.
func SplitOutgoing(satom string) ([]string, error) {
	if len(satom) == 0 || satom[0] != '(' {
		return nil, errors.Errorf("not a link: %q", satom)
	}
	i := strings.IndexByte(satom, ' ')
	if i < 0 {
		// A link with an empty outgoing list serializes as "(Type)".
		return nil, nil
	}
	var out []string
	depth := 0
	start := -1
	quote := false
	for ; i < len(satom); i++ {
		c := satom[i]
		if quote {
			switch c {
			case '\\':
				i++
			case '"':
				quote = false
			}
			continue
		}
		switch c {
		case '"':
			quote = true
		case '(':
			if depth == 0 {
				start = i
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				out = append(out, satom[start:i+1])
			}
			if depth < 0 {
				// Closing paren of the link itself.
				return out, nil
			}
		}
	}
	return nil, errors.Errorf("unbalanced link %q", satom)
}

/* ================================================================ */
// Scanner primitives.

func skipSpace(s string, pos *int) {
	for *pos < len(s) && (s[*pos] == ' ' || s[*pos] == '\t' || s[*pos] == '\n') {
		*pos++
	}
}

func expect(s string, pos *int, c byte) error {
	if *pos >= len(s) || s[*pos] != c {
		return errors.Errorf("expected %q at %d in %q", string(c), *pos, s)
	}
	*pos++
	return nil
}

// symbol reads an unquoted token: a type or value-type name.
func symbol(s string, pos *int) (string, error) {
	start := *pos
	for *pos < len(s) {
		c := s[*pos]
		if c == ' ' || c == ')' || c == '(' {
			break
		}
		*pos++
	}
	if *pos == start {
		return "", errors.Errorf("expected symbol at %d in %q", start, s)
	}
	return s[start:*pos], nil
}

// quoted reads a Go-style quoted string literal.
func quoted(s string, pos *int) (string, error) {
	if *pos >= len(s) || s[*pos] != '"' {
		return "", errors.Errorf("expected string at %d in %q", *pos, s)
	}
	i := *pos + 1
	for i < len(s) {
		switch s[i] {
		case '\\':
			i += 2
			continue
		case '"':
			lit := s[*pos : i+1]
			out, err := strconv.Unquote(lit)
			if err != nil {
				return "", errors.Wrapf(err, "bad string literal %s", lit)
			}
			*pos = i + 1
			return out, nil
		}
		i++
	}
	return "", errors.Errorf("unterminated string at %d in %q", *pos, s)
}

func number(s string, pos *int) (float64, error) {
	skipSpace(s, pos)
	start := *pos
	for *pos < len(s) {
		c := s[*pos]
		if c == ' ' || c == ')' {
			break
		}
		*pos++
	}
	f, err := strconv.ParseFloat(s[start:*pos], 64)
	if err != nil {
		return 0, errors.Wrapf(err, "bad number at %d in %q", start, s)
	}
	return f, nil
}

// nodeType resolves a type name for a node form, registering unknown
// names below Node.
func nodeType(name string) atom.Type {
	if t, ok := atom.TypeByName(name); ok {
		return t
	}
	return atom.RegisterType(name, atom.TNode)
}

// linkType resolves a type name for a link form, registering unknown
// names below Link.
func linkType(name string) atom.Type {
	if t, ok := atom.TypeByName(name); ok {
		return t
	}
	return atom.RegisterType(name, atom.TLink)
}
