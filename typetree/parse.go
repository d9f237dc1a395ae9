package typetree

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
	"github.com/rlch/metagraph"
)

// ErrParse is returned for malformed type descriptors.
var ErrParse = errors.New("typetree: malformed type descriptor")

var errEmpty = errors.New("empty descriptor")

// ParseError reports a malformed descriptor. It is scoped to one type string.
type ParseError struct {
	Input string
	Name  string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("typetree: parsing type of %s %q: %v", e.Name, e.Input, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrParse, e.Err}
}

// Parse builds the type tree for typeString and attaches it to parent under
// name. Tagged unions and other unsupported compound forms become scalars
// holding the original text.
func Parse(typeString, name string, parent Parent) (*Node, error) {
	if err := checkArgs(name, parent); err != nil {
		return nil, err
	}

	if strings.TrimSpace(typeString) == "" {
		return nil, &ParseError{Input: typeString, Name: name, Err: errEmpty}
	}

	expr, err := typeParser.ParseString("", typeString)
	if err != nil {
		return nil, &ParseError{Input: typeString, Name: name, Err: err}
	}

	return build(expr, typeString, name, parent, NoSortOrder), nil
}

// ParseOrScalar is Parse for column-level extraction: a malformed descriptor
// degrades to a single Scalar node holding typeString, and the parse error is
// returned alongside it for logging. Only invalid arguments yield a nil node.
func ParseOrScalar(typeString, name string, parent Parent) (*Node, error) {
	node, err := Parse(typeString, name, parent)
	if err == nil {
		return node, nil
	}

	if !errors.Is(err, ErrParse) {
		return nil, err
	}

	return &Node{
		Kind:      KindScalar,
		Name:      name,
		RawType:   strings.TrimSpace(typeString),
		SortOrder: NoSortOrder,
		parent:    parent,
	}, err
}

func checkArgs(name string, parent Parent) error {
	if name == "" {
		return metagraph.NewConfigError("name", "type node name is empty")
	}

	if parent == nil {
		return metagraph.NewConfigError("parent", "type node has no parent")
	}

	return nil
}

func build(expr *typeExpr, input, name string, parent Parent, sortOrder int) *Node {
	n := &Node{
		Name:      name,
		RawType:   rawText(expr, input),
		SortOrder: sortOrder,
		parent:    parent,
	}

	switch {
	case expr.Array != nil:
		n.Kind = KindArray
		n.Children = []*Node{
			build(expr.Array.Elem, input, InnerName, n, NoSortOrder),
		}
	case expr.Map != nil:
		n.Kind = KindMap
		n.Children = []*Node{
			build(expr.Map.Key, input, MapKeyName, n, NoSortOrder),
			build(expr.Map.Value, input, MapValueName, n, NoSortOrder),
		}
	case expr.Struct != nil:
		n.Kind = KindStruct
		n.Children = make([]*Node, len(expr.Struct.Fields))

		for i, f := range expr.Struct.Fields {
			n.Children[i] = build(f.Type, input, fieldName(f.Name), n, i)
		}
	default:
		n.Kind = KindScalar
	}

	return n
}

func fieldName(raw string) string {
	return strings.Trim(raw, "`")
}

// rawText recovers the source text a node was parsed from, keeping the
// original spelling and spacing of the descriptor.
func rawText(expr *typeExpr, input string) string {
	var first, last *lexer.Token

	for i := range expr.Tokens {
		tok := &expr.Tokens[i]
		if strings.TrimSpace(tok.Value) == "" {
			continue
		}

		if first == nil {
			first = tok
		}

		last = tok
	}

	if first == nil {
		return canonical(expr)
	}

	start, end := first.Pos.Offset, last.Pos.Offset+len(last.Value)
	if start < 0 || end > len(input) || start > end {
		return canonical(expr)
	}

	return strings.TrimSpace(input[start:end])
}

// canonical renders expr without whitespace. It is only used when token
// positions are unavailable.
func canonical(expr *typeExpr) string {
	var b strings.Builder

	writeCanonical(&b, expr)

	return b.String()
}

func writeCanonical(b *strings.Builder, expr *typeExpr) {
	switch {
	case expr.Array != nil:
		b.WriteString("array<")
		writeCanonical(b, expr.Array.Elem)
		b.WriteString(">")
	case expr.Map != nil:
		b.WriteString("map<")
		writeCanonical(b, expr.Map.Key)
		b.WriteString(",")
		writeCanonical(b, expr.Map.Value)
		b.WriteString(">")
	case expr.Struct != nil:
		b.WriteString("struct<")

		for i, f := range expr.Struct.Fields {
			if i > 0 {
				b.WriteString(",")
			}

			b.WriteString(f.Name)
			b.WriteString(":")
			writeCanonical(b, f.Type)
		}

		b.WriteString(">")
	case expr.Union != nil:
		b.WriteString("uniontype<")

		for i, m := range expr.Union.Members {
			if i > 0 {
				b.WriteString(",")
			}

			writeCanonical(b, m)
		}

		b.WriteString(">")
	case expr.Scalar != nil:
		b.WriteString(strings.Join(expr.Scalar.Words, " "))
		b.WriteString(expr.Scalar.Params)
	}
}
