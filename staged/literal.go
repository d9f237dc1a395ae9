package staged

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

var errNotLiteral = errors.New("not a literal")

// ParseLiteral evaluates the content of an :UNQUOTED cell. Only literals are
// accepted: integers, floats, booleans, null, quoted strings and lists of
// those. An empty cell is null.
func ParseLiteral(s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return nil, nil
	}

	tree, err := parser.Parse(s)
	if err != nil {
		return nil, err
	}

	var check literalChecker
	ast.Walk(&tree.Node, &check)

	if check.err != nil {
		return nil, check.err
	}

	program, err := expr.Compile(s, expr.Env(map[string]any{}), expr.DisableAllBuiltins())
	if err != nil {
		return nil, err
	}

	out, err := expr.Run(program, map[string]any{})
	if err != nil {
		return nil, err
	}

	return normalize(out)
}

// literalChecker rejects any expression node that is not part of a literal.
type literalChecker struct {
	err error
}

func (c *literalChecker) Visit(node *ast.Node) {
	if c.err != nil {
		return
	}

	switch n := (*node).(type) {
	case *ast.IntegerNode, *ast.FloatNode, *ast.BoolNode, *ast.StringNode, *ast.NilNode, *ast.ArrayNode:
	case *ast.UnaryNode:
		if n.Operator != "-" && n.Operator != "+" {
			c.err = fmt.Errorf("%w: operator %q", errNotLiteral, n.Operator)
		}
	default:
		c.err = fmt.Errorf("%w: %T", errNotLiteral, n)
	}
}

func normalize(v any) (any, error) {
	switch v := v.(type) {
	case nil, bool, string, int64, float64:
		return v, nil
	case int:
		return int64(v), nil
	case []any:
		out := make([]any, len(v))

		for i, e := range v {
			if _, nested := e.([]any); nested {
				return nil, fmt.Errorf("%w: nested list", errNotLiteral)
			}

			n, err := normalize(e)
			if err != nil {
				return nil, err
			}

			out[i] = n
		}

		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T", errNotLiteral, v)
	}
}

// FormatLiteral renders v so that ParseLiteral returns it unchanged.
func FormatLiteral(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float32:
		return formatFloat(float64(v))
	case float64:
		return formatFloat(v)
	case string:
		return strconv.Quote(v), nil
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}

		return FormatLiteral(items)
	case []any:
		parts := make([]string, len(v))

		for i, e := range v {
			if _, nested := e.([]any); nested {
				return "", fmt.Errorf("%w: nested list", errNotLiteral)
			}

			s, err := FormatLiteral(e)
			if err != nil {
				return "", err
			}

			if e == nil {
				s = "nil"
			}

			parts[i] = s
		}

		return "[" + strings.Join(parts, ", ") + "]", nil
	default:
		return "", fmt.Errorf("%w: %T", errNotLiteral, v)
	}
}

func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%w: %v", errNotLiteral, f)
	}

	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}

	return s, nil
}
