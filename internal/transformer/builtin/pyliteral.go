package builtin

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"go.starlark.net/syntax"
)

// evalPyLiteral evaluates a Python literal expression the way ast.literal_eval
// does: the text is parsed into a syntax tree and only literal nodes are
// accepted. Calls, names other than True/False/None, operators other than a
// sign on a number, and comprehensions are rejected.
//
// Starlark's expression grammar is the parser. Its literals are a subset of
// Python's: no set displays, no u/b string prefixes, no implicit
// concatenation of adjacent strings, no digit underscores and no unknown
// backslash escapes. Those inputs are rejected.
//
// Result types:
//
//	str          -> string
//	int          -> *big.Int
//	float        -> float64
//	True/False   -> bool
//	None         -> nil
//	list/tuple   -> []any
//	dict         -> map[string]any (keys rendered with pyStr)
func evalPyLiteral(s string) (any, error) {
	expr, err := syntax.ParseExpr("literal", strings.TrimSpace(s), 0)
	if err != nil {
		return nil, err
	}
	return literalValue(expr)
}

func literalValue(e syntax.Expr) (any, error) {
	switch n := e.(type) {
	case *syntax.Literal:
		return literalConst(n)

	case *syntax.Ident:
		switch n.Name {
		case "True":
			return true, nil
		case "False":
			return false, nil
		case "None":
			return nil, nil
		}

	case *syntax.UnaryExpr:
		lit, ok := n.X.(*syntax.Literal)
		if !ok || (lit.Token != syntax.INT && lit.Token != syntax.FLOAT) {
			break
		}
		v, err := literalConst(lit)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case syntax.MINUS:
			return negate(v), nil
		case syntax.PLUS:
			return v, nil
		}

	case *syntax.ParenExpr:
		return literalValue(n.X)

	case *syntax.ListExpr:
		return literalList(n.List)

	case *syntax.TupleExpr:
		return literalList(n.List)

	case *syntax.DictExpr:
		out := make(map[string]any, len(n.List))
		for _, item := range n.List {
			entry, ok := item.(*syntax.DictEntry)
			if !ok {
				return nil, malformed(item)
			}
			k, err := literalValue(entry.Key)
			if err != nil {
				return nil, err
			}
			key, err := dictKey(k)
			if err != nil {
				return nil, err
			}
			v, err := literalValue(entry.Value)
			if err != nil {
				return nil, err
			}
			out[key] = v
		}
		return out, nil
	}
	return nil, malformed(e)
}

func literalList(items []syntax.Expr) ([]any, error) {
	out := make([]any, 0, len(items))
	for _, item := range items {
		v, err := literalValue(item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func literalConst(n *syntax.Literal) (any, error) {
	switch n.Token {
	case syntax.STRING:
		if s, ok := n.Value.(string); ok {
			return s, nil
		}
	case syntax.INT:
		if hasLeadingZero(n.Raw) {
			return nil, fmt.Errorf("%s: leading zeros in decimal integer literals are not permitted", n.TokenPos)
		}
		switch v := n.Value.(type) {
		case int64:
			return big.NewInt(v), nil
		case *big.Int:
			return v, nil
		}
	case syntax.FLOAT:
		if f, ok := n.Value.(float64); ok {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%s: unsupported literal %s", n.TokenPos, n.Raw)
}

// hasLeadingZero reports decimal integers such as 012. "0", "00" and
// prefixed forms like 0x1F are fine.
func hasLeadingZero(raw string) bool {
	if len(raw) < 2 || raw[0] != '0' || raw[1] < '0' || raw[1] > '9' {
		return false
	}
	return strings.Trim(raw, "0") != ""
}

func malformed(e syntax.Expr) error {
	start, _ := e.Span()
	return fmt.Errorf("%s: malformed node or string", start)
}

func negate(v any) any {
	switch n := v.(type) {
	case *big.Int:
		return new(big.Int).Neg(n)
	case float64:
		return -n
	}
	return v
}

func dictKey(k any) (string, error) {
	switch k.(type) {
	case []any, map[string]any:
		return "", fmt.Errorf("unhashable dict key of type %s", pyTypeName(k))
	}
	return pyStr(k), nil
}

// pyStr renders v the way Python's str() would for the literal types above
// and for values decoded by encoding/json with UseNumber.
func pyStr(v any) string {
	switch t := v.(type) {
	case nil:
		return "None"
	case string:
		return t
	case bool:
		if t {
			return "True"
		}
		return "False"
	case *big.Int:
		return t.String()
	case float64:
		return pyFloatRepr(t)
	case json.Number:
		if strings.ContainsAny(string(t), ".eE") {
			if f, err := t.Float64(); err == nil {
				return pyFloatRepr(f)
			}
		}
		return string(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = pyRepr(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = pyRepr(k) + ": " + pyRepr(t[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return fmt.Sprint(v)
}

func pyRepr(v any) string {
	s, ok := v.(string)
	if !ok {
		return pyStr(v)
	}
	q := "'"
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		q = `"`
	}
	r := strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`, "\t", `\t`, q, `\`+q)
	return q + r.Replace(s) + q
}

// pyFloatRepr matches Python's repr(float): shortest round-trip digits,
// always with a fractional part or an exponent.
func pyFloatRepr(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	case f == 0:
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}

	e := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(e[strings.LastIndexByte(e, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return e
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

func pyTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "NoneType"
	case string:
		return "str"
	case bool:
		return "bool"
	case *big.Int:
		return "int"
	case float64:
		return "float"
	case []any:
		return "list"
	case map[string]any:
		return "dict"
	}
	return fmt.Sprintf("%T", v)
}
