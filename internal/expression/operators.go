package expression

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"

	"github.com/conneroisu/fibre/internal/value"
)

// semantics rewrites the parsed program so operators follow JavaScript
// rules: && and || return an operand chosen by truthiness and short
// circuit, ! and conditions test truthiness, + concatenates when either
// side is text, and .length works on any value.
type semantics struct {
	vars int
}

func (s *semantics) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.BinaryNode:
		switch n.Operator {
		case "&&", "and":
			ast.Patch(node, s.logical(n.Left, n.Right, true))
		case "||", "or":
			ast.Patch(node, s.logical(n.Left, n.Right, false))
		case "+":
			ast.Patch(node, call("jsAdd", n.Left, n.Right))
		}
	case *ast.UnaryNode:
		switch n.Operator {
		case "!", "not":
			ast.Patch(node, call("jsNot", n.Node))
		case "+":
			ast.Patch(node, call("jsNumber", n.Node))
		}
	case *ast.ConditionalNode:
		n.Cond = call("jsTruthy", n.Cond)
	case *ast.MemberNode:
		if p, ok := n.Property.(*ast.StringNode); ok && p.Value == "length" && !n.Method && !n.Optional {
			ast.Patch(node, call("jsLength", n.Node))
		}
	}
}

// logical evaluates left once, binding it to a fresh variable, and only
// evaluates right when left does not decide the result.
func (s *semantics) logical(left, right ast.Node, and bool) ast.Node {
	name := "_" + strconv.Itoa(s.vars)
	s.vars++
	held := func() ast.Node { return &ast.IdentifierNode{Value: name} }

	cond := &ast.ConditionalNode{Cond: call("jsTruthy", held()), Exp1: right, Exp2: held()}
	if !and {
		cond.Exp1, cond.Exp2 = held(), right
	}
	return &ast.VariableDeclaratorNode{Name: name, Value: left, Expr: cond}
}

func call(name string, args ...ast.Node) ast.Node {
	return &ast.CallNode{Callee: &ast.IdentifierNode{Value: name}, Arguments: args}
}

// options returns the expr options every program is compiled with.
func options() []expr.Option {
	return []expr.Option{
		expr.AllowUndefinedVariables(),
		expr.Patch(&semantics{}),
		expr.Function("jsTruthy", unary(func(x any) (any, error) { return value.Truthy(x), nil })),
		expr.Function("jsNot", unary(func(x any) (any, error) { return !value.Truthy(x), nil })),
		expr.Function("jsNumber", unary(func(x any) (any, error) { return toNumeric(x), nil })),
		expr.Function("jsTypeof", unary(func(x any) (any, error) { return value.TypeOf(x), nil })),
		expr.Function("jsInt32", unary(func(x any) (any, error) { return int(toInt32(x)), nil })),
		expr.Function("jsUint32", unary(func(x any) (any, error) { return int(uint32(toInt32(x))), nil })),
		expr.Function("jsShift", unary(func(x any) (any, error) { return int(uint32(toInt32(x)) & 31), nil })),
		expr.Function("jsLength", unary(length)),
		expr.Function("jsAdd", binary(add)),
		expr.Function("jsIn", binary(has)),
		expr.Function("jsInstanceof", binary(instanceOf)),
	}
}

func unary(fn func(any) (any, error)) func(...any) (any, error) {
	return func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("expected 1 argument, got %d", len(args))
		}
		return fn(args[0])
	}
}

func binary(fn func(a, b any) (any, error)) func(...any) (any, error) {
	return func(args ...any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("expected 2 arguments, got %d", len(args))
		}
		return fn(args[0], args[1])
	}
}

// add follows the + operator: text if either side is a string or a
// container, otherwise numeric addition. Integers stay integers.
func add(a, b any) (any, error) {
	if isText(a) || isText(b) {
		return value.String(a) + value.String(b), nil
	}
	if x, ok := integer(a); ok {
		if y, ok := integer(b); ok {
			return x + y, nil
		}
	}
	x, ok := number(a)
	if !ok {
		return nil, fmt.Errorf("cannot add %T and %T", a, b)
	}
	y, ok := number(b)
	if !ok {
		return nil, fmt.Errorf("cannot add %T and %T", a, b)
	}
	return x + y, nil
}

func isText(v any) bool {
	if _, ok := v.(string); ok {
		return true
	}
	return value.IsContainer(v)
}

func integer(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	}
	return 0, false
}

// number converts nil, booleans and numbers the way arithmetic does.
func number(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return value.Number(v)
}

// toNumeric applies unary plus, parsing strings and yielding NaN for
// anything without a numeric reading.
func toNumeric(v any) any {
	if n, ok := integer(v); ok {
		return n
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0.0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	if f, ok := number(v); ok {
		return f
	}
	return math.NaN()
}

// toInt32 truncates to a 32-bit two's complement integer; NaN and
// infinities become 0.
func toInt32(v any) int32 {
	var f float64
	switch n := toNumeric(v).(type) {
	case int:
		return int32(n)
	case float64:
		f = n
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	m := math.Mod(math.Trunc(f), 1<<32)
	if m < 0 {
		m += 1 << 32
	}
	return int32(uint32(m))
}

// length reads the length of text in UTF-16 code units, of a slice, or the
// "length" key of an object.
func length(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, fmt.Errorf("cannot read length of nil")
	case string:
		return len(utf16.Encode([]rune(t))), nil
	case map[string]any:
		return t["length"], nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len(), nil
	}
	return nil, nil
}

// has follows the in operator: key presence for objects, index range for
// slices.
func has(key, obj any) (any, error) {
	switch t := obj.(type) {
	case map[string]any:
		_, ok := t[value.String(key)]
		return ok, nil
	case []any:
		if value.String(key) == "length" {
			return true, nil
		}
		f, ok := value.Number(toNumeric(key))
		return ok && f >= 0 && f == math.Trunc(f) && int(f) < len(t), nil
	}
	return nil, fmt.Errorf("cannot use 'in' to search for %q in %T", value.String(key), obj)
}

// instanceOf reports whether x has the dynamic type of t. When t is a
// function, its first result type stands in for the constructed type.
func instanceOf(x, t any) (any, error) {
	if x == nil || t == nil {
		return false, nil
	}
	want := reflect.TypeOf(t)
	if want.Kind() == reflect.Func {
		if want.NumOut() == 0 {
			return false, nil
		}
		want = want.Out(0)
	}
	return reflect.TypeOf(x) == want, nil
}
