// Package expression compiles the small JavaScript-like expression language
// embedded in templates.
//
// Compilation is a single pass that discovers every data path an expression
// reads, replaces each distinct path with a positional identifier and hands
// the rewritten source to expr-lang for evaluation, with operators
// following JavaScript rules. The discovered paths
// are what the store subscribes to; the evaluator never looks anything up
// by name.
package expression

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/conneroisu/fibre/internal/errors"
	"github.com/conneroisu/fibre/internal/keypath"
)

// Delimiters mark where an interpolated expression begins and ends inside
// larger text.
type Delimiters struct {
	Open  string
	Close string
}

// Interpolation is the delimiter pair used for text nodes.
var Interpolation = &Delimiters{Open: "${", Close: "}"}

// Expression is the compiled form of one expression.
//
// Paths are unique and ordered by first occurrence. Source refers to the
// i-th path through the i-th positional identifier. Begin and End are the
// byte offsets of the whole construct in the input text, delimiters
// included.
type Expression struct {
	Paths  []keypath.KeyPath
	Source string
	Begin  int
	End    int

	program  *vm.Program
	constant bool
	value    any
}

// Func evaluates an expression. It takes one argument per path, in Paths
// order, and is safe to call concurrently.
type Func func(args ...any) (any, error)

// Compile scans text for one expression.
//
// With delims nil the entire text is the expression. Otherwise scanning
// starts after the first occurrence of delims.Open and stops at the first
// delims.Close found outside any bracket; when delims.Open does not occur
// Compile returns nil and a nil error.
func Compile(text string, delims *Delimiters) (*Expression, error) {
	begin, start, closing := 0, 0, ""
	if delims != nil {
		idx := strings.Index(text, delims.Open)
		if idx < 0 {
			return nil, nil
		}
		begin, start, closing = idx, idx+len(delims.Open), delims.Close
	}

	s := newScanner(text, start, closing)
	end, err := s.scan()
	if err != nil {
		return nil, err
	}

	source := strings.TrimSpace(s.out.String())
	if source == "" {
		return nil, errors.NewExpressionError(errors.ErrCodeEmptyExpression, "expression is empty").
			WithConstruct(text, begin)
	}

	e := &Expression{
		Paths:  s.paths,
		Source: source,
		Begin:  begin,
		End:    end,
	}
	if err := e.build(); err != nil {
		return nil, err
	}
	return e, nil
}

// MustCompile is like Compile with nil delimiters but panics on error.
func MustCompile(text string) *Expression {
	e, err := Compile(text, nil)
	if err != nil {
		panic(err)
	}
	return e
}

// Constant returns an expression without paths that always evaluates to v.
func Constant(v any) *Expression {
	source := fmt.Sprint(v)
	if s, ok := v.(string); ok {
		source = strconv.Quote(s)
	}
	return &Expression{Source: source, constant: true, value: v}
}

// Derive wraps the source of e with format, which must contain a single %s
// verb, keeping e's paths. The result is compiled like any other
// expression.
func Derive(e *Expression, format string) (*Expression, error) {
	d := &Expression{
		Paths:  e.Paths,
		Source: fmt.Sprintf(format, "("+e.Source+")"),
		Begin:  e.Begin,
		End:    e.End,
	}
	if err := d.build(); err != nil {
		return nil, err
	}
	return d, nil
}

func (e *Expression) build() error {
	text, err := translate(e.Source)
	if err != nil {
		return errors.NewExpressionError(errors.ErrCodeUnsupported, "expression cannot be parsed").
			WithConstruct(e.Source, 0).
			WithCause(err)
	}
	program, err := expr.Compile(text, options()...)
	if err != nil {
		return errors.NewExpressionError(errors.ErrCodeUnsupported, "expression cannot be evaluated").
			WithConstruct(e.Source, 0).
			WithCause(err)
	}
	e.program = program
	return nil
}

// Evaluate returns the evaluation function of e.
func (e *Expression) Evaluate() Func {
	if e.constant {
		v := e.value
		return func(...any) (any, error) { return v, nil }
	}

	names := make([]string, len(e.Paths))
	for i := range names {
		names[i] = identifier(i)
	}
	program := e.program
	source := e.Source

	return func(args ...any) (any, error) {
		if len(args) != len(names) {
			return nil, errors.NewExpressionError(errors.ErrCodeEvaluation,
				fmt.Sprintf("expected %d arguments, got %d", len(names), len(args))).
				WithConstruct(source, 0)
		}
		env := make(map[string]any, len(names))
		for i, name := range names {
			env[name] = args[i]
		}
		out, err := expr.Run(program, env)
		if err != nil {
			return nil, errors.NewExpressionError(errors.ErrCodeEvaluation, "evaluation failed").
				WithConstruct(source, 0).
				WithCause(err)
		}
		return out, nil
	}
}

// IsConstant reports whether e was built with Constant.
func (e *Expression) IsConstant() bool {
	return e.constant
}

// String returns the rewritten source.
func (e *Expression) String() string {
	return e.Source
}
