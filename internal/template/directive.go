package template

import (
	"golang.org/x/net/html"

	"github.com/conneroisu/fibre/internal/expression"
	"github.com/conneroisu/fibre/internal/nodepath"
)

// Kind names a directive variant.
type Kind int

const (
	KindText Kind = iota
	KindProperty
	KindAttribute
	KindDataset
	KindClassName
	KindStyle
	KindListener
	KindIf
	KindSwitch
	KindFor
	KindComponent
	KindSlot
	KindReference
)

var kindNames = map[Kind]string{
	KindText:      "text",
	KindProperty:  "property",
	KindAttribute: "attribute",
	KindDataset:   "dataset",
	KindClassName: "className",
	KindStyle:     "style",
	KindListener:  "listener",
	KindIf:        "if",
	KindSwitch:    "switch",
	KindFor:       "for",
	KindComponent: "component",
	KindSlot:      "slot",
	KindReference: "reference",
}

// String returns the kind's name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Template is a compiled, read-only template: a detached root node and
// the directives addressed against it. A template is shared by every
// instance created from it.
type Template struct {
	El         *html.Node
	Directives []Directive
}

// Directive is one compiled directive configuration. The set of
// implementations is closed: *Text, *Setter, *Listener, *Conditional,
// *Switch, *Loop, *Component, *Slot and *Reference.
type Directive interface {
	Kind() Kind
	Target() nodepath.Path
	sealed()
}

// At records where a directive's target sits relative to its template
// root.
type At struct {
	Path nodepath.Path
}

// Target returns the node path of the directive's target.
func (a At) Target() nodepath.Path { return a.Path }

func (At) sealed() {}

// Text binds a text node's content to an expression.
type Text struct {
	At
	Expr *expression.Expression
}

// Kind implements Directive.
func (*Text) Kind() Kind { return KindText }

// Setter binds an element property, attribute, dataset entry, class list
// or inline style to an expression. Preset holds the static class or
// style text the element carried before compilation.
type Setter struct {
	At
	Type   Kind
	Name   string
	Preset string
	Expr   *expression.Expression
}

// Kind implements Directive.
func (s *Setter) Kind() Kind { return s.Type }

// Listener attaches an event handler expression.
type Listener struct {
	At
	Event string
	Expr  *expression.Expression
}

// Kind implements Directive.
func (*Listener) Kind() Kind { return KindListener }

// Branch is one alternative of a conditional or switch. A nil Cond always
// matches.
type Branch struct {
	Cond     *expression.Expression
	Template *Template
}

// Conditional mounts the first branch whose condition is truthy. When
// Guard is set it must be truthy too before any branch is considered;
// branches that follow a loop use it to test for an empty collection.
type Conditional struct {
	At
	Guard    *expression.Expression
	Branches []*Branch
}

// Kind implements Directive.
func (*Conditional) Kind() Kind { return KindIf }

// Switch mounts the first branch whose case value equals the switched
// value.
type Switch struct {
	At
	Expr     *expression.Expression
	Branches []*Branch
}

// Kind implements Directive.
func (*Switch) Kind() Kind { return KindSwitch }

// Loop repeats Template once per item of the collection. Key is empty for
// the "item of list" form.
type Loop struct {
	At
	Key      string
	Value    string
	Expr     *expression.Expression
	Template *Template
}

// Kind implements Directive.
func (*Loop) Kind() Kind { return KindFor }

// Prop is one camel-cased component property.
type Prop struct {
	Name string
	Expr *expression.Expression
}

// Component instantiates a registered component in place of the target
// element.
type Component struct {
	At
	Name  string
	Props []Prop
	Slots map[string]*Template
}

// Kind implements Directive.
func (*Component) Kind() Kind { return KindComponent }

// Slot mounts the filler the host component received under Name, or
// Default when there is none.
type Slot struct {
	At
	Name    string
	Default *Template
}

// Kind implements Directive.
func (*Slot) Kind() Kind { return KindSlot }

// Reference registers the target element under Name in the outermost
// component's refs.
type Reference struct {
	At
	Name string
}

// Kind implements Directive.
func (*Reference) Kind() Kind { return KindReference }
