package template

import (
	"github.com/conneroisu/fibre/internal/dom"
	"github.com/conneroisu/fibre/internal/expression"
)

// Description is a serialisable view of a compiled template.
type Description struct {
	HTML       string                 `json:"html" yaml:"html"`
	Directives []DirectiveDescription `json:"directives" yaml:"directives"`
}

// DirectiveDescription describes one directive.
type DirectiveDescription struct {
	Kind     string                  `json:"kind" yaml:"kind"`
	Path     string                  `json:"path" yaml:"path"`
	Name     string                  `json:"name,omitempty" yaml:"name,omitempty"`
	Source   string                  `json:"source,omitempty" yaml:"source,omitempty"`
	Deps     []string                `json:"deps,omitempty" yaml:"deps,omitempty"`
	Guard    string                  `json:"guard,omitempty" yaml:"guard,omitempty"`
	Props    []PropDescription       `json:"props,omitempty" yaml:"props,omitempty"`
	Branches []BranchDescription     `json:"branches,omitempty" yaml:"branches,omitempty"`
	Template *Description            `json:"template,omitempty" yaml:"template,omitempty"`
	Slots    map[string]*Description `json:"slots,omitempty" yaml:"slots,omitempty"`
}

// PropDescription describes a component property.
type PropDescription struct {
	Name   string   `json:"name" yaml:"name"`
	Source string   `json:"source" yaml:"source"`
	Deps   []string `json:"deps,omitempty" yaml:"deps,omitempty"`
}

// BranchDescription describes a conditional or switch branch. An empty
// Condition always matches.
type BranchDescription struct {
	Condition string       `json:"condition,omitempty" yaml:"condition,omitempty"`
	Template  *Description `json:"template" yaml:"template"`
}

// Describe returns the description of t and everything nested in it.
func Describe(t *Template) *Description {
	if t == nil {
		return nil
	}
	d := &Description{
		HTML:       dom.Stringify(t.El),
		Directives: make([]DirectiveDescription, 0, len(t.Directives)),
	}
	for _, dir := range t.Directives {
		d.Directives = append(d.Directives, describeDirective(dir))
	}
	return d
}

func describeDirective(dir Directive) DirectiveDescription {
	out := DirectiveDescription{
		Kind: dir.Kind().String(),
		Path: dir.Target().String(),
	}

	switch d := dir.(type) {
	case *Text:
		out.Source, out.Deps = source(d.Expr)
	case *Setter:
		out.Name = d.Name
		out.Source, out.Deps = source(d.Expr)
	case *Listener:
		out.Name = d.Event
		out.Source, out.Deps = source(d.Expr)
	case *Conditional:
		if d.Guard != nil {
			out.Guard = d.Guard.Source
		}
		out.Branches = describeBranches(d.Branches)
	case *Switch:
		out.Source, out.Deps = source(d.Expr)
		out.Branches = describeBranches(d.Branches)
	case *Loop:
		out.Name = d.Value
		if d.Key != "" {
			out.Name = "[" + d.Key + ", " + d.Value + "]"
		}
		out.Source, out.Deps = source(d.Expr)
		out.Template = Describe(d.Template)
	case *Component:
		out.Name = d.Name
		for _, p := range d.Props {
			src, deps := source(p.Expr)
			out.Props = append(out.Props, PropDescription{Name: p.Name, Source: src, Deps: deps})
		}
		if len(d.Slots) > 0 {
			out.Slots = make(map[string]*Description, len(d.Slots))
			for name, sub := range d.Slots {
				out.Slots[name] = Describe(sub)
			}
		}
	case *Slot:
		out.Name = d.Name
		out.Template = Describe(d.Default)
	case *Reference:
		out.Name = d.Name
	}
	return out
}

func describeBranches(branches []*Branch) []BranchDescription {
	out := make([]BranchDescription, 0, len(branches))
	for _, b := range branches {
		bd := BranchDescription{Template: Describe(b.Template)}
		if b.Cond != nil {
			bd.Condition = b.Cond.Source
		}
		out = append(out, bd)
	}
	return out
}

func source(e *expression.Expression) (string, []string) {
	if e == nil {
		return "", nil
	}
	var deps []string
	for _, p := range e.Paths {
		deps = append(deps, p.String())
	}
	return e.Source, deps
}
