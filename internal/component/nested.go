package component

import (
	"context"
	"fmt"

	"golang.org/x/net/html"

	"github.com/conneroisu/fibre/internal/dom"
	"github.com/conneroisu/fibre/internal/errors"
	"github.com/conneroisu/fibre/internal/keypath"
	"github.com/conneroisu/fibre/internal/template"
)

type prop struct {
	name string
	expr evaluable
}

// nested is a component instantiated from a custom tag. Its props stay
// live: a change to any prop input is merged into the child and flushed
// right away.
type nested struct {
	host        *Component
	props       []prop
	child       *Component
	unsubscribe func()
}

func newNested(c *Component, n *html.Node, d *template.Component) (*nested, error) {
	f, ok := c.registry.Get(d.Name)
	if !ok {
		return nil, errors.NewAssertionError("component", errors.ErrCodeUnknownComponent,
			fmt.Sprintf("component %q is not registered", d.Name)).
			WithConstruct("<"+d.Name+">", 0)
	}

	x := &nested{host: c}
	var paths []keypath.KeyPath
	for _, p := range d.Props {
		x.props = append(x.props, prop{name: p.Name, expr: bind(p.Expr)})
		paths = append(paths, p.Expr.Paths...)
	}

	slots := make(map[string]*filler, len(d.Slots))
	for name, tmpl := range d.Slots {
		slots[name] = &filler{tmpl: tmpl, host: c, scope: c.scope}
	}

	child, err := f.nested(c, c.scope, x.values(), slots)
	if err != nil {
		return nil, err
	}
	x.child = child
	c.replaceNode(n, child.el)

	x.unsubscribe = subscribe(c.scope, paths, x)
	return x, nil
}

// values evaluates every prop. A prop that fails is logged and passed as
// nil.
func (x *nested) values() map[string]any {
	out := make(map[string]any, len(x.props))
	for _, p := range x.props {
		v, err := evaluate(x.host.scope, p.expr)
		if err != nil {
			x.host.logger.Warn(context.Background(), err, "prop not evaluated", "prop", p.name)
		}
		out[p.name] = v
	}
	return out
}

// Execute implements store.Task.
func (x *nested) Execute() {
	if err := x.child.Merge(x.values()); err != nil {
		x.host.logger.Warn(context.Background(), err, "props not merged", "component", x.child.Name())
	}
}

func (x *nested) destroy() {
	x.unsubscribe()
	x.child.Destroy()
}

// slot mounts the filler its component received, bound to the scope the
// filler was written in, or its own default bound to the host's scope.
type slot struct {
	child *Component
}

func newSlot(c *Component, n *html.Node, d *template.Slot) (*slot, error) {
	var (
		child *Component
		err   error
	)
	if f, ok := c.owner().slots[d.Name]; ok {
		child, err = f.host.partial(f.tmpl, f.scope)
	} else if d.Default != nil {
		child, err = c.partial(d.Default, c.scope)
	} else {
		return nil, errors.NewAssertionError("component", errors.ErrCodeMissingSlot,
			fmt.Sprintf("slot %q has no content and no default", d.Name)).
			WithConstruct(c.owner().Name(), 0)
	}
	if err != nil {
		return nil, err
	}
	c.replaceNode(n, child.el)
	return &slot{child: child}, nil
}

func (s *slot) destroy() {
	s.child.Destroy()
}

// replaceNode swaps old for repl, following the component root when old is
// the root itself.
func (c *Component) replaceNode(old, repl *html.Node) {
	if old == c.el {
		c.el = repl
	}
	dom.ReplaceNode(old, repl)
}
