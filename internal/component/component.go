// Package component instantiates compiled templates into live component
// trees.
//
// A Component owns a clone of its template's root and one live directive
// per compiled directive. Directives read state through a store.Scope and
// subscribe to the key paths their expressions depend on, so a flush of
// that scope re-runs exactly the directives whose inputs changed.
//
// Scopes follow three rules. A root component owns a store.Store. Branches
// of conditionals and switches, and slot content, share the scope that
// defines them. Loop items and nested components get a store.Layer over
// their host's scope holding their own keys.
package component

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/conneroisu/fibre/internal/dom"
	"github.com/conneroisu/fibre/internal/errors"
	"github.com/conneroisu/fibre/internal/keypath"
	"github.com/conneroisu/fibre/internal/logging"
	"github.com/conneroisu/fibre/internal/nodepath"
	"github.com/conneroisu/fibre/internal/store"
	"github.com/conneroisu/fibre/internal/template"
	"github.com/conneroisu/fibre/internal/value"
)

// Method is a component method callable from listener expressions as
// this.<name>(args...).
type Method func(c *Component, args ...any) any

// Options defines a component.
type Options struct {
	// Template is the component's HTML. It must have exactly one root
	// element.
	Template string
	// State returns the initial state of each instance.
	State func() map[string]any
	// Methods are exposed on the listener handle.
	Methods map[string]Method
}

// Factory creates instances of one registered component.
type Factory struct {
	name     string
	tmpl     *template.Template
	opts     Options
	registry *Registry
}

// Name returns the tag name the factory is registered under.
func (f *Factory) Name() string { return f.name }

// Template returns the compiled template.
func (f *Factory) Template() *template.Template { return f.tmpl }

func (f *Factory) state() map[string]any {
	if f.opts.State == nil {
		return map[string]any{}
	}
	s := f.opts.State()
	if s == nil {
		return map[string]any{}
	}
	return s
}

// New creates a standalone root component that owns its store. props are
// merged over the initial state.
func (f *Factory) New(props map[string]any) (*Component, error) {
	data := f.state()
	for k, v := range props {
		data[k] = v
	}
	c := f.registry.newComponent(f, nil, store.New(data))
	if err := c.install(); err != nil {
		return nil, err
	}
	c.logger.Debug(context.Background(), "component mounted", "id", c.id)
	return c, nil
}

// nested creates a component hosted by host whose state layers over scope.
// Props and state keys are owned by the layer; every other read falls
// through to scope.
func (f *Factory) nested(host *Component, scope store.Scope, props map[string]any, slots map[string]*filler) (*Component, error) {
	data := f.state()
	keys := make([]string, 0, len(data)+len(props))
	for k := range data {
		keys = append(keys, k)
	}
	for k, v := range props {
		keys = append(keys, k)
		data[k] = v
	}
	c := f.registry.newComponent(f, host, store.NewLayer(scope, keys, data))
	c.slots = slots
	if err := c.install(); err != nil {
		return nil, err
	}
	return c, nil
}

// filler is slot content together with the scope it was written in.
type filler struct {
	tmpl  *template.Template
	host  *Component
	scope store.Scope
}

// directive is a live, installed directive.
type directive interface {
	destroy()
}

// Component is a live instance of a template.
type Component struct {
	id       string
	factory  *Factory
	registry *Registry
	tmpl     *template.Template
	el       *html.Node
	scope    store.Scope
	host     *Component

	refs       map[string]*html.Node
	slots      map[string]*filler
	directives []directive

	scheduled bool
	destroyed bool
	logger    logging.Logger
}

func (r *Registry) newComponent(f *Factory, host *Component, scope store.Scope) *Component {
	c := &Component{
		id:       uuid.NewString(),
		factory:  f,
		registry: r,
		tmpl:     f.tmpl,
		el:       dom.Clone(f.tmpl.El),
		scope:    scope,
		host:     host,
		refs:     make(map[string]*html.Node),
	}
	c.logger = r.logger.With("component", f.name, "id", c.id)
	return c
}

// partial instantiates a sub-template hosted by c over scope.
func (c *Component) partial(tmpl *template.Template, scope store.Scope) (*Component, error) {
	p := &Component{
		id:       uuid.NewString(),
		registry: c.registry,
		tmpl:     tmpl,
		el:       dom.Clone(tmpl.El),
		scope:    scope,
		host:     c,
		logger:   c.logger,
	}
	if err := p.install(); err != nil {
		return nil, err
	}
	return p, nil
}

// install resolves every directive target and then installs the
// directives in order. Targets are resolved up front because installing
// a loop inserts siblings that would shift later paths.
func (c *Component) install() error {
	nodes := make([]*html.Node, len(c.tmpl.Directives))
	for i, d := range c.tmpl.Directives {
		n := nodepath.Resolve(c.el, d.Target())
		if n == nil {
			return errors.NewAssertionError("component", errors.ErrCodeNodeResolution,
				fmt.Sprintf("%s directive path %q does not resolve", d.Kind(), d.Target())).
				WithConstruct(dom.Stringify(c.tmpl.El), 0)
		}
		nodes[i] = n
	}

	for i, d := range c.tmpl.Directives {
		live, err := c.installDirective(d, nodes[i])
		if err != nil {
			c.Destroy()
			return err
		}
		c.directives = append(c.directives, live)
	}
	return nil
}

func (c *Component) installDirective(d template.Directive, n *html.Node) (directive, error) {
	switch d := d.(type) {
	case *template.Text:
		return newBinding(c, n, d.Expr, func(v any) { dom.SetTextContent(n, value.String(v)) }), nil
	case *template.Setter:
		return newBinding(c, n, d.Expr, setterEffect(n, d)), nil
	case *template.Listener:
		return newListener(c, n, d), nil
	case *template.Reference:
		return newReference(c, n, d), nil
	case *template.Conditional:
		return newConditional(c, n, d), nil
	case *template.Switch:
		return newSwitch(c, n, d), nil
	case *template.Loop:
		return newLoop(c, n, d), nil
	case *template.Component:
		return newNested(c, n, d)
	case *template.Slot:
		return newSlot(c, n, d)
	}
	return nil, errors.NewAssertionError("component", errors.ErrCodeInternalError,
		fmt.Sprintf("unknown directive kind %s", d.Kind()))
}

// ID returns the instance id.
func (c *Component) ID() string { return c.id }

// Name returns the component's tag name, or "" for a partial.
func (c *Component) Name() string {
	if c.factory == nil {
		return ""
	}
	return c.factory.name
}

// El returns the component's root node.
func (c *Component) El() *html.Node { return c.el }

// Store returns the component's scope.
func (c *Component) Store() store.Scope { return c.scope }

// Host returns the component hosting c, or nil for a root.
func (c *Component) Host() *Component { return c.host }

// Refs returns the nodes registered with ref directives anywhere in the
// tree rooted at the outermost component.
func (c *Component) Refs() map[string]*html.Node { return c.outermost().refs }

// Get reads a value from the component's scope.
func (c *Component) Get(path string) (any, bool) {
	p, err := keypath.Parse(path)
	if err != nil {
		return nil, false
	}
	return c.scope.Get(p)
}

// Render returns the component's current HTML.
func (c *Component) Render() string {
	return dom.Stringify(c.el)
}

// Merge merges props into the component's state and flushes immediately.
func (c *Component) Merge(props map[string]any) error {
	if err := c.scope.Merge(props); err != nil {
		return err
	}
	c.scope.Update()
	return nil
}

// MergeState merges data into the component's state and schedules one
// flush on the registry's loop. Merges made before that flush runs share
// it.
func (c *Component) MergeState(data map[string]any) error {
	if err := c.scope.Merge(data); err != nil {
		return err
	}
	if c.scheduled {
		return nil
	}
	c.scheduled = true
	c.registry.loop.Post(func() {
		c.scheduled = false
		if !c.destroyed {
			c.scope.Update()
		}
	})
	return nil
}

// Update flushes the component's scope now.
func (c *Component) Update() {
	c.scope.Update()
}

// Dispatch fires an event of type typ at n and reports whether its default
// action may proceed.
func (c *Component) Dispatch(n *html.Node, typ string, detail any) bool {
	return dom.Dispatch(n, dom.NewEvent(typ, detail))
}

// Destroy tears down every directive, unsubscribing from the scope and
// destroying child components. The component must not be used afterwards.
func (c *Component) Destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true
	for _, d := range c.directives {
		d.destroy()
	}
	c.directives = nil
	if c.factory != nil {
		c.logger.Debug(context.Background(), "component destroyed", "id", c.id)
	}
}

// owner returns the nearest component created from a factory. Partials
// belong to the component whose template they came from.
func (c *Component) owner() *Component {
	for x := c; x != nil; x = x.host {
		if x.factory != nil {
			return x
		}
	}
	return c
}

func (c *Component) outermost() *Component {
	x := c
	for x.host != nil {
		x = x.host
	}
	return x
}

// handle is the value "this" takes in listener expressions.
func (c *Component) handle() map[string]any {
	o := c.owner()
	refs := make(map[string]any, len(o.Refs()))
	for k, v := range o.Refs() {
		refs[k] = v
	}

	h := map[string]any{
		"el":   o.el,
		"refs": refs,
		"merge": func(args ...any) any {
			if len(args) != 1 {
				o.logger.Warn(context.Background(), nil, "merge expects one argument", "got", len(args))
				return nil
			}
			data, ok := args[0].(map[string]any)
			if !ok {
				o.logger.Warn(context.Background(), nil, "merge expects an object", "got", fmt.Sprintf("%T", args[0]))
				return nil
			}
			if err := o.MergeState(data); err != nil {
				o.logger.Warn(context.Background(), err, "merge from listener failed")
			}
			return nil
		},
		"update": func(...any) any {
			o.Update()
			return nil
		},
	}
	if o.factory != nil {
		for name, m := range o.factory.opts.Methods {
			m := m
			h[name] = func(args ...any) any { return m(o, args...) }
		}
	}
	return h
}

// evaluate binds e's paths to values read from scope and runs it.
func evaluate(scope store.Scope, e evaluable) (any, error) {
	args := make([]any, len(e.paths()))
	for i, p := range e.paths() {
		args[i], _ = scope.Get(p)
	}
	return e.run(args...)
}

// subscribe attaches t to every path and returns the matching
// unsubscribe.
func subscribe(scope store.Scope, paths []keypath.KeyPath, t store.Task) func() {
	for _, p := range paths {
		scope.Subscribe(p, t)
	}
	return func() {
		for _, p := range paths {
			scope.Unsubscribe(p, t)
		}
	}
}

// lookup walks path through plain data and element properties.
func lookup(v any, path keypath.KeyPath) any {
	cur := v
	for _, seg := range path {
		switch c := cur.(type) {
		case *html.Node:
			if c == nil {
				return nil
			}
			cur = dom.Property(c, keypath.Key(seg))
		default:
			next, ok := store.Lookup(cur, keypath.KeyPath{seg})
			if !ok {
				return nil
			}
			cur = next
		}
	}
	return cur
}
