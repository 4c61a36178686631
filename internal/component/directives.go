package component

import (
	"context"

	"golang.org/x/net/html"

	"github.com/conneroisu/fibre/internal/dom"
	"github.com/conneroisu/fibre/internal/expression"
	"github.com/conneroisu/fibre/internal/keypath"
	"github.com/conneroisu/fibre/internal/template"
	"github.com/conneroisu/fibre/internal/value"
)

// evaluable pairs an expression with its evaluation function.
type evaluable struct {
	expr *expression.Expression
	fn   expression.Func
}

func bind(e *expression.Expression) evaluable {
	return evaluable{expr: e, fn: e.Evaluate()}
}

func (e evaluable) paths() []keypath.KeyPath { return e.expr.Paths }

func (e evaluable) run(args ...any) (any, error) { return e.fn(args...) }

// binding drives one DOM effect from one expression. It covers text
// nodes and every setter kind.
type binding struct {
	host        *Component
	expr        evaluable
	apply       func(any)
	last        any
	applied     bool
	unsubscribe func()
}

func newBinding(c *Component, n *html.Node, e *expression.Expression, apply func(any)) *binding {
	b := &binding{host: c, expr: bind(e), apply: apply}
	b.Execute()
	b.unsubscribe = subscribe(c.scope, e.Paths, b)
	return b
}

// Execute implements store.Task.
func (b *binding) Execute() {
	v, err := evaluate(b.host.scope, b.expr)
	if err != nil {
		b.host.logger.Warn(context.Background(), err, "binding not updated", "expr", b.expr.expr.String())
		return
	}
	if b.applied && !value.IsContainer(v) && value.SameValueZero(v, b.last) {
		return
	}
	b.last, b.applied = v, true
	b.apply(v)
}

func (b *binding) destroy() {
	b.unsubscribe()
}

func setterEffect(n *html.Node, d *template.Setter) func(any) {
	switch d.Type {
	case template.KindProperty:
		return func(v any) { dom.SetProperty(n, d.Name, v) }
	case template.KindDataset:
		return func(v any) { dom.SetDataset(n, d.Name, v) }
	case template.KindClassName:
		return func(v any) { setOrRemove(n, "class", dom.ClassString(d.Preset, v)) }
	case template.KindStyle:
		return func(v any) { setOrRemove(n, "style", dom.StyleString(d.Preset, v)) }
	default:
		return func(v any) { dom.SetAttribute(n, d.Name, v) }
	}
}

func setOrRemove(n *html.Node, name, s string) {
	if s == "" {
		dom.RemoveAttr(n, name)
		return
	}
	dom.SetAttr(n, name, s)
}

// listener runs a handler expression when its event reaches the node.
// Handlers read state when they fire, so they hold no subscriptions.
type listener struct {
	host   *Component
	expr   evaluable
	remove func()
}

func newListener(c *Component, n *html.Node, d *template.Listener) *listener {
	l := &listener{host: c, expr: bind(d.Expr)}
	l.remove = dom.AddEventListener(n, d.Event, l.trigger)
	return l
}

func (l *listener) trigger(e *dom.Event) {
	var self, event map[string]any
	args := make([]any, len(l.expr.paths()))
	for i, p := range l.expr.paths() {
		switch p.Head() {
		case "this":
			if self == nil {
				self = l.host.handle()
			}
			args[i] = lookup(self, p[1:])
		case "event":
			if event == nil {
				event = eventView(e)
			}
			args[i] = lookup(event, p[1:])
		default:
			args[i], _ = l.host.scope.Get(p)
		}
	}
	if _, err := l.expr.run(args...); err != nil {
		l.host.logger.Warn(context.Background(), err, "event handler failed",
			"event", e.Type, "expr", l.expr.expr.String())
	}
}

func (l *listener) destroy() {
	l.remove()
}

// eventView is the value "event" takes in handler expressions.
func eventView(e *dom.Event) map[string]any {
	return map[string]any{
		"type":             e.Type,
		"target":           e.Target,
		"currentTarget":    e.CurrentTarget,
		"detail":           e.Detail,
		"defaultPrevented": e.DefaultPrevented(),
		"preventDefault": func(...any) any {
			e.PreventDefault()
			return nil
		},
		"stopPropagation": func(...any) any {
			e.StopPropagation()
			return nil
		},
	}
}

// reference registers its node in the outermost component's refs.
type reference struct {
	root *Component
	name string
	node *html.Node
}

func newReference(c *Component, n *html.Node, d *template.Reference) *reference {
	r := &reference{root: c.outermost(), name: d.Name, node: n}
	r.root.refs[r.name] = n
	return r
}

func (r *reference) destroy() {
	if r.root.refs[r.name] == r.node {
		delete(r.root.refs, r.name)
	}
}
