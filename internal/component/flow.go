package component

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"golang.org/x/net/html"

	"github.com/conneroisu/fibre/internal/dom"
	"github.com/conneroisu/fibre/internal/errors"
	"github.com/conneroisu/fibre/internal/keypath"
	"github.com/conneroisu/fibre/internal/store"
	"github.com/conneroisu/fibre/internal/template"
	"github.com/conneroisu/fibre/internal/value"
)

// mount holds the branch currently shown in place of a marker.
type mount struct {
	host    *Component
	marker  *html.Node
	index   int
	started bool
	child   *Component
}

func (m *mount) current() *html.Node {
	if m.child != nil {
		return m.child.el
	}
	return m.marker
}

// show mounts branch index, or the bare marker when index is -1. Showing
// the branch that is already mounted does nothing.
func (m *mount) show(index int, tmpl *template.Template) {
	if m.started && index == m.index {
		return
	}
	m.started = true
	m.index = index

	old := m.current()
	if m.child != nil {
		m.child.Destroy()
		m.child = nil
	}

	next := m.marker
	if index >= 0 {
		child, err := m.host.partial(tmpl, m.host.scope)
		if err != nil {
			m.host.logger.Error(context.Background(), err, "branch not mounted", "branch", index)
			m.index = -1
		} else {
			m.child = child
			next = child.el
		}
	}
	m.host.replaceNode(old, next)
}

func (m *mount) destroy() {
	if m.child != nil {
		m.child.Destroy()
		m.child = nil
	}
}

// conditional mounts the first branch whose condition holds.
type conditional struct {
	host        *Component
	cfg         *template.Conditional
	guard       *evaluable
	conds       []*evaluable
	mount       *mount
	unsubscribe func()
}

func newConditional(c *Component, n *html.Node, d *template.Conditional) *conditional {
	x := &conditional{
		host:  c,
		cfg:   d,
		mount: &mount{host: c, marker: n, index: -1},
	}

	var paths []keypath.KeyPath
	if d.Guard != nil {
		g := bind(d.Guard)
		x.guard = &g
		paths = append(paths, d.Guard.Paths...)
	}
	for _, b := range d.Branches {
		if b.Cond == nil {
			x.conds = append(x.conds, nil)
			continue
		}
		e := bind(b.Cond)
		x.conds = append(x.conds, &e)
		paths = append(paths, b.Cond.Paths...)
	}

	x.Execute()
	x.unsubscribe = subscribe(c.scope, paths, x)
	return x
}

// Execute implements store.Task.
func (x *conditional) Execute() {
	index, err := x.match()
	if err != nil {
		x.host.logger.Warn(context.Background(), err, "condition not evaluated")
		return
	}
	var tmpl *template.Template
	if index >= 0 {
		tmpl = x.cfg.Branches[index].Template
	}
	x.mount.show(index, tmpl)
}

func (x *conditional) match() (int, error) {
	if x.guard != nil {
		v, err := evaluate(x.host.scope, *x.guard)
		if err != nil {
			return -1, err
		}
		if !value.Truthy(v) {
			return -1, nil
		}
	}
	for i, cond := range x.conds {
		if cond == nil {
			return i, nil
		}
		v, err := evaluate(x.host.scope, *cond)
		if err != nil {
			return -1, err
		}
		if value.Truthy(v) {
			return i, nil
		}
	}
	return -1, nil
}

func (x *conditional) destroy() {
	x.unsubscribe()
	x.mount.destroy()
}

// switcher mounts the first branch whose case equals the switched value.
type switcher struct {
	host        *Component
	cfg         *template.Switch
	expr        evaluable
	cases       []*evaluable
	mount       *mount
	unsubscribe func()
}

func newSwitch(c *Component, n *html.Node, d *template.Switch) *switcher {
	x := &switcher{
		host:  c,
		cfg:   d,
		expr:  bind(d.Expr),
		mount: &mount{host: c, marker: n, index: -1},
	}

	paths := append([]keypath.KeyPath(nil), d.Expr.Paths...)
	for _, b := range d.Branches {
		if b.Cond == nil {
			x.cases = append(x.cases, nil)
			continue
		}
		e := bind(b.Cond)
		x.cases = append(x.cases, &e)
		paths = append(paths, b.Cond.Paths...)
	}

	x.Execute()
	x.unsubscribe = subscribe(c.scope, paths, x)
	return x
}

// Execute implements store.Task.
func (x *switcher) Execute() {
	index, err := x.match()
	if err != nil {
		x.host.logger.Warn(context.Background(), err, "switch not evaluated")
		return
	}
	var tmpl *template.Template
	if index >= 0 {
		tmpl = x.cfg.Branches[index].Template
	}
	x.mount.show(index, tmpl)
}

func (x *switcher) match() (int, error) {
	v, err := evaluate(x.host.scope, x.expr)
	if err != nil {
		return -1, err
	}
	for i, c := range x.cases {
		if c == nil {
			return i, nil
		}
		cv, err := evaluate(x.host.scope, *c)
		if err != nil {
			return -1, err
		}
		if value.SameValueZero(v, cv) {
			return i, nil
		}
	}
	return -1, nil
}

func (x *switcher) destroy() {
	x.unsubscribe()
	x.mount.destroy()
}

// entry is one iteration of a loop.
type entry struct {
	key any
	val any
}

// loop keeps one item component per collection entry, reused by
// position.
type loop struct {
	host        *Component
	cfg         *template.Loop
	expr        evaluable
	marker      *html.Node
	items       []*Component
	unsubscribe func()
}

func newLoop(c *Component, n *html.Node, d *template.Loop) *loop {
	l := &loop{host: c, cfg: d, expr: bind(d.Expr), marker: n}
	l.Execute()
	l.unsubscribe = subscribe(c.scope, d.Expr.Paths, l)
	return l
}

// Execute implements store.Task.
func (l *loop) Execute() {
	v, err := evaluate(l.host.scope, l.expr)
	if err != nil {
		l.host.logger.Warn(context.Background(), err, "loop not evaluated")
		return
	}
	entries, err := iterate(v)
	if err != nil {
		l.host.logger.Warn(context.Background(), err, "loop not updated")
		return
	}

	for len(l.items) > len(entries) {
		last := l.items[len(l.items)-1]
		last.Destroy()
		dom.RemoveNode(last.el)
		l.items = l.items[:len(l.items)-1]
	}

	for i, item := range l.items {
		if err := item.scope.Merge(l.data(entries[i])); err != nil {
			// The item changed shape; start it over.
			fresh, err := l.spawn(entries[i])
			if err != nil {
				l.host.logger.Error(context.Background(), err, "loop item not replaced", "index", i)
				continue
			}
			item.Destroy()
			dom.ReplaceNode(item.el, fresh.el)
			l.items[i] = fresh
			continue
		}
		item.scope.Update()
	}

	for i := len(l.items); i < len(entries); i++ {
		item, err := l.spawn(entries[i])
		if err != nil {
			l.host.logger.Error(context.Background(), err, "loop item not mounted", "index", i)
			return
		}
		after := l.marker
		if len(l.items) > 0 {
			after = l.items[len(l.items)-1].el
		}
		dom.InsertAfter(after, item.el)
		l.items = append(l.items, item)
	}
}

func (l *loop) spawn(e entry) (*Component, error) {
	keys := []string{l.cfg.Value}
	if l.cfg.Key != "" {
		keys = append(keys, l.cfg.Key)
	}
	return l.host.partial(l.cfg.Template, store.NewLayer(l.host.scope, keys, l.data(e)))
}

func (l *loop) data(e entry) map[string]any {
	m := map[string]any{l.cfg.Value: e.val}
	if l.cfg.Key != "" {
		m[l.cfg.Key] = e.key
	}
	return m
}

func (l *loop) destroy() {
	l.unsubscribe()
	for _, item := range l.items {
		item.Destroy()
	}
	l.items = nil
}

// iterate lists the entries of a collection. Slices yield their indices
// as keys; maps yield their keys in sorted order; nil yields nothing.
func iterate(v any) ([]entry, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]entry, len(t))
		for i, x := range t {
			out[i] = entry{key: i, val: x}
		}
		return out, nil
	case map[string]any:
		keys := value.SortedKeys(t)
		out := make([]entry, len(keys))
		for i, k := range keys {
			out[i] = entry{key: k, val: t[k]}
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]entry, rv.Len())
		for i := range out {
			out[i] = entry{key: i, val: rv.Index(i).Interface()}
		}
		return out, nil
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return value.String(keys[i].Interface()) < value.String(keys[j].Interface())
		})
		out := make([]entry, len(keys))
		for i, k := range keys {
			out[i] = entry{key: k.Interface(), val: rv.MapIndex(k).Interface()}
		}
		return out, nil
	}
	return nil, errors.NewAssertionError("component", errors.ErrCodeTypeMismatch,
		fmt.Sprintf("cannot iterate over %T", v))
}
