// Package template compiles annotated HTML into directive lists.
//
// Compilation walks a detached element once in document order. Dynamic
// text is split out into its own text node, structural elements are
// swapped for mount markers, and every directive records the node path of
// its target after those replacements so the path can be replayed against
// any clone of the compiled root.
package template

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/conneroisu/fibre/internal/dom"
	"github.com/conneroisu/fibre/internal/errors"
	"github.com/conneroisu/fibre/internal/expression"
	"github.com/conneroisu/fibre/internal/nodepath"
)

// DefaultPrefix marks directive attributes.
const DefaultPrefix = "--"

// Registry reports which custom tags name registered components.
type Registry interface {
	Has(name string) bool
}

// Options configures compilation.
type Options struct {
	// Prefix marks directive attributes. Defaults to DefaultPrefix.
	Prefix string
	// Delimiters surround expressions in text. Defaults to ${ and }.
	Delimiters *expression.Delimiters
	// Components resolves custom tags. nil means none are registered.
	Components Registry
}

func (o Options) withDefaults() Options {
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.Delimiters == nil {
		o.Delimiters = expression.Interpolation
	}
	return o
}

// Mount marker kinds.
const (
	MarkIf     = "if"
	MarkFor    = "for"
	MarkSwitch = "switch"
	MarkSlot   = "slot"
)

// DefaultSlot is the name of a slot declared without one.
const DefaultSlot = "default"

var flowControl = []string{"if", "elif", "else", "for", "switch", "case", "default"}

// preserving lists the elements whose whitespace-only text children are
// kept.
var preserving = map[atom.Atom]bool{
	atom.A: true, atom.Abbr: true, atom.B: true, atom.Bdi: true, atom.Bdo: true,
	atom.Button: true, atom.Cite: true, atom.Code: true, atom.Data: true,
	atom.Dd: true, atom.Dfn: true, atom.Dt: true, atom.Em: true,
	atom.Figcaption: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true, atom.I: true, atom.Kbd: true,
	atom.Label: true, atom.Legend: true, atom.Li: true, atom.Mark: true,
	atom.Option: true, atom.P: true, atom.Pre: true, atom.Q: true, atom.S: true,
	atom.Samp: true, atom.Small: true, atom.Span: true, atom.Strong: true,
	atom.Sub: true, atom.Summary: true, atom.Sup: true, atom.Td: true,
	atom.Textarea: true, atom.Th: true, atom.Time: true, atom.Title: true,
	atom.U: true, atom.Var: true,
}

var loopHeader = regexp.MustCompile(`^\s*(?:([A-Za-z_$][\w$]*)|\[\s*([A-Za-z_$][\w$]*)\s*,\s*([A-Za-z_$][\w$]*)\s*\])\s+of\s+(\S[\s\S]*)$`)

type compiler struct {
	opts  Options
	walk  *nodepath.Walker
	out   *Template
	conds map[*html.Node]*Conditional
	loops map[*html.Node]*Loop
}

// Compile compiles root in place. root must be detached; it is mutated
// and may be replaced, so callers must use the returned template's El.
// A root carrying a loop is moved into a document node fragment, which
// becomes El.
func Compile(root *html.Node, opts Options) (*Template, error) {
	return compile(root, opts.withDefaults())
}

func compile(root *html.Node, opts Options) (*Template, error) {
	c := &compiler{
		opts:  opts,
		out:   &Template{},
		conds: make(map[*html.Node]*Conditional),
		loops: make(map[*html.Node]*Loop),
	}
	// A root loop expands into siblings, which need a parent to live in.
	if root.Type == html.ElementNode && root.Parent == nil && c.has(root, "for") {
		fragment := &html.Node{Type: html.DocumentNode}
		fragment.AppendChild(root)
		root = fragment
	}
	c.walk = nodepath.NewWalker(root)

	for n := c.walk.Current(); n != nil; {
		var err error
		switch n.Type {
		case html.TextNode:
			n, err = c.text(n)
		case html.ElementNode:
			n, err = c.element(n)
		default:
			n = c.walk.Next()
		}
		if err != nil {
			return nil, err
		}
	}

	c.out.El = c.walk.Root()
	return c.out, nil
}

func (c *compiler) path(n *html.Node) nodepath.Path {
	return nodepath.Of(c.walk.Root(), n)
}

func (c *compiler) push(d Directive) {
	c.out.Directives = append(c.out.Directives, d)
}

func (c *compiler) text(n *html.Node) (*html.Node, error) {
	if strings.TrimSpace(n.Data) == "" {
		if n != c.walk.Root() && (n.Parent == nil || !preserving[n.Parent.DataAtom]) {
			return c.walk.Remove(), nil
		}
		return c.walk.Next(), nil
	}

	e, err := expression.Compile(n.Data, c.opts.Delimiters)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return c.walk.Next(), nil
	}

	pre, post := n.Data[:e.Begin], n.Data[e.End:]
	n.Data = ""
	if pre != "" && n.Parent != nil {
		n.Parent.InsertBefore(dom.NewText(pre), n)
	}
	c.push(&Text{At: At{Path: c.path(n)}, Expr: e})

	if post == "" || n.Parent == nil {
		return c.walk.Next(), nil
	}
	rest := dom.NewText(post)
	dom.InsertAfter(n, rest)
	return c.walk.Seek(rest), nil
}

func (c *compiler) element(el *html.Node) (*html.Node, error) {
	if el.DataAtom == atom.Slot || c.has(el, "slot") {
		return c.slot(el)
	}

	var found []string
	for _, name := range flowControl {
		if c.has(el, name) {
			found = append(found, name)
		}
	}
	if len(found) > 1 {
		return nil, c.fail(el, errors.ErrCodeFlowControl,
			fmt.Sprintf("at most one flow control attribute is allowed, found %s", c.list(found)))
	}
	if len(found) == 1 {
		switch found[0] {
		case "if":
			return c.ifBranch(el)
		case "elif", "else":
			return c.elseBranch(el, found[0])
		case "for":
			return c.loop(el)
		case "switch":
			if err := c.switchBranches(el); err != nil {
				return nil, err
			}
			if err := c.attributes(el); err != nil {
				return nil, err
			}
			return c.walk.Skip(), nil
		default:
			return nil, c.fail(el, errors.ErrCodeOrphanCase,
				fmt.Sprintf("%s%s must be a direct child of a %sswitch element", c.opts.Prefix, found[0], c.opts.Prefix))
		}
	}

	if _, ok := dom.Attr(el, "is"); ok || c.has(el, "is") {
		return nil, c.fail(el, errors.ErrCodeIsAttribute, "the is attribute is reserved")
	}
	if strings.Contains(el.Data, "-") || (c.opts.Components != nil && c.opts.Components.Has(el.Data)) {
		return c.component(el)
	}

	if err := c.attributes(el); err != nil {
		return nil, err
	}
	return c.walk.Next(), nil
}

func (c *compiler) slot(el *html.Node) (*html.Node, error) {
	name, _ := c.attr(el, "slot")
	c.removeAttr(el, "slot")

	var def *Template
	if el.DataAtom == atom.Slot {
		if v, ok := dom.Attr(el, "name"); ok && name == "" {
			name = v
		}
		var content []*html.Node
		for _, ch := range dom.Children(el) {
			if !dom.IsBlank(ch) {
				content = append(content, ch)
			}
		}
		if len(content) > 1 || (len(content) == 1 && !dom.IsElement(content[0])) {
			return nil, c.fail(el, errors.ErrCodeSlotSyntax,
				"default slot content must be a single element")
		}
		if len(content) == 1 {
			dom.RemoveNode(content[0])
			sub, err := compile(content[0], c.opts)
			if err != nil {
				return nil, err
			}
			def = sub
		}
	}
	if name == "" {
		name = DefaultSlot
	}

	marker := dom.CreateMountNode(MarkSlot)
	c.walk.Replace(marker)

	if el.DataAtom != atom.Slot && dom.HasContent(el) {
		sub, err := compile(el, c.opts)
		if err != nil {
			return nil, err
		}
		def = sub
	}

	c.push(&Slot{At: At{Path: c.path(marker)}, Name: name, Default: def})
	return c.walk.Skip(), nil
}

func (c *compiler) ifBranch(el *html.Node) (*html.Node, error) {
	cond, err := c.requiredExpr(el, "if")
	if err != nil {
		return nil, err
	}
	c.removeAttr(el, "if")

	marker := dom.CreateMountNode(MarkIf)
	c.walk.Replace(marker)

	sub, err := compile(el, c.opts)
	if err != nil {
		return nil, err
	}
	d := &Conditional{
		At:       At{Path: c.path(marker)},
		Branches: []*Branch{{Cond: cond, Template: sub}},
	}
	c.conds[marker] = d
	c.push(d)
	return c.walk.Skip(), nil
}

func (c *compiler) elseBranch(el *html.Node, name string) (*html.Node, error) {
	var cond *expression.Expression
	if name == "elif" {
		e, err := c.requiredExpr(el, name)
		if err != nil {
			return nil, err
		}
		cond = e
	}
	c.removeAttr(el, name)

	prev := el.PrevSibling
	for prev != nil && dom.IsBlank(prev) {
		prev = prev.PrevSibling
	}

	if d, ok := c.conds[prev]; ok {
		next := c.walk.Remove()
		sub, err := compile(el, c.opts)
		if err != nil {
			return nil, err
		}
		d.Branches = append(d.Branches, &Branch{Cond: cond, Template: sub})
		return next, nil
	}

	if loop, ok := c.loops[prev]; ok {
		guard, err := expression.Derive(loop.Expr, "len(%s ?? []) == 0")
		if err != nil {
			return nil, err
		}
		marker := dom.CreateMountNode(MarkIf)
		c.walk.Replace(marker)

		sub, err := compile(el, c.opts)
		if err != nil {
			return nil, err
		}
		d := &Conditional{
			At:       At{Path: c.path(marker)},
			Guard:    guard,
			Branches: []*Branch{{Cond: cond, Template: sub}},
		}
		c.conds[marker] = d
		c.push(d)
		return c.walk.Skip(), nil
	}

	return nil, c.fail(el, errors.ErrCodeOrphanBranch,
		fmt.Sprintf("must be preceded by %[1]sif, %[1]selif or %[1]sfor", c.opts.Prefix))
}

func (c *compiler) loop(el *html.Node) (*html.Node, error) {
	header, _ := c.attr(el, "for")
	m := loopHeader.FindStringSubmatch(header)
	if m == nil {
		return nil, c.fail(el, errors.ErrCodeLoopHeader,
			fmt.Sprintf("loop header %q must be \"item of list\" or \"[key, item] of list\"", header))
	}

	key, val := m[2], m[3]
	if m[1] != "" {
		val = m[1]
	}
	e, err := expression.Compile(m[4], nil)
	if err != nil {
		return nil, err
	}
	c.removeAttr(el, "for")

	marker := dom.CreateMountNode(MarkFor)
	c.walk.Replace(marker)

	sub, err := compile(el, c.opts)
	if err != nil {
		return nil, err
	}
	d := &Loop{
		At:       At{Path: c.path(marker)},
		Key:      key,
		Value:    val,
		Expr:     e,
		Template: sub,
	}
	c.loops[marker] = d
	c.push(d)
	return c.walk.Skip(), nil
}

func (c *compiler) switchBranches(el *html.Node) error {
	value, err := c.requiredExpr(el, "switch")
	if err != nil {
		return err
	}
	c.removeAttr(el, "switch")

	d := &Switch{Expr: value}
	for _, ch := range dom.Children(el) {
		if dom.IsBlank(ch) {
			continue
		}
		isCase, isDefault := dom.IsElement(ch) && c.has(ch, "case"), dom.IsElement(ch) && c.has(ch, "default")
		if !isCase && !isDefault {
			return c.fail(ch, errors.ErrCodeSwitchContent,
				fmt.Sprintf("%sswitch children must carry %[1]scase or %[1]sdefault", c.opts.Prefix))
		}
		if isCase && isDefault {
			return c.fail(ch, errors.ErrCodeFlowControl, "an element cannot be both a case and the default")
		}

		var cond *expression.Expression
		if isCase {
			if cond, err = c.requiredExpr(ch, "case"); err != nil {
				return err
			}
		}
		c.removeAttr(ch, "case")
		c.removeAttr(ch, "default")

		dom.RemoveNode(ch)
		sub, err := compile(ch, c.opts)
		if err != nil {
			return err
		}
		d.Branches = append(d.Branches, &Branch{Cond: cond, Template: sub})
	}

	dom.RemoveChildren(el)
	marker := dom.CreateMountNode(MarkSwitch)
	el.AppendChild(marker)
	d.Path = c.path(marker)
	c.push(d)
	return nil
}

func (c *compiler) component(el *html.Node) (*html.Node, error) {
	if c.opts.Components == nil || !c.opts.Components.Has(el.Data) {
		return nil, c.fail(el, errors.ErrCodeUnknownComponent,
			fmt.Sprintf("component %q is not registered", el.Data))
	}

	d := &Component{Name: el.Data, Slots: make(map[string]*Template)}
	for _, a := range el.Attr {
		if name, ok := c.directive(a.Key); ok {
			e, err := c.compileAttr(el, a)
			if err != nil {
				return nil, err
			}
			d.Props = append(d.Props, Prop{Name: dom.CamelCase(name), Expr: e})
			continue
		}
		d.Props = append(d.Props, Prop{Name: dom.CamelCase(a.Key), Expr: expression.Constant(a.Val)})
	}

	for _, ch := range dom.Children(el) {
		if dom.IsBlank(ch) {
			continue
		}
		name, ok := "", false
		if dom.IsElement(ch) {
			name, ok = c.attr(ch, "slot")
		}
		if !ok {
			return nil, c.fail(ch, errors.ErrCodeComponentContent,
				fmt.Sprintf("children of <%s> must carry %sslot", el.Data, c.opts.Prefix))
		}
		if name == "" {
			name = DefaultSlot
		}
		if _, dup := d.Slots[name]; dup {
			return nil, c.fail(ch, errors.ErrCodeComponentContent,
				fmt.Sprintf("slot %q is filled more than once", name))
		}
		c.removeAttr(ch, "slot")
		dom.RemoveNode(ch)
		sub, err := compile(ch, c.opts)
		if err != nil {
			return nil, err
		}
		d.Slots[name] = sub
	}

	dom.RemoveChildren(el)
	el.Attr = nil
	d.Path = c.path(el)
	c.push(d)
	return c.walk.Skip(), nil
}

// attributes compiles every remaining directive attribute of el in
// declaration order and strips them.
func (c *compiler) attributes(el *html.Node) error {
	path := c.path(el)
	var kept []html.Attribute

	for _, a := range el.Attr {
		name, ok := c.directive(a.Key)
		if !ok {
			kept = append(kept, a)
			continue
		}

		upper := strings.ToUpper(name)
		switch {
		case upper == "REF":
			c.push(&Reference{At: At{Path: path}, Name: a.Val})
			continue
		case upper == "IS":
			return c.fail(el, errors.ErrCodeIsAttribute, "the is attribute is reserved")
		}

		e, err := c.compileAttr(el, a)
		if err != nil {
			return err
		}

		switch {
		case upper == "CLASS":
			preset, _ := dom.Attr(el, "class")
			c.push(&Setter{At: At{Path: path}, Type: KindClassName, Name: "class", Preset: preset, Expr: e})
		case upper == "STYLE":
			preset, _ := dom.Attr(el, "style")
			c.push(&Setter{At: At{Path: path}, Type: KindStyle, Name: "style", Preset: preset, Expr: e})
		case strings.HasPrefix(upper, "ON-"):
			c.push(&Listener{At: At{Path: path}, Event: name[len("on-"):], Expr: e})
		case strings.HasPrefix(upper, "DATA-"):
			c.push(&Setter{At: At{Path: path}, Type: KindDataset, Name: dom.CamelCase(name[len("data-"):]), Expr: e})
		default:
			if prop, ok := dom.PropertyName(el, dom.CamelCase(name)); ok {
				c.push(&Setter{At: At{Path: path}, Type: KindProperty, Name: prop, Expr: e})
			} else {
				c.push(&Setter{At: At{Path: path}, Type: KindAttribute, Name: name, Expr: e})
			}
		}
	}

	el.Attr = kept
	return nil
}

func (c *compiler) compileAttr(el *html.Node, a html.Attribute) (*expression.Expression, error) {
	if strings.TrimSpace(a.Val) == "" {
		return nil, c.fail(el, errors.ErrCodeMissingExpression,
			fmt.Sprintf("attribute %s requires an expression", a.Key))
	}
	e, err := expression.Compile(a.Val, nil)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (c *compiler) requiredExpr(el *html.Node, name string) (*expression.Expression, error) {
	key := c.opts.Prefix + name
	v, _ := dom.Attr(el, key)
	return c.compileAttr(el, html.Attribute{Key: key, Val: v})
}

// directive strips the prefix from a directive attribute name.
func (c *compiler) directive(key string) (string, bool) {
	if !strings.HasPrefix(key, c.opts.Prefix) || len(key) == len(c.opts.Prefix) {
		return "", false
	}
	return key[len(c.opts.Prefix):], true
}

func (c *compiler) has(el *html.Node, name string) bool {
	_, ok := dom.Attr(el, c.opts.Prefix+name)
	return ok
}

func (c *compiler) attr(el *html.Node, name string) (string, bool) {
	return dom.Attr(el, c.opts.Prefix+name)
}

func (c *compiler) removeAttr(el *html.Node, name string) {
	dom.RemoveAttr(el, c.opts.Prefix+name)
}

func (c *compiler) list(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = c.opts.Prefix + n
	}
	return strings.Join(out, ", ")
}

func (c *compiler) fail(n *html.Node, code, msg string) error {
	return errors.NewCompileError(code, msg).WithConstruct(openTag(n), 0)
}

// openTag renders the start tag of n for error messages.
func openTag(n *html.Node) string {
	if n.Type != html.ElementNode {
		return strings.TrimSpace(dom.Stringify(n))
	}
	var b strings.Builder
	b.WriteString("<" + n.Data)
	for _, a := range n.Attr {
		if a.Val == "" {
			fmt.Fprintf(&b, " %s", a.Key)
		} else {
			fmt.Fprintf(&b, " %s=%q", a.Key, a.Val)
		}
	}
	b.WriteString(">")
	return b.String()
}
