package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/fibre/internal/value"
)

// property describes how an emulated DOM property maps onto the tree.
type property struct {
	attr    string
	boolean bool
	content bool
	markup  bool
	tags    []atom.Atom
}

var formTags = []atom.Atom{atom.Input, atom.Textarea, atom.Select, atom.Option, atom.Button}

// properties lists the element properties that are set as properties rather
// than generic attributes, keyed by their camel-cased name.
var properties = map[string]property{
	"id":          {attr: "id"},
	"title":       {attr: "title"},
	"lang":        {attr: "lang"},
	"dir":         {attr: "dir"},
	"hidden":      {attr: "hidden", boolean: true},
	"tabIndex":    {attr: "tabindex"},
	"accessKey":   {attr: "accesskey"},
	"draggable":   {attr: "draggable"},
	"textContent": {content: true},
	"innerText":   {content: true},
	"innerHTML":   {content: true, markup: true},
	"value":       {attr: "value", tags: append([]atom.Atom{atom.Li, atom.Progress, atom.Meter, atom.Data, atom.Param}, formTags...)},
	"checked":     {attr: "checked", boolean: true, tags: []atom.Atom{atom.Input}},
	"disabled":    {attr: "disabled", boolean: true, tags: append([]atom.Atom{atom.Fieldset, atom.Optgroup}, formTags...)},
	"selected":    {attr: "selected", boolean: true, tags: []atom.Atom{atom.Option}},
	"readOnly":    {attr: "readonly", boolean: true, tags: []atom.Atom{atom.Input, atom.Textarea}},
	"required":    {attr: "required", boolean: true, tags: []atom.Atom{atom.Input, atom.Textarea, atom.Select}},
	"multiple":    {attr: "multiple", boolean: true, tags: []atom.Atom{atom.Input, atom.Select}},
	"autofocus":   {attr: "autofocus", boolean: true, tags: formTags},
	"placeholder": {attr: "placeholder", tags: []atom.Atom{atom.Input, atom.Textarea}},
	"name":        {attr: "name", tags: append([]atom.Atom{atom.Form, atom.Iframe, atom.Fieldset, atom.Output}, formTags...)},
	"type":        {attr: "type", tags: []atom.Atom{atom.Input, atom.Button, atom.Script, atom.Style, atom.Source, atom.Link}},
	"min":         {attr: "min", tags: []atom.Atom{atom.Input, atom.Meter}},
	"max":         {attr: "max", tags: []atom.Atom{atom.Input, atom.Meter, atom.Progress}},
	"step":        {attr: "step", tags: []atom.Atom{atom.Input}},
	"href":        {attr: "href", tags: []atom.Atom{atom.A, atom.Area, atom.Base, atom.Link}},
	"src":         {attr: "src", tags: []atom.Atom{atom.Img, atom.Script, atom.Iframe, atom.Video, atom.Audio, atom.Source, atom.Input, atom.Track, atom.Embed}},
	"alt":         {attr: "alt", tags: []atom.Atom{atom.Img, atom.Area, atom.Input}},
	"target":      {attr: "target", tags: []atom.Atom{atom.A, atom.Area, atom.Base, atom.Form}},
	"rel":         {attr: "rel", tags: []atom.Atom{atom.A, atom.Area, atom.Link}},
	"htmlFor":     {attr: "for", tags: []atom.Atom{atom.Label, atom.Output}},
	"colSpan":     {attr: "colspan", tags: []atom.Atom{atom.Td, atom.Th}},
	"rowSpan":     {attr: "rowspan", tags: []atom.Atom{atom.Td, atom.Th}},
	"open":        {attr: "open", boolean: true, tags: []atom.Atom{atom.Details, atom.Dialog}},
	"action":      {attr: "action", tags: []atom.Atom{atom.Form}},
	"method":      {attr: "method", tags: []atom.Atom{atom.Form}},
}

// folded indexes properties by lower-cased name; the tokenizer lower-cases
// attribute names so "--innerhtml" must still find innerHTML.
var folded = func() map[string]string {
	m := make(map[string]string, len(properties))
	for name := range properties {
		m[strings.ToLower(name)] = name
	}
	return m
}()

// CamelCase converts a kebab-case name to camelCase: "text-content"
// becomes "textContent".
func CamelCase(name string) string {
	parts := strings.Split(name, "-")
	title := cases.Title(language.Und, cases.NoLower)
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if b.Len() == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(title.String(p))
	}
	return b.String()
}

// KebabCase converts a camelCase name to kebab-case: "fontSize" becomes
// "font-size".
func KebabCase(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteByte(c + 'a' - 'A')
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// PropertyName returns the canonical property name for a camel-cased
// attribute name when n supports it.
func PropertyName(n *html.Node, name string) (string, bool) {
	canonical := name
	p, ok := properties[name]
	if !ok {
		canonical, ok = folded[strings.ToLower(name)]
		if !ok {
			return "", false
		}
		p = properties[canonical]
	}
	if len(p.tags) == 0 {
		return canonical, true
	}
	for _, a := range p.tags {
		if n.DataAtom == a {
			return canonical, true
		}
	}
	return "", false
}

// HasProperty reports whether n supports the named property.
func HasProperty(n *html.Node, name string) bool {
	_, ok := PropertyName(n, name)
	return ok
}

// SetProperty assigns an emulated property. Reflected properties write
// their attribute; boolean ones add or remove it; content properties
// replace the children.
func SetProperty(n *html.Node, name string, v any) {
	canonical, ok := PropertyName(n, name)
	if !ok {
		SetAttr(n, name, value.String(v))
		return
	}
	p := properties[canonical]
	switch {
	case p.markup:
		RemoveChildren(n)
		frag, err := Parse(value.String(v))
		if err != nil {
			n.AppendChild(NewText(value.String(v)))
			return
		}
		for _, c := range Children(frag) {
			frag.RemoveChild(c)
			n.AppendChild(c)
		}
	case p.content:
		SetTextContent(n, value.String(v))
	case canonical == "value" && n.DataAtom == atom.Textarea:
		SetTextContent(n, value.String(v))
	case p.boolean:
		if value.Truthy(v) {
			SetAttr(n, p.attr, "")
		} else {
			RemoveAttr(n, p.attr)
		}
	default:
		if v == nil {
			RemoveAttr(n, p.attr)
			return
		}
		SetAttr(n, p.attr, value.String(v))
	}
}

// Property reads an emulated property back from the tree.
func Property(n *html.Node, name string) any {
	canonical, ok := PropertyName(n, name)
	if !ok {
		v, _ := Attr(n, name)
		return v
	}
	p := properties[canonical]
	switch {
	case p.markup:
		var b strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			b.WriteString(Stringify(c))
		}
		return b.String()
	case p.content:
		return TextContent(n)
	case canonical == "value" && n.DataAtom == atom.Textarea:
		return TextContent(n)
	case p.boolean:
		_, present := Attr(n, p.attr)
		return present
	default:
		v, _ := Attr(n, p.attr)
		return v
	}
}

// SetAttribute sets a generic attribute. nil and false remove it; true
// sets it empty.
func SetAttribute(n *html.Node, name string, v any) {
	switch t := v.(type) {
	case nil:
		RemoveAttr(n, name)
	case bool:
		if t {
			SetAttr(n, name, "")
		} else {
			RemoveAttr(n, name)
		}
	default:
		SetAttr(n, name, value.String(v))
	}
}

// SetDataset sets the data-* attribute for a camel-cased dataset key.
func SetDataset(n *html.Node, key string, v any) {
	SetAttribute(n, "data-"+KebabCase(key), v)
}

// ClassString composes a static class list with a dynamic value. A map
// contributes each key whose value is truthy, in sorted order; a slice
// contributes each truthy element; anything else contributes its text.
func ClassString(preset string, v any) string {
	parts := strings.Fields(preset)
	switch t := v.(type) {
	case nil:
	case map[string]any:
		for _, k := range value.SortedKeys(t) {
			if value.Truthy(t[k]) {
				parts = append(parts, k)
			}
		}
	case []any:
		for _, x := range t {
			if value.Truthy(x) {
				parts = append(parts, value.String(x))
			}
		}
	default:
		parts = append(parts, strings.Fields(value.String(v))...)
	}
	return strings.Join(unique(parts), " ")
}

// StyleString composes static inline style text with a dynamic value. A
// map contributes kebab-cased declarations for every non-empty value, in
// sorted order; anything else is appended as text.
func StyleString(preset string, v any) string {
	decls := []string{}
	if s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(preset), ";")); s != "" {
		decls = append(decls, s)
	}
	switch t := v.(type) {
	case nil:
	case map[string]any:
		for _, k := range value.SortedKeys(t) {
			if t[k] == nil || t[k] == false || value.String(t[k]) == "" {
				continue
			}
			decls = append(decls, KebabCase(k)+": "+value.String(t[k]))
		}
	default:
		if s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value.String(v)), ";")); s != "" {
			decls = append(decls, s)
		}
	}
	return strings.Join(decls, "; ")
}

func unique(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
