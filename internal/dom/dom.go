// Package dom provides the DOM primitives the binding engine runs against:
// fragment parsing and serialisation over golang.org/x/net/html, cloning,
// structural mutation, mount markers, emulated element properties and an
// event listener registry.
package dom

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tdewolff/minify/v2"
	minhtml "github.com/tdewolff/minify/v2/html"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MountPrefix starts the data of every mount marker comment.
const MountPrefix = "fibre:"

// contexts maps the leading tag of a fragment to the element it must be
// parsed inside so the tree builder keeps it.
var contexts = map[atom.Atom]atom.Atom{
	atom.Tr:       atom.Tbody,
	atom.Td:       atom.Tr,
	atom.Th:       atom.Tr,
	atom.Tbody:    atom.Table,
	atom.Thead:    atom.Table,
	atom.Tfoot:    atom.Table,
	atom.Caption:  atom.Table,
	atom.Colgroup: atom.Table,
	atom.Col:      atom.Colgroup,
	atom.Option:   atom.Select,
	atom.Optgroup: atom.Select,
}

// svgChildren are parsed inside an <svg> context.
var svgChildren = map[string]bool{
	"circle": true, "clippath": true, "defs": true, "ellipse": true, "g": true,
	"line": true, "lineargradient": true, "mask": true, "path": true, "pattern": true,
	"polygon": true, "polyline": true, "radialgradient": true, "rect": true,
	"stop": true, "symbol": true, "text": true, "tspan": true, "use": true,
}

// Parse parses an HTML fragment and returns a detached document node
// holding the top-level nodes. Fragments that start with table, select or
// svg content are parsed in the matching context element.
func Parse(src string) (*html.Node, error) {
	nodes, err := html.ParseFragment(strings.NewReader(src), contextFor(src))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML fragment: %w", err)
	}

	root := &html.Node{Type: html.DocumentNode}
	for _, n := range nodes {
		for _, extracted := range unwrap(n) {
			if extracted.Parent != nil {
				extracted.Parent.RemoveChild(extracted)
			}
			root.AppendChild(extracted)
		}
	}
	return root, nil
}

// MustParse is like Parse but panics on error.
func MustParse(src string) *html.Node {
	n, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return n
}

func contextFor(src string) *html.Node {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}

	z := html.NewTokenizer(strings.NewReader(src))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return body
		case html.TextToken:
			if strings.TrimSpace(string(z.Text())) != "" {
				return body
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if svgChildren[tag] {
				return &html.Node{Type: html.ElementNode, Data: "svg", DataAtom: atom.Svg, Namespace: "svg"}
			}
			if a, ok := contexts[atom.Lookup(name)]; ok {
				return &html.Node{Type: html.ElementNode, Data: a.String(), DataAtom: a}
			}
			return body
		}
	}
}

// unwrap strips the html/body wrappers the parser may add.
func unwrap(n *html.Node) []*html.Node {
	if n.Type != html.ElementNode || (n.DataAtom != atom.Html && n.DataAtom != atom.Body) {
		return []*html.Node{n}
	}
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Head {
			continue
		}
		if c.Type == html.ElementNode && c.DataAtom == atom.Body {
			out = append(out, unwrap(c)...)
			continue
		}
		out = append(out, c)
	}
	return out
}

// Stringify renders n and its subtree as HTML.
func Stringify(n *html.Node) string {
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return ""
	}
	return b.String()
}

var (
	minifier *minify.M
	once     sync.Once
)

func getMinifier() *minify.M {
	once.Do(func() {
		minifier = minify.New()
		minifier.Add("text/html", &minhtml.Minifier{KeepEndTags: true, KeepQuotes: true})
	})
	return minifier
}

// Minify collapses whitespace and comments in rendered HTML. Content that
// cannot be minified is returned unchanged.
func Minify(s string) string {
	out, err := getMinifier().String("text/html", s)
	if err != nil {
		return s
	}
	return out
}

// Clone deep-copies n. The copy is detached.
func Clone(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		c.Attr = make([]html.Attribute, len(n.Attr))
		copy(c.Attr, n.Attr)
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(Clone(child))
	}
	return c
}

// ReplaceNode puts replacement where old is. old ends up detached.
func ReplaceNode(old, replacement *html.Node) {
	if old == replacement {
		return
	}
	RemoveNode(replacement)
	if old.Parent == nil {
		return
	}
	old.Parent.InsertBefore(replacement, old)
	old.Parent.RemoveChild(old)
}

// RemoveNode detaches n from its parent, if any.
func RemoveNode(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// InsertAfter inserts n as the next sibling of ref.
func InsertAfter(ref, n *html.Node) {
	RemoveNode(n)
	ref.Parent.InsertBefore(n, ref.NextSibling)
}

// RemoveChildren detaches every child of n.
func RemoveChildren(n *html.Node) {
	for n.FirstChild != nil {
		n.RemoveChild(n.FirstChild)
	}
}

// Children returns a snapshot of n's children.
func Children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// IsElement reports whether n is an element.
func IsElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// IsText reports whether n is a text node.
func IsText(n *html.Node) bool {
	return n != nil && n.Type == html.TextNode
}

// IsComment reports whether n is a comment that is not a mount marker.
func IsComment(n *html.Node) bool {
	return n != nil && n.Type == html.CommentNode && !strings.HasPrefix(n.Data, MountPrefix)
}

// IsBlank reports whether n carries no content: whitespace-only text or a
// plain comment.
func IsBlank(n *html.Node) bool {
	if IsText(n) {
		return strings.TrimSpace(n.Data) == ""
	}
	return IsComment(n)
}

// HasContent reports whether n has any non-blank child.
func HasContent(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !IsBlank(c) {
			return true
		}
	}
	return false
}

// CreateMountNode returns a detached mount marker of the given kind.
func CreateMountNode(kind string) *html.Node {
	return &html.Node{Type: html.CommentNode, Data: MountPrefix + kind}
}

// IsMountNode reports whether n is a mount marker of kind. An empty kind
// matches every marker.
func IsMountNode(n *html.Node, kind string) bool {
	if n == nil || n.Type != html.CommentNode || !strings.HasPrefix(n.Data, MountPrefix) {
		return false
	}
	return kind == "" || n.Data[len(MountPrefix):] == kind
}

// NewText returns a detached text node.
func NewText(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// TextContent concatenates the text of n and its descendants.
func TextContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(x *html.Node) {
		for c := x.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// SetTextContent replaces the children of n with a single text node, or
// sets the data of a text node.
func SetTextContent(n *html.Node, s string) {
	if n.Type == html.TextNode {
		n.Data = s
		return
	}
	RemoveChildren(n)
	if s != "" {
		n.AppendChild(NewText(s))
	}
}

// Attr returns the value of attribute key.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets attribute key, keeping its position if present.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes attribute key.
func RemoveAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}
