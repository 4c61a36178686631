// Package nodepath addresses nodes by position so a location recorded on a
// template can be found again in any structurally identical clone.
package nodepath

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/conneroisu/fibre/internal/dom"
)

// Path lists sibling offsets from a node up to, but excluding, a root. The
// node's own offset comes first and the most distant ancestor's last.
type Path []int

// Of returns the path of n relative to root. It returns nil if n is root
// and panics if n is not a descendant of root.
func Of(root, n *html.Node) Path {
	var p Path
	for x := n; x != root; x = x.Parent {
		if x == nil {
			panic("nodepath: node is not a descendant of root")
		}
		i := 0
		for s := x.PrevSibling; s != nil; s = s.PrevSibling {
			i++
		}
		p = append(p, i)
	}
	return p
}

// Resolve replays p against root. It returns nil when the path leaves the
// tree.
func Resolve(root *html.Node, p Path) *html.Node {
	n := root
	for i := len(p) - 1; i >= 0 && n != nil; i-- {
		c := n.FirstChild
		for j := 0; j < p[i] && c != nil; j++ {
			c = c.NextSibling
		}
		n = c
	}
	return n
}

// String renders p root-first, e.g. "0/2/1".
func (p Path) String() string {
	parts := make([]string, len(p))
	for i := range p {
		parts[len(p)-1-i] = strconv.Itoa(p[i])
	}
	return strings.Join(parts, "/")
}

// Walker visits a subtree in document order and tolerates the current
// node being replaced or removed while walking.
type Walker struct {
	root    *html.Node
	current *html.Node
}

// NewWalker returns a walker positioned on root.
func NewWalker(root *html.Node) *Walker {
	return &Walker{root: root, current: root}
}

// Root returns the walker's root, which changes if the root is replaced.
func (w *Walker) Root() *html.Node { return w.root }

// Current returns the node the walker is on, or nil once exhausted.
func (w *Walker) Current() *html.Node { return w.current }

// Next moves to the following node in document order, descending into the
// current node's children first.
func (w *Walker) Next() *html.Node {
	w.current = w.successor(w.current, true)
	return w.current
}

// Skip moves to the following node without visiting the current node's
// children.
func (w *Walker) Skip() *html.Node {
	w.current = w.successor(w.current, false)
	return w.current
}

// Seek positions the walker on n, which must be inside the root.
func (w *Walker) Seek(n *html.Node) *html.Node {
	w.current = n
	return n
}

// Replace puts n where the current node is and moves onto it.
func (w *Walker) Replace(n *html.Node) {
	if w.current == nil {
		return
	}
	if w.current == w.root {
		w.root = n
	}
	dom.ReplaceNode(w.current, n)
	w.current = n
}

// Remove detaches the current node and moves to the node that followed it.
func (w *Walker) Remove() *html.Node {
	if w.current == nil || w.current == w.root {
		return nil
	}
	next := w.successor(w.current, false)
	dom.RemoveNode(w.current)
	w.current = next
	return next
}

func (w *Walker) successor(n *html.Node, descend bool) *html.Node {
	if n == nil {
		return nil
	}
	if descend && n.FirstChild != nil {
		return n.FirstChild
	}
	for x := n; x != nil && x != w.root; x = x.Parent {
		if x.NextSibling != nil {
			return x.NextSibling
		}
	}
	return nil
}
