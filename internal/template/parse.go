package template

import (
	"fmt"

	"golang.org/x/net/html"

	"github.com/conneroisu/fibre/internal/dom"
	"github.com/conneroisu/fibre/internal/errors"
)

// Root returns the single element of a parsed fragment, detached. Blank
// text and comments around it are ignored.
func Root(fragment *html.Node) (*html.Node, error) {
	var root *html.Node
	count := 0
	for c := fragment.FirstChild; c != nil; c = c.NextSibling {
		if dom.IsBlank(c) {
			continue
		}
		count++
		if root == nil {
			root = c
		}
	}

	switch {
	case count == 0:
		return nil, errors.NewCompileError(errors.ErrCodeMultipleRoots, "template has no root element")
	case count > 1 || !dom.IsElement(root):
		return nil, errors.NewCompileError(errors.ErrCodeMultipleRoots,
			fmt.Sprintf("template must have exactly one root element, found %d top-level nodes", count))
	}
	dom.RemoveNode(root)
	return root, nil
}

// Parse parses src, checks it has one root element and compiles it.
func Parse(src string, opts Options) (*Template, error) {
	fragment, err := dom.Parse(src)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeInternalError, "failed to parse template", err)
	}
	root, err := Root(fragment)
	if err != nil {
		return nil, err
	}
	return Compile(root, opts)
}
