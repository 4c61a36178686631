// Package store holds component state and the subscription trie that
// drives re-rendering.
//
// Data lives in plain maps and slices. Subscribers attach to key paths; a
// merge walks the incoming data and the trie together and marks every node
// whose value changed, along with its ancestors, as dirty. Nothing runs
// until Update, which executes every task attached to a dirty node exactly
// once.
package store

import (
	"fmt"

	"github.com/conneroisu/fibre/internal/errors"
	"github.com/conneroisu/fibre/internal/keypath"
	"github.com/conneroisu/fibre/internal/value"
)

// Task is a subscriber. Implementations must be comparable; pointer types
// are the norm.
type Task interface {
	Execute()
}

type funcTask struct {
	fn func()
}

func (t *funcTask) Execute() { t.fn() }

// NewTask wraps fn in a Task with its own identity.
func NewTask(fn func()) Task {
	return &funcTask{fn: fn}
}

// Scope is the read, subscribe and write surface shared by Store and
// Layer.
type Scope interface {
	Subscribe(path keypath.KeyPath, t Task)
	Unsubscribe(path keypath.KeyPath, t Task)
	Merge(src map[string]any) error
	Update()
	Get(path keypath.KeyPath) (any, bool)
}

// node is one trie entry. parent is only used to walk upwards.
type node struct {
	parent   *node
	key      any
	tasks    []Task
	children map[any]*node
}

func (n *node) child(seg any) *node {
	if n == nil || n.children == nil {
		return nil
	}
	return n.children[keypath.Normalize(seg)]
}

// Store is a reactive data container. It is not safe for concurrent use.
type Store struct {
	data   map[string]any
	root   *node
	dirty  []*node
	marked map[*node]bool
	counts map[Task]int
}

var _ Scope = (*Store)(nil)

// New returns a store holding a deep copy of data.
func New(data map[string]any) *Store {
	return &Store{
		data:   value.CloneMap(data),
		root:   &node{},
		marked: make(map[*node]bool),
		counts: make(map[Task]int),
	}
}

// Subscribe attaches t to path, creating trie nodes as needed.
func (s *Store) Subscribe(path keypath.KeyPath, t Task) {
	n := s.root
	for _, seg := range path {
		key := keypath.Normalize(seg)
		c, ok := n.children[key]
		if !ok {
			if n.children == nil {
				n.children = make(map[any]*node)
			}
			c = &node{parent: n, key: key}
			n.children[key] = c
		}
		n = c
	}
	n.tasks = append(n.tasks, t)
	s.counts[t]++
}

// Unsubscribe detaches one registration of t from path and prunes nodes
// left without tasks or children. The root is never pruned.
func (s *Store) Unsubscribe(path keypath.KeyPath, t Task) {
	n := s.root
	for _, seg := range path {
		n = n.child(seg)
		if n == nil {
			return
		}
	}

	for i, x := range n.tasks {
		if x == t {
			n.tasks = append(n.tasks[:i:i], n.tasks[i+1:]...)
			if s.counts[t]--; s.counts[t] <= 0 {
				delete(s.counts, t)
			}
			break
		}
	}

	for n != s.root && len(n.tasks) == 0 && len(n.children) == 0 {
		delete(n.parent.children, n.key)
		n = n.parent
	}
}

// Get returns the value at path. Slices answer the synthetic "length"
// segment.
func (s *Store) Get(path keypath.KeyPath) (any, bool) {
	return Lookup(s.data, path)
}

// Lookup walks plain data along path.
func Lookup(v any, path keypath.KeyPath) (any, bool) {
	cur := v
	for _, seg := range path {
		switch c := cur.(type) {
		case map[string]any:
			next, ok := c[keypath.Key(seg)]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			if keypath.Key(seg) == "length" {
				cur = len(c)
				continue
			}
			i, ok := keypath.Normalize(seg).(int)
			if !ok || i < 0 || i >= len(c) {
				return nil, false
			}
			cur = c[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Data returns a deep copy of the current state.
func (s *Store) Data() map[string]any {
	return value.CloneMap(s.data)
}

// Merge deep-merges src into the state and marks changed paths dirty. A
// merge that would replace a map with a slice, or either with a date, is
// rejected before anything is written.
func (s *Store) Merge(src map[string]any) error {
	src = value.CloneMap(src)
	if err := validate(s.data, src, nil); err != nil {
		return err
	}
	s.mergeObject(s.data, src, s.root, s.root)
	return nil
}

func validate(ov, nv any, path keypath.KeyPath) error {
	ok, nk := value.KindOf(ov), value.KindOf(nv)
	if ok == value.KindPrimitive || nk == value.KindPrimitive {
		return nil
	}
	if ok != nk {
		return errors.NewAssertionError("store", errors.ErrCodeTypeMismatch,
			fmt.Sprintf("cannot merge %s onto %s", nk, ok)).
			WithConstruct(path.String(), 0)
	}
	switch nk {
	case value.KindObject:
		om, nm := ov.(map[string]any), nv.(map[string]any)
		for _, k := range value.SortedKeys(nm) {
			if old, exists := om[k]; exists {
				if err := validate(old, nm[k], path.Append(k)); err != nil {
					return err
				}
			}
		}
	case value.KindArray:
		os, ns := ov.([]any), nv.([]any)
		for i := 0; i < len(os) && i < len(ns); i++ {
			if err := validate(os[i], ns[i], path.Append(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) mergeObject(dst, src map[string]any, n, anchor *node) {
	for _, k := range value.SortedKeys(src) {
		child := n.child(k)
		a := anchor
		if child != nil {
			a = child
		}

		old, exists := dst[k]
		if !exists && child == nil {
			dst[k] = src[k]
			if n != s.root || len(s.root.tasks) > 0 {
				s.mark(anchor)
			}
			continue
		}
		dst[k] = s.assign(old, src[k], exists, child, a)
	}
}

func (s *Store) mergeArray(dst, src []any, n, anchor *node) []any {
	out := dst
	for i, nv := range src {
		child := n.child(i)
		a := anchor
		if child != nil {
			a = child
		}
		if i < len(dst) {
			out[i] = s.assign(dst[i], nv, true, child, a)
			continue
		}
		out = append(out, nv)
		if child != nil {
			s.invalidate(child)
		}
	}

	if len(src) != len(dst) {
		if length := n.child("length"); length != nil {
			s.mark(length)
		} else {
			s.mark(anchor)
		}
		for i := len(src); i < len(dst); i++ {
			if child := n.child(i); child != nil {
				s.invalidate(child)
			}
		}
		out = out[:len(src)]
	}
	return out
}

// assign merges nv over ov at a single position and returns the value to
// keep there. n is the trie node for the position, if any; anchor is the
// nearest node at or above it.
func (s *Store) assign(ov, nv any, exists bool, n, anchor *node) any {
	ok, nk := value.KindOf(ov), value.KindOf(nv)

	switch {
	case !exists:
		s.invalidate(n)
		s.mark(anchor)
		return nv
	case ok == value.KindObject && nk == value.KindObject:
		s.mergeObject(ov.(map[string]any), nv.(map[string]any), n, anchor)
		return ov
	case ok == value.KindArray && nk == value.KindArray:
		return s.mergeArray(ov.([]any), nv.([]any), n, anchor)
	case value.IsContainer(ov) && value.IsContainer(nv):
		// Both dates; validate rejects every other pairing.
		if !value.SameValueZero(ov, nv) {
			s.mark(anchor)
		}
		return nv
	case value.IsContainer(ov) != value.IsContainer(nv):
		s.invalidate(n)
		s.mark(anchor)
		return nv
	default:
		if !value.SameValueZero(ov, nv) {
			s.mark(anchor)
		}
		return nv
	}
}

// mark flags n and its ancestors dirty.
func (s *Store) mark(n *node) {
	for ; n != nil && !s.marked[n]; n = n.parent {
		s.marked[n] = true
		s.dirty = append(s.dirty, n)
	}
}

// invalidate flags n and every descendant dirty.
func (s *Store) invalidate(n *node) {
	if n == nil {
		return
	}
	s.mark(n)
	for _, c := range n.children {
		s.invalidate(c)
	}
}

// Dirty reports whether a merge has marked anything since the last
// Update.
func (s *Store) Dirty() bool {
	return len(s.dirty) > 0
}

// Update runs every task attached to a dirty node once, in the order the
// nodes were marked. The dirty set is detached before tasks run, so marks
// made by re-entrant merges wait for the next Update. Tasks unsubscribed
// by an earlier task in the same flush are skipped.
func (s *Store) Update() {
	if len(s.dirty) == 0 {
		return
	}
	dirty := s.dirty
	s.dirty = nil
	s.marked = make(map[*node]bool)

	seen := make(map[Task]bool)
	var pending []Task
	for _, n := range dirty {
		for _, t := range n.tasks {
			if !seen[t] {
				seen[t] = true
				pending = append(pending, t)
			}
		}
	}

	for _, t := range pending {
		if s.counts[t] > 0 {
			t.Execute()
		}
	}
}
