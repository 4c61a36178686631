package store

import (
	"fmt"
	"sort"

	"github.com/conneroisu/fibre/internal/errors"
	"github.com/conneroisu/fibre/internal/keypath"
	"github.com/conneroisu/fibre/internal/value"
)

// Layer shadows a host scope with a local store that owns a fixed set of
// top-level keys. Reads, subscriptions and merges for an owned key go to
// the local store; everything else falls through to the host. A layer
// never writes to its host.
type Layer struct {
	local *Store
	host  Scope
	keys  map[string]bool
}

var _ Scope = (*Layer)(nil)

// NewLayer returns a layer over host owning keys, seeded with data. Keys
// present in data are owned even if not listed.
func NewLayer(host Scope, keys []string, data map[string]any) *Layer {
	owned := make(map[string]bool, len(keys)+len(data))
	for _, k := range keys {
		owned[k] = true
	}
	for k := range data {
		owned[k] = true
	}
	return &Layer{
		local: New(data),
		host:  host,
		keys:  owned,
	}
}

// Host returns the scope the layer falls through to.
func (l *Layer) Host() Scope { return l.host }

// Owns reports whether key resolves locally.
func (l *Layer) Owns(key string) bool { return l.keys[key] }

// Keys returns the owned keys in sorted order.
func (l *Layer) Keys() []string {
	keys := make([]string, 0, len(l.keys))
	for k := range l.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (l *Layer) route(path keypath.KeyPath) Scope {
	if len(path) == 0 || l.keys[path.Head()] {
		return l.local
	}
	return l.host
}

// Subscribe attaches t to whichever store owns the path's first segment.
func (l *Layer) Subscribe(path keypath.KeyPath, t Task) {
	l.route(path).Subscribe(path, t)
}

// Unsubscribe detaches t from whichever store owns the path.
func (l *Layer) Unsubscribe(path keypath.KeyPath, t Task) {
	l.route(path).Unsubscribe(path, t)
}

// Get resolves owned keys locally and everything else through the host.
func (l *Layer) Get(path keypath.KeyPath) (any, bool) {
	return l.route(path).Get(path)
}

// Merge writes src into the local store. Every key must be owned.
func (l *Layer) Merge(src map[string]any) error {
	for _, k := range value.SortedKeys(src) {
		if !l.keys[k] {
			return errors.NewAssertionError("store", errors.ErrCodeUndeclaredKey,
				fmt.Sprintf("layer does not declare key %q", k)).
				WithConstruct(k, 0)
		}
	}
	return l.local.Merge(src)
}

// Update flushes the local store. The host is flushed by its owner.
func (l *Layer) Update() {
	l.local.Update()
}

// Data returns a copy of the local state.
func (l *Layer) Data() map[string]any {
	return l.local.Data()
}
