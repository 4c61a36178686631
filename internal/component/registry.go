package component

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/net/html/atom"

	"github.com/conneroisu/fibre/internal/errors"
	"github.com/conneroisu/fibre/internal/logging"
	"github.com/conneroisu/fibre/internal/scheduler"
	"github.com/conneroisu/fibre/internal/template"
)

// Registry maps tag names to component factories.
type Registry struct {
	factories map[string]*Factory
	mutex     sync.RWMutex
	watchers  []chan Event

	compiler template.Options
	loop     *scheduler.Loop
	logger   logging.Logger
}

// Config configures a registry.
type Config struct {
	// Compiler holds the directive prefix and text delimiters. Its
	// Components field is ignored; the registry resolves components itself.
	Compiler template.Options
	// Scheduler runs deferred flushes. A new loop is created when nil.
	Scheduler *scheduler.Loop
	Logger    logging.Logger
}

// Event represents a change in the registry.
type Event struct {
	Type      EventType
	Name      string
	Factory   *Factory
	Timestamp time.Time
}

// EventType represents the type of registry event.
type EventType int

const (
	EventTypeDefined EventType = iota
	EventTypeRedefined
	EventTypeRemoved
)

func (t EventType) String() string {
	switch t {
	case EventTypeDefined:
		return "defined"
	case EventTypeRedefined:
		return "redefined"
	case EventTypeRemoved:
		return "removed"
	}
	return "unknown"
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	loop := cfg.Scheduler
	if loop == nil {
		loop = scheduler.New()
	}
	return &Registry{
		factories: make(map[string]*Factory),
		watchers:  make([]chan Event, 0),
		compiler:  cfg.Compiler,
		loop:      loop,
		logger:    logging.OrNop(cfg.Logger).WithComponent("component"),
	}
}

// pending resolves names being defined so templates can use themselves
// and each other.
type pending struct {
	r     *Registry
	names map[string]bool
}

func (p pending) Has(name string) bool {
	return p.names[name] || p.r.Has(name)
}

// DefineError reports a definition that failed inside DefineAll.
type DefineError struct {
	Name string
	Err  error
}

func (e *DefineError) Error() string { return fmt.Sprintf("%s: %v", e.Name, e.Err) }
func (e *DefineError) Unwrap() error { return e.Err }

// Define compiles opts.Template and registers the factory under name,
// replacing any previous definition.
func (r *Registry) Define(name string, opts Options) (*Factory, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	f, err := r.compile(name, opts, pending{r: r, names: map[string]bool{name: true}})
	if err != nil {
		return nil, err
	}
	r.register(f)
	return f, nil
}

// DefineAll compiles a set of definitions that may reference each other.
// Definitions that fail, or that depend on one that failed, are skipped and
// reported as *DefineError values inside a *multierror.Error. The rest are
// registered in name order.
func (r *Registry) DefineAll(defs map[string]Options) error {
	var result *multierror.Error

	batch := make(map[string]bool, len(defs))
	for _, name := range sortedKeys(defs) {
		if err := validateName(name); err != nil {
			result = multierror.Append(result, &DefineError{Name: name, Err: err})
			continue
		}
		batch[name] = true
	}

	for {
		compiled := make([]*Factory, 0, len(batch))
		failed := false
		for _, name := range sortedKeys(batch) {
			f, err := r.compile(name, defs[name], pending{r: r, names: batch})
			if err != nil {
				result = multierror.Append(result, &DefineError{Name: name, Err: err})
				delete(batch, name)
				failed = true
				continue
			}
			compiled = append(compiled, f)
		}
		if failed {
			continue
		}
		for _, f := range compiled {
			r.register(f)
		}
		return result.ErrorOrNil()
	}
}

func validateName(name string) error {
	if name == "" {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "component name is required")
	}
	if !strings.Contains(name, "-") && atom.Lookup([]byte(name)) != 0 {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("%q is a standard HTML element and cannot name a component", name))
	}
	return nil
}

func (r *Registry) compile(name string, opts Options, components template.Registry) (*Factory, error) {
	copts := r.compiler
	copts.Components = components
	tmpl, err := template.Parse(opts.Template, copts)
	if err != nil {
		return nil, err
	}

	r.logger.Debug(context.Background(), "component compiled", "name", name, "directives", len(tmpl.Directives))
	return &Factory{name: name, tmpl: tmpl, opts: opts, registry: r}, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry) register(f *Factory) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	eventType := EventTypeDefined
	if _, exists := r.factories[f.name]; exists {
		eventType = EventTypeRedefined
	}
	r.factories[f.name] = f

	r.notify(Event{Type: eventType, Name: f.name, Factory: f, Timestamp: time.Now()})
}

// notify must be called with the lock held.
func (r *Registry) notify(event Event) {
	for _, watcher := range r.watchers {
		select {
		case watcher <- event:
		default:
			// Skip if channel is full
		}
	}
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	_, ok := r.factories[name]
	return ok
}

// Get retrieves a factory by name.
func (r *Registry) Get(name string) (*Factory, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	f, ok := r.factories[name]
	return f, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Remove unregisters name. Live instances keep running.
func (r *Registry) Remove(name string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	f, exists := r.factories[name]
	if !exists {
		return
	}
	delete(r.factories, name)

	r.notify(Event{Type: EventTypeRemoved, Name: name, Factory: f, Timestamp: time.Now()})
}

// Watch returns a channel that receives registry events.
func (r *Registry) Watch() <-chan Event {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch := make(chan Event, 100)
	r.watchers = append(r.watchers, ch)
	return ch
}

// UnWatch removes a watcher channel and closes it.
func (r *Registry) UnWatch(ch <-chan Event) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, watcher := range r.watchers {
		if watcher == ch {
			close(watcher)
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			break
		}
	}
}

// Count returns the number of registered components.
func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.factories)
}

// Scheduler returns the loop that runs deferred flushes. MergeState only
// posts to it; callers must Run or Drain the loop for those flushes to
// reach the DOM.
func (r *Registry) Scheduler() *scheduler.Loop {
	return r.loop
}
