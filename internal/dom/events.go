package dom

import (
	"sync"

	"golang.org/x/net/html"
)

// Event is a synthetic DOM event dispatched through the listener registry.
type Event struct {
	Type          string
	Target        *html.Node
	CurrentTarget *html.Node
	Detail        any

	stopped   bool
	prevented bool
}

// NewEvent returns an event of the given type carrying detail.
func NewEvent(typ string, detail any) *Event {
	return &Event{Type: typ, Detail: detail}
}

// StopPropagation prevents the event from reaching further ancestors.
func (e *Event) StopPropagation() { e.stopped = true }

// PreventDefault marks the default action as cancelled.
func (e *Event) PreventDefault() { e.prevented = true }

// DefaultPrevented reports whether PreventDefault was called.
func (e *Event) DefaultPrevented() bool { return e.prevented }

// Listener handles a dispatched event.
type Listener func(*Event)

type registration struct {
	typ string
	fn  Listener
}

var listeners = struct {
	sync.Mutex
	byNode map[*html.Node][]*registration
}{byNode: make(map[*html.Node][]*registration)}

// AddEventListener registers fn for events of typ on n and returns the
// function that removes it.
func AddEventListener(n *html.Node, typ string, fn Listener) func() {
	reg := &registration{typ: typ, fn: fn}

	listeners.Lock()
	listeners.byNode[n] = append(listeners.byNode[n], reg)
	listeners.Unlock()

	return func() {
		listeners.Lock()
		defer listeners.Unlock()
		regs := listeners.byNode[n]
		for i, r := range regs {
			if r == reg {
				regs = append(regs[:i:i], regs[i+1:]...)
				break
			}
		}
		if len(regs) == 0 {
			delete(listeners.byNode, n)
			return
		}
		listeners.byNode[n] = regs
	}
}

// ListenerCount returns the number of listeners registered on n.
func ListenerCount(n *html.Node) int {
	listeners.Lock()
	defer listeners.Unlock()
	return len(listeners.byNode[n])
}

// Dispatch delivers e to target and then to each ancestor until a listener
// stops propagation. It reports whether the default action may proceed.
func Dispatch(target *html.Node, e *Event) bool {
	e.Target = target
	for n := target; n != nil && !e.stopped; n = n.Parent {
		listeners.Lock()
		regs := append([]*registration(nil), listeners.byNode[n]...)
		listeners.Unlock()

		e.CurrentTarget = n
		for _, r := range regs {
			if r.typ == e.Type {
				r.fn(e)
			}
		}
	}
	e.CurrentTarget = nil
	return !e.prevented
}
