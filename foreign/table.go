package foreign

import (
	"sync"

	"github.com/wippyai/wren-runtime/errors"
)

// Table maps foreign IDs to host objects for a single VM.
type Table struct {
	entries   map[ID]any
	observers []Observer
	next      ID
	mu        sync.Mutex
	closed    bool
}

// NewTable creates an empty table. IDs start at 1.
func NewTable() *Table {
	return &Table{
		entries: make(map[ID]any),
	}
}

// Allocate stores obj under a fresh ID. IDs increase monotonically and are
// never handed out twice by the same table. Returns 0 once the table is closed.
func (t *Table) Allocate(obj any) ID {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0
	}
	t.next++
	id := t.next
	t.entries[id] = obj
	observers := t.observers
	t.mu.Unlock()

	notify(observers, Event{Type: EventAllocated, ID: id, Value: obj})
	return id
}

// Resolve returns the object stored under id.
func (t *Table) Resolve(id ID) (any, error) {
	t.mu.Lock()
	obj, ok := t.entries[id]
	t.mu.Unlock()

	if !ok {
		return nil, notFound(id)
	}
	return obj, nil
}

// Reclaim removes the object stored under id and returns it.
// A failed Reclaim leaves every other entry untouched.
func (t *Table) Reclaim(id ID) (any, error) {
	t.mu.Lock()
	obj, ok := t.entries[id]
	if !ok {
		t.mu.Unlock()
		return nil, notFound(id)
	}
	delete(t.entries, id)
	observers := t.observers
	t.mu.Unlock()

	notify(observers, Event{Type: EventReclaimed, ID: id, Value: obj})
	return obj, nil
}

// Len returns the number of live objects.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Each calls fn for every live object until fn returns false.
// The iteration order is unspecified.
func (t *Table) Each(fn func(id ID, obj any) bool) {
	t.mu.Lock()
	snapshot := make(map[ID]any, len(t.entries))
	for id, obj := range t.entries {
		snapshot[id] = obj
	}
	t.mu.Unlock()

	for id, obj := range snapshot {
		if !fn(id, obj) {
			return
		}
	}
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers[:len(t.observers):len(t.observers)], o)
}

// Close stops accepting allocations and drops remaining entries without
// notifying observers. It returns the number of entries dropped.
func (t *Table) Close() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0
	}
	t.closed = true
	n := len(t.entries)
	t.entries = make(map[ID]any)
	return n
}

func notify(observers []Observer, e Event) {
	for _, o := range observers {
		o.OnForeignEvent(e)
	}
}

func notFound(id ID) error {
	return errors.New(errors.PhaseForeign, errors.KindForeignObjectNotFound).
		Value(id).
		Detail("no foreign object with id %d", id).
		Build()
}
