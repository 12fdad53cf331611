package foreign

// ID identifies a live foreign object within one VM.
// ID 0 is reserved and always invalid.
type ID uint64

// StorageSize is the number of bytes of native foreign storage that carry an ID.
const StorageSize = 8

// EventType identifies a foreign object lifecycle event.
type EventType uint8

const (
	EventAllocated EventType = iota
	EventReclaimed
)

func (t EventType) String() string {
	switch t {
	case EventAllocated:
		return "allocated"
	case EventReclaimed:
		return "reclaimed"
	default:
		return "unknown"
	}
}

// Event represents a foreign object lifecycle event.
type Event struct {
	Value any
	ID    ID
	Type  EventType
}

// Observer receives notifications about foreign object lifecycle events.
// Observers run synchronously inside Allocate and Reclaim and must not call
// back into the table.
type Observer interface {
	OnForeignEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnForeignEvent(e Event) { f(e) }
