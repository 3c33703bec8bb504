package rc

// State is the lifecycle state of a ControlBlock.
type State uint32

const (
	// Unallocated is the state of a block not bound to any object.
	Unallocated State = iota
	// Alive means strong > 0.
	Alive
	// ObjectReleased means strong == 0 and the block is still referenced by weak handles.
	ObjectReleased
	// Freed is terminal for one allocation: weak == 0 and the block went back to its Allocator.
	Freed
)

func (s State) String() string {
	switch s {
	case Unallocated:
		return "UNALLOCATED"
	case Alive:
		return "ALIVE"
	case ObjectReleased:
		return "OBJECT_RELEASED"
	case Freed:
		return "FREED"
	default:
		return "UNKNOWN"
	}
}

// Event describes one lifecycle transition of a block.
type Event struct {
	Block uint64
	From  State
	To    State
}

// Observer is notified of every block transition, synchronously, on the
// goroutine that performed it. Implementations must not block for long
// and must not touch the handles of the block being reported.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans an event out to several observers in order.
type Observers []Observer

func (obs Observers) Observe(e Event) {
	for _, o := range obs {
		if o != nil {
			o.Observe(e)
		}
	}
}
