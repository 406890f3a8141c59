package engine

import (
	"log/slog"
	"sync"
	"time"
)

// Event categories.
const (
	EventMove       = "move"
	EventSpawn      = "spawn"
	EventRemove     = "remove"
	EventUpdate     = "update"
	EventHarvest    = "harvest"
	EventContribute = "contribute"
	EventPlant      = "plant"
	EventWater      = "water"
	EventGraze      = "graze"
	EventNest       = "nest"
	EventCleanup    = "cleanup"
)

const (
	eventCapacity    = 1000
	subscriberBuffer = 64
)

// Event is a notable occurrence in the world.
type Event struct {
	Tick        uint64    `json:"tick" db:"tick"`
	Time        time.Time `json:"time" db:"time"`
	Category    string    `json:"category" db:"category"`
	EntityID    string    `json:"entity_id,omitempty" db:"entity_id"`
	Description string    `json:"description" db:"description"`
}

// eventLog keeps the most recent events and fans new ones out to subscribers.
type eventLog struct {
	mu     sync.RWMutex
	events []Event
	unsent []Event // not yet handed to Drain
	subs   map[int]chan Event
	nextID int
}

func newEventLog() *eventLog {
	return &eventLog{subs: make(map[int]chan Event)}
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, ev)
	if len(l.events) > eventCapacity {
		l.events = l.events[len(l.events)-eventCapacity:]
	}
	l.unsent = append(l.unsent, ev)
	if len(l.unsent) > eventCapacity {
		l.unsent = l.unsent[len(l.unsent)-eventCapacity:]
	}
	for id, ch := range l.subs {
		select {
		case ch <- ev:
		default:
			slog.Debug("subscriber lagging, event dropped", "subscriber", id, "category", ev.Category)
		}
	}
}

// recent returns up to limit of the newest events, oldest first. A limit of
// zero or less returns everything retained.
func (l *eventLog) recent(limit int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := 0
	if limit > 0 && len(l.events) > limit {
		start = len(l.events) - limit
	}
	return append([]Event(nil), l.events[start:]...)
}

// drain returns and forgets the events added since the previous drain.
func (l *eventLog) drain() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.unsent
	l.unsent = nil
	return out
}

func (l *eventLog) subscribe() (<-chan Event, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	ch := make(chan Event, subscriberBuffer)
	l.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.subs, id)
			close(ch)
		})
	}
}
