package registry

import (
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Event types published on module changes. The event data is an Info.
const (
	EventSource = "modrig/registry"

	eventModuleAdded   = "io.modrig.module.added"
	eventModuleRemoved = "io.modrig.module.removed"
	eventModuleState   = "io.modrig.module.state"
)

// EventTypes lists every event type the registry publishes.
var EventTypes = []string{eventModuleAdded, eventModuleRemoved, eventModuleState}

type eventBus struct {
	mu   sync.RWMutex
	subs []chan<- cloudevents.Event
}

func newEventBus() *eventBus { return &eventBus{} }

func (b *eventBus) subscribe(ch chan<- cloudevents.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, ch)
}

func (b *eventBus) unsubscribe(ch chan<- cloudevents.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// publish never blocks; a subscriber whose buffer is full misses the event.
func (b *eventBus) publish(eventType string, info Info) {
	b.mu.RLock()
	subs := append([]chan<- cloudevents.Event(nil), b.subs...)
	b.mu.RUnlock()
	if len(subs) == 0 {
		return
	}

	evt := cloudevents.NewEvent()
	evt.SetID(newEventID())
	evt.SetSource(EventSource)
	evt.SetType(eventType)
	evt.SetSubject(info.Name)
	evt.SetTime(time.Now())
	_ = evt.SetData(cloudevents.ApplicationJSON, info)

	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// Subscribe registers ch for module change events. The registry never
// closes ch; use a buffered channel.
func (r *Registry) Subscribe(ch chan<- cloudevents.Event) { r.events.subscribe(ch) }

func (r *Registry) Unsubscribe(ch chan<- cloudevents.Event) { r.events.unsubscribe(ch) }
