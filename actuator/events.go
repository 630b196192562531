package actuator

import (
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/skekre98/modrig/registry"
)

// EventLog keeps the most recent module events.
type EventLog struct {
	size int

	mu     sync.RWMutex
	events []cloudevents.Event
	reg    *registry.Registry
	ch     chan cloudevents.Event
	quit   chan struct{}
	done   chan struct{}
}

func NewEventLog(size int) *EventLog {
	return &EventLog{size: size}
}

// Attach subscribes to reg until Detach.
func (l *EventLog) Attach(reg *registry.Registry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ch != nil {
		return
	}
	l.reg = reg
	l.ch = make(chan cloudevents.Event, l.size)
	l.quit = make(chan struct{})
	l.done = make(chan struct{})
	reg.Subscribe(l.ch)
	go l.loop(l.ch, l.quit, l.done)
}

// The registry never closes subscriber channels, so the loop ends on quit.
func (l *EventLog) loop(ch <-chan cloudevents.Event, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case evt := <-ch:
			l.Add(evt)
		case <-quit:
			return
		}
	}
}

func (l *EventLog) Detach() {
	l.mu.Lock()
	ch, quit, done, reg := l.ch, l.quit, l.done, l.reg
	l.ch, l.quit, l.done, l.reg = nil, nil, nil, nil
	l.mu.Unlock()
	if ch == nil {
		return
	}
	reg.Unsubscribe(ch)
	close(quit)
	<-done
}

func (l *EventLog) Add(evt cloudevents.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, evt)
	if over := len(l.events) - l.size; over > 0 {
		l.events = append([]cloudevents.Event(nil), l.events[over:]...)
	}
}

// Recent returns the buffered events, oldest first.
func (l *EventLog) Recent() []cloudevents.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]cloudevents.Event{}, l.events...)
}
