package events

import (
	"sync"
	"time"
)

// Type identifies what kind of event occurred.
type Type string

const (
	DatabaseCreated   Type = "database.created"
	DatabaseDropped   Type = "database.dropped"
	DatabaseOpened    Type = "database.opened"
	DatabaseClosed    Type = "database.closed"
	CheckpointStarted Type = "checkpoint.started"
	CheckpointDone    Type = "checkpoint.completed"
	ReplicaConnected  Type = "replication.replica_connected"
	ReplicaLost       Type = "replication.replica_lost"
	PromotedToMaster  Type = "replication.promoted"
	CorruptionFound   Type = "storage.corruption_detected"
)

// Event is a single notable occurrence within the engine, broadcast to
// anything watching (e.g. an operator tool tailing status, or the
// metrics collector updating a gauge in response).
type Event struct {
	ID        string
	Type      Type
	Timestamp time.Time
	Database  string
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Broker fans out published events to every current subscriber,
// dropping an event for a subscriber whose buffer is full rather than
// blocking the publisher — a slow or abandoned subscriber must not
// stall database operations.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker. Call Start to begin
// distributing published events.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop in the background.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker's distribution loop. Subscriber channels are
// not closed here; each stays open until Unsubscribe closes it.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns its channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers. Safe to call from any
// goroutine, including while holding locks a subscriber might
// otherwise contend on — Publish only ever enqueues onto the broker's
// own buffered channel.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip.
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
