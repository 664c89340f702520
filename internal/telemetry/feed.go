package telemetry

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// UpdateKind discriminates feed updates.
type UpdateKind string

const (
	// UpdateConsoleLine carries one newly appended console line.
	UpdateConsoleLine UpdateKind = "console_line"
	// UpdateConsoleReset signals the buffer changed wholesale (history
	// backfill or clear); subscribers should re-read ConsoleLines.
	UpdateConsoleReset UpdateKind = "console_reset"
	// UpdateStats carries a raw stats snapshot.
	UpdateStats UpdateKind = "stats"
	// UpdateStatus carries the daemon-reported container state string.
	UpdateStatus UpdateKind = "status"
	// UpdateState carries a session lifecycle transition.
	UpdateState UpdateKind = "state"
	// UpdateInstallCompleted signals the daemon finished installing.
	UpdateInstallCompleted UpdateKind = "install_completed"
)

// Update is one event fanned out to feed subscribers.
type Update struct {
	Kind   UpdateKind
	Line   string        // UpdateConsoleLine
	Status string        // UpdateStatus
	State  State         // UpdateState
	Stats  *StatsPayload // UpdateStats
}

// Subscriber receives session updates on a buffered channel. A slow
// subscriber loses updates rather than stalling the socket timeline.
type Subscriber struct {
	ID string
	Ch chan Update
}

// Feed fans session updates out to any number of subscribers with
// non-blocking delivery.
type Feed struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	logger      *slog.Logger
}

// NewFeed creates an empty feed.
func NewFeed(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		subscribers: make(map[string]*Subscriber),
		logger:      logger,
	}
}

// Subscribe registers a new subscriber.
func (f *Feed) Subscribe() *Subscriber {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub := &Subscriber{
		ID: uuid.New().String(),
		Ch: make(chan Update, 100),
	}
	f.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes the subscriber and closes its channel.
func (f *Feed) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.subscribers[sub.ID]; exists {
		close(sub.Ch)
		delete(f.subscribers, sub.ID)
	}
}

// Publish delivers an update to every subscriber, dropping it for any
// whose buffer is full.
func (f *Feed) Publish(update Update) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sub := range f.subscribers {
		select {
		case sub.Ch <- update:
		default:
			f.logger.Warn("feed subscriber lagging, dropping update",
				"subscriber_id", sub.ID, "kind", update.Kind)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (f *Feed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}
