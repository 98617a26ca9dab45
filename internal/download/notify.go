package download

import (
	"sync"
	"time"
)

// Event types broadcast to WebSocket clients.
const (
	EventStarted  = "downloads:started"
	EventProgress = "downloads:progress"
	EventFinished = "downloads:finished"
)

// Broadcaster pushes events to connected UI clients.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// defaultNotifyInterval caps progress broadcasts so a fast stream of
// chunk reads cannot saturate the render loop. Status-store writes
// themselves are never throttled.
const defaultNotifyInterval = 100 * time.Millisecond

// Notifier rate-limits progress broadcasts to one per interval while
// letting terminal-state transitions through immediately, so the
// consumer is always visually current on outcomes.
type Notifier struct {
	hub      Broadcaster
	interval time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewNotifier creates a notifier. A nil hub disables broadcasting, which
// keeps the engine usable in tests without a WebSocket stack.
func NewNotifier(hub Broadcaster, interval time.Duration) *Notifier {
	if interval <= 0 {
		interval = defaultNotifyInterval
	}
	return &Notifier{hub: hub, interval: interval}
}

// Started announces a freshly initialized batch.
func (n *Notifier) Started(snap Snapshot) {
	n.send(EventStarted, snap)
}

// Progress broadcasts a snapshot unless one was sent within the
// throttle interval.
func (n *Notifier) Progress(snap Snapshot) {
	n.mu.Lock()
	if time.Since(n.last) < n.interval {
		n.mu.Unlock()
		return
	}
	n.last = time.Now()
	n.mu.Unlock()

	n.send(EventProgress, snap)
}

// Terminal broadcasts immediately after a task reached a terminal state.
func (n *Notifier) Terminal(snap Snapshot) {
	n.mu.Lock()
	n.last = time.Now()
	n.mu.Unlock()

	n.send(EventProgress, snap)
}

// Finished announces that every task of the batch reached a terminal
// state.
func (n *Notifier) Finished(snap Snapshot) {
	n.send(EventFinished, snap)
}

func (n *Notifier) send(event string, snap Snapshot) {
	if n.hub == nil {
		return
	}
	_ = n.hub.Broadcast(event, snap)
}
