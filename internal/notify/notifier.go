// Package notify is the daemon's debounced change-notification channel.
// Observers subscribe, receive "session changed" signals, and re-query
// the store; no payloads travel inline.
package notify

import (
	"sync"
	"time"
)

// Change signals that derived state changed. An empty SessionID means a
// broadcast refresh.
type Change struct {
	SessionID string    `json:"session_id,omitempty"`
	At        time.Time `json:"at"`
}

// Notifier debounces change signals per session id and fans them out to
// subscribers. Slow subscribers drop signals rather than blocking the
// ingestion path; a dropped signal is recovered by the next one.
type Notifier struct {
	window time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	subs    map[int]chan Change
	nextSub int
	stopped bool
}

// New creates a notifier with the given debounce window.
func New(window time.Duration) *Notifier {
	return &Notifier{
		window: window,
		timers: make(map[string]*time.Timer),
		subs:   make(map[int]chan Change),
	}
}

// Notify schedules a change signal for sessionID. Repeated calls within
// the window collapse to one emission.
func (n *Notifier) Notify(sessionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stopped {
		return
	}
	if t, ok := n.timers[sessionID]; ok {
		t.Reset(n.window)
		return
	}
	n.timers[sessionID] = time.AfterFunc(n.window, func() {
		n.emit(sessionID)
	})
}

// Broadcast schedules a refresh-everything signal.
func (n *Notifier) Broadcast() {
	n.Notify("")
}

// Subscribe registers a new observer. The returned cancel removes the
// subscription and closes the channel.
func (n *Notifier) Subscribe() (<-chan Change, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextSub
	n.nextSub++
	ch := make(chan Change, 16)
	n.subs[id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if c, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Stop cancels pending timers and closes all subscriber channels.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stopped = true
	for id, t := range n.timers {
		t.Stop()
		delete(n.timers, id)
	}
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
}

func (n *Notifier) emit(sessionID string) {
	n.mu.Lock()
	delete(n.timers, sessionID)
	if n.stopped {
		n.mu.Unlock()
		return
	}
	change := Change{SessionID: sessionID, At: time.Now()}
	for _, ch := range n.subs {
		select {
		case ch <- change:
		default:
		}
	}
	n.mu.Unlock()
}
