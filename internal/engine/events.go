package engine

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/banshee-data/speedtrap/internal/sim"
)

// EventKind identifies what an Event carries.
type EventKind string

const (
	EventTick    EventKind = "tick"
	EventVerdict EventKind = "verdict"
	EventAborted EventKind = "aborted"
)

// Event is delivered to subscribers. Every run produces a stream of ticks
// followed by exactly one verdict or one aborted event, unless it is reset.
type Event struct {
	Kind    EventKind      `json:"kind"`
	RunID   string         `json:"run_id"`
	Tick    *sim.TickEvent `json:"tick,omitempty"`
	Verdict *sim.Verdict   `json:"verdict,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// subscriberBuffer is sized to hold a few seconds of ticks at 60 Hz.
const subscriberBuffer = 256

type hub struct {
	mu          sync.Mutex
	subscribers map[string]chan Event
}

func newHub() *hub {
	return &hub{subscribers: make(map[string]chan Event)}
}

// randomID generates a random subscriber ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (h *hub) subscribe() (string, <-chan Event) {
	id := randomID()
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[id] = ch
	return id, ch
}

func (h *hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

// publish never blocks the frame loop: a subscriber that has fallen a full
// buffer behind misses events.
func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}
