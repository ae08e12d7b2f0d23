// Package realtime pushes post changes to connected clients.
//
// THE HUB:
// Hub is the process-wide registry of live subscribers. The feed service
// calls Publish after a mutation has been committed; each subscriber gets
// its own copy of the event on a buffered channel. The websocket endpoint
// (websocket.go) is just one kind of subscriber.
//
// LIFECYCLE:
//
//	New → Start → Close
//
// Start is called once the HTTP listener is up. Publish before Start or
// after Close returns ErrNotStarted. Callers get a real error they can log
// instead of a silent no-op.
//
// DELIVERY GUARANTEES:
// None beyond "best effort, at most once". A subscriber whose buffer is full
// misses the event, nothing is replayed, and a client that subscribes after
// a Publish does not see it.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sakif/blog-feed/internal/model"
)

// ErrNotStarted is returned by Publish outside the Start..Close window.
var ErrNotStarted = errors.New("realtime: hub not started")

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("realtime: hub closed")

// PostsEvent is the channel name every post change is emitted on.
const PostsEvent = "posts"

// DefaultBufferSize is the per-subscriber queue length.
const DefaultBufferSize = 16

// Envelope is the JSON frame clients receive:
//
//	{"event":"posts","data":{"action":"create","post":{...}}}
type Envelope struct {
	Event string          `json:"event"`
	Data  model.PostEvent `json:"data"`
}

type hubState int

const (
	stateNew hubState = iota
	stateRunning
	stateClosed
)

// Subscriber is one live receiver of events.
type Subscriber struct {
	ch        chan []byte
	closeOnce sync.Once
}

// C yields encoded Envelope frames. It is closed when the subscriber is
// removed or the hub shuts down.
func (s *Subscriber) C() <-chan []byte {
	return s.ch
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// Hub fans events out to subscribers.
//
// CONCURRENCY:
// Subscribe, Unsubscribe, Start and Close take the write lock; Publish takes
// the read lock, so many publishers can fan out at once. A channel is only
// ever closed under the write lock, which is why Publish can send without
// racing a close.
type Hub struct {
	mu         sync.RWMutex
	subs       map[*Subscriber]struct{}
	state      hubState
	bufferSize int
	logger     *slog.Logger
}

// New returns a hub that is not yet started.
func New(bufferSize int, logger *slog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		subs:       make(map[*Subscriber]struct{}),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Start opens the hub for publishing. Starting twice is harmless; starting
// a closed hub is not possible.
func (h *Hub) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case stateClosed:
		return ErrClosed
	case stateRunning:
		return nil
	}
	h.state = stateRunning
	h.logger.Info("realtime hub started")
	return nil
}

// Close disconnects every subscriber and stops publishing.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == stateClosed {
		return
	}
	h.state = stateClosed
	for s := range h.subs {
		s.close()
		delete(h.subs, s)
	}
	h.logger.Info("realtime hub closed")
}

// Subscribe registers a new subscriber. Clients may connect before Start;
// they simply receive nothing until publishing begins.
func (h *Hub) Subscribe() (*Subscriber, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == stateClosed {
		return nil, ErrClosed
	}
	s := &Subscriber{ch: make(chan []byte, h.bufferSize)}
	h.subs[s] = struct{}{}
	return s, nil
}

// Unsubscribe removes s and closes its channel. Safe to call more than once.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subs, s)
	s.close()
}

// Len reports the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish encodes ev once and offers it to every current subscriber without
// blocking.
func (h *Hub) Publish(ev model.PostEvent) error {
	frame, err := json.Marshal(Envelope{Event: PostsEvent, Data: ev})
	if err != nil {
		return fmt.Errorf("realtime: encoding event: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.state != stateRunning {
		return ErrNotStarted
	}

	dropped := 0
	for s := range h.subs {
		select {
		case s.ch <- frame:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("realtime subscribers too slow, event dropped",
			slog.String("action", string(ev.Action)),
			slog.Int("dropped", dropped),
		)
	}
	return nil
}
