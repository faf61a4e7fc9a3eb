package notify

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

const DefaultQueueSize = 64

// Subscriber is one live receiver. Messages are queued on a bounded channel;
// when the queue is full the message is dropped for this subscriber only.
type Subscriber struct {
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// C yields queued frames in broadcast order.
func (s *Subscriber) C() <-chan []byte { return s.send }

// Done is closed once the subscriber has been removed from its hub.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Subscriber) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// offer reports whether the frame was queued. Closed subscribers are skipped
// without counting as a drop.
func (s *Subscriber) offer(b []byte) (queued, dropped bool) {
	if s.closed() {
		return false, false
	}
	select {
	case s.send <- b:
		return true, false
	default:
		return false, true
	}
}

// Hub is the in-process subscriber set. All methods are safe for concurrent use.
type Hub struct {
	queueSize int

	mu   sync.RWMutex
	subs map[*Subscriber]struct{}
}

func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{queueSize: queueSize, subs: map[*Subscriber]struct{}{}}
}

func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{
		send: make(chan []byte, h.queueSize),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Unsubscribe removes s and closes its Done channel. Safe to call twice.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
	s.close()
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast queues msg on every open subscriber and returns how many
// accepted it.
func (h *Hub) Broadcast(msg Message) int {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", string(msg.Type)).Msg("notify_encode_failed")
		return 0
	}
	metricBroadcastsTotal.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()
	sent, dropped := 0, 0
	for s := range h.subs {
		ok, drop := s.offer(payload)
		if ok {
			sent++
		}
		if drop {
			dropped++
		}
	}
	metricMessagesSent.Add(int64(sent))
	if dropped > 0 {
		metricMessagesDropped.Add(int64(dropped))
		log.Warn().Str("type", string(msg.Type)).Int("dropped", dropped).Msg("notify_queue_full")
	}
	log.Debug().Str("type", string(msg.Type)).Int("clients", sent).Msg("notify_broadcast")
	return sent
}

// Publish wraps data in a timestamped message of the given kind and broadcasts it.
func (h *Hub) Publish(kind Kind, data any) {
	h.Broadcast(NewMessage(kind, data))
}

// CloseAll removes every subscriber. Their transports observe Done and hang up.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	subs := h.subs
	h.subs = map[*Subscriber]struct{}{}
	h.mu.Unlock()
	for s := range subs {
		s.close()
	}
}
