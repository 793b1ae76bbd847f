// Package hub implements the Broadcast Hub (SPEC_FULL.md §4.6): it accepts
// streaming websocket subscribers, fans out TranscriptionEvents to each of
// their bounded outbound queues, and degrades slow subscribers to dropped
// events and then disconnection rather than ever back-pressuring upstream.
package hub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"voxstream/internal/status"
	"voxstream/internal/transcribe"
)

// Config configures a Hub.
type Config struct {
	BindAddress        string
	HistoryCap         int
	QueueCapacity      int
	SlowClientGraceSec float64
	MaxSubscribers     int
}

// DefaultConfig returns the defaults named in SPEC_FULL.md §4.6.
func DefaultConfig() Config {
	return Config{
		BindAddress:        "127.0.0.1:8765",
		HistoryCap:         100,
		QueueCapacity:      256,
		SlowClientGraceSec: 30,
		MaxSubscribers:     32,
	}
}

// Hub fans TranscriptionEvents out to every connected subscriber.
type Hub struct {
	cfg       Config
	sessionID string
	startedAt time.Time
	logger    *zap.SugaredLogger
	counters  *status.Counters
	upgrader  websocket.Upgrader

	mu          sync.RWMutex
	subscribers map[string]*subscriber
	history     []transcribe.Event
	accepting   bool
}

// New constructs a Hub for the given session.
func New(cfg Config, sessionID string, startedAt time.Time, counters *status.Counters, logger *zap.SugaredLogger) *Hub {
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = 100
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 256
	}
	if cfg.SlowClientGraceSec <= 0 {
		cfg.SlowClientGraceSec = 30
	}
	if cfg.MaxSubscribers <= 0 {
		cfg.MaxSubscribers = 32
	}
	return &Hub{
		cfg:         cfg,
		sessionID:   sessionID,
		startedAt:   startedAt,
		logger:      logger,
		counters:    counters,
		upgrader:    websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		subscribers: make(map[string]*subscriber),
		accepting:   true,
	}
}

// Handler returns the HTTP handler that upgrades connections to websockets
// and onboards each one as a subscriber. Mount it at the Hub's bind
// address.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(h.serveWS)
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	accepting := h.accepting
	tooMany := len(h.subscribers) >= h.cfg.MaxSubscribers
	h.mu.RUnlock()
	if !accepting || tooMany {
		http.Error(w, "hub not accepting subscribers", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}
	h.onboard(conn)
}

func (h *Hub) onboard(conn *websocket.Conn) {
	sub := newSubscriber(uuid.NewString(), conn, h.cfg.QueueCapacity, h.logger)

	h.mu.Lock()
	h.subscribers[sub.id] = sub
	historySnapshot := append([]transcribe.Event(nil), h.history...)
	h.mu.Unlock()

	h.counters.SubscribersConnected.Add(1)

	sub.enqueue(Envelope{Type: MessageHello, Hello: &Hello{
		SessionID:   h.sessionID,
		StartedAt:   h.startedAt,
		PrivacyMode: "local_only",
	}})
	if len(historySnapshot) > 0 {
		sub.enqueue(Envelope{Type: MessageHistory, History: historySnapshot})
	}

	go sub.writeLoop()
	go h.readLoop(sub)

	h.broadcastStatus()
}

// readLoop discards subscriber-sent frames (the hub is broadcast-only) but
// must keep reading so gorilla/websocket services control frames and
// detects disconnects.
func (h *Hub) readLoop(sub *subscriber) {
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			// The client is already gone; a bye would just be dropped.
			h.removeSubscriber(sub.id, "")
			return
		}
	}
}

// removeSubscriber drops id from the subscriber set, optionally sending a
// bye with reason first (an empty reason sends none, for the
// already-disconnected-client path). No-op if id is not currently tracked,
// so concurrent removals (readLoop racing evictSlowSubscribers) are safe.
func (h *Hub) removeSubscriber(id string, reason ByeReason) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	if reason != "" {
		sub.sendBye(reason)
	}
	sub.close()
	h.broadcastStatus()
}

// broadcastStatus enqueues a status message reporting the current
// subscriber count to every connected subscriber (SPEC_FULL.md §6, sent on
// subscriber churn).
func (h *Hub) broadcastStatus() {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for _, s := range h.subscribers {
		subs = append(subs, s)
	}
	count := len(subs)
	h.mu.RUnlock()

	env := Envelope{Type: MessageStatus, Status: &StatusPayload{Connected: true, Subscribers: count}}
	for _, s := range subs {
		s.enqueue(env)
	}
}

// Broadcast enqueues ev for every connected subscriber and appends it to
// the bounded history buffer.
func (h *Hub) Broadcast(ev transcribe.Event) {
	h.mu.Lock()
	h.history = append(h.history, ev)
	if len(h.history) > h.cfg.HistoryCap {
		h.history = h.history[len(h.history)-h.cfg.HistoryCap:]
	}
	subs := make([]*subscriber, 0, len(h.subscribers))
	for _, s := range h.subscribers {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	env := subscriberEventEnvelope(ev)
	for _, s := range subs {
		if dropped := s.enqueue(env); dropped {
			h.counters.SlowClientDrops.Add(1)
			h.logger.Warnw("subscriber queue full, dropping event", "subscriber", s.id, "event_id", ev.ID)
		}
	}
}

// Run consumes events until ctx is cancelled or events is closed, and
// periodically disconnects subscribers that have been continuously slow
// for longer than SlowClientGraceSec.
func (h *Hub) Run(ctx context.Context, events <-chan transcribe.Event) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			h.Broadcast(ev)
		case <-ticker.C:
			h.evictSlowSubscribers()
		}
	}
}

func (h *Hub) evictSlowSubscribers() {
	grace := time.Duration(h.cfg.SlowClientGraceSec * float64(time.Second))
	h.mu.RLock()
	var toEvict []string
	for id, s := range h.subscribers {
		if s.fullFor() > grace {
			toEvict = append(toEvict, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range toEvict {
		h.logger.Warnw("disconnecting subscriber stuck full past grace period", "subscriber", id)
		h.removeSubscriber(id, ByeSlowClient)
	}
}

// Shutdown stops accepting new subscribers, sends bye(reason="shutdown") to
// every connected subscriber, and closes their connections immediately.
// Events still queued for a subscriber are not delivered, and ctx is not
// consulted.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.accepting = false
	subs := make([]*subscriber, 0, len(h.subscribers))
	for _, s := range h.subscribers {
		subs = append(subs, s)
	}
	h.subscribers = make(map[string]*subscriber)
	h.mu.Unlock()

	for _, s := range subs {
		s.sendBye(ByeShutdown)
		s.close()
	}
	return nil
}
