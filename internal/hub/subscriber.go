package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"voxstream/internal/transcribe"
)

// subscriber is one connected client's SubscriberState (SPEC_FULL.md data
// model): id, connected_at, a bounded outbound queue, and a slow_mark flag
// that is set (and never cleared) once the queue has ever been observed
// full.
type subscriber struct {
	id          string
	connectedAt time.Time
	conn        *websocket.Conn
	logger      *zap.SugaredLogger

	outbound chan Envelope
	slowMark atomic.Bool

	mu             sync.Mutex
	queueFullSince time.Time

	closeOnce sync.Once
	closed    chan struct{}
}

func newSubscriber(id string, conn *websocket.Conn, queueCapacity int, logger *zap.SugaredLogger) *subscriber {
	return &subscriber{
		id:          id,
		connectedAt: time.Now().UTC(),
		conn:        conn,
		logger:      logger,
		outbound:    make(chan Envelope, queueCapacity),
		closed:      make(chan struct{}),
	}
}

// enqueue attempts a non-blocking send. If the queue is full it marks
// slow_mark, records when the queue first became continuously full, and
// reports whether the message was dropped.
func (s *subscriber) enqueue(env Envelope) (dropped bool) {
	select {
	case s.outbound <- env:
		s.mu.Lock()
		s.queueFullSince = time.Time{}
		s.mu.Unlock()
		return false
	default:
		s.slowMark.Store(true)
		s.mu.Lock()
		if s.queueFullSince.IsZero() {
			s.queueFullSince = time.Now()
		}
		s.mu.Unlock()
		return true
	}
}

// fullFor reports how long the queue has been continuously full, or zero
// if it currently has room.
func (s *subscriber) fullFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queueFullSince.IsZero() {
		return 0
	}
	return time.Since(s.queueFullSince)
}

// writeLoop drains the outbound queue to the websocket connection until the
// subscriber is closed or a write fails.
func (s *subscriber) writeLoop() {
	for {
		select {
		case env, ok := <-s.outbound:
			if !ok {
				return
			}
			if err := s.conn.WriteJSON(env); err != nil {
				s.logger.Warnw("subscriber write failed, closing", "subscriber", s.id, "error", err)
				s.close()
				return
			}
		case <-s.closed:
			return
		}
	}
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}

// sendBye sends a best-effort bye message carrying reason. Does not close
// the connection; callers close separately.
func (s *subscriber) sendBye(reason ByeReason) {
	_ = s.conn.WriteJSON(Envelope{Type: MessageBye, Reason: reason})
}

func subscriberEventEnvelope(ev transcribe.Event) Envelope {
	return Envelope{Type: MessageEvent, Event: &ev}
}
