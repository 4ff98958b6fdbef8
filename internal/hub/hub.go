package hub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"campus-notify-go/internal/protocol"
)

// Session is one live push channel for one recipient. A recipient may
// hold any number of concurrent sessions (multi-tab, multi-device).
type Session struct {
	ID          string
	RecipientID int

	mu       sync.Mutex
	events   chan protocol.Event
	closed   bool
	lastSeen time.Time
}

// Events returns the session's outbound stream. The channel is closed
// when the session is unregistered, which the consumer observes as a
// disconnect.
func (s *Session) Events() <-chan protocol.Event {
	return s.events
}

// send is non-blocking: a full buffer means the event is dropped for
// this session only, relying on reconnect catch-up instead of queueing.
func (s *Session) send(ev protocol.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.events)
		s.closed = true
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) seenBefore(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen.Before(cutoff)
}

// Hub owns the set of live push channels and routes bus events to the
// right sessions. Delivery never blocks on a slow consumer; events for
// dead sessions are not queued (durability is the store's job).
type Hub struct {
	bufferSize       int
	heartbeatTimeout time.Duration
	log              zerolog.Logger

	mu          sync.RWMutex
	sessions    map[string]*Session
	byRecipient map[int]map[string]*Session
	closed      bool
}

func NewHub(bufferSize int, heartbeatTimeout time.Duration, log zerolog.Logger) *Hub {
	return &Hub{
		bufferSize:       max(bufferSize, 1),
		heartbeatTimeout: heartbeatTimeout,
		log:              log.With().Str("component", "hub").Logger(),
		sessions:         make(map[string]*Session),
		byRecipient:      make(map[int]map[string]*Session),
	}
}

// Register opens a new session channel for the recipient.
func (h *Hub) Register(recipientID int) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, &protocol.ConnectionError{Op: "register on closed hub"}
	}

	s := &Session{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		events:      make(chan protocol.Event, h.bufferSize),
		lastSeen:    time.Now(),
	}

	h.sessions[s.ID] = s
	if h.byRecipient[recipientID] == nil {
		h.byRecipient[recipientID] = make(map[string]*Session)
	}
	h.byRecipient[recipientID][s.ID] = s

	sessionsGauge.Inc()
	h.log.Debug().Str("session_id", s.ID).Int("recipient_id", recipientID).Msg("session registered")
	return s, nil
}

// Unregister closes the session's channel and forgets it. Idempotent.
func (h *Hub) Unregister(sessionID string) {
	h.mu.Lock()
	s, ok := h.sessions[sessionID]
	if ok {
		delete(h.sessions, sessionID)
		if peers := h.byRecipient[s.RecipientID]; peers != nil {
			delete(peers, sessionID)
			if len(peers) == 0 {
				delete(h.byRecipient, s.RecipientID)
			}
		}
	}
	h.mu.Unlock()

	if ok {
		s.close()
		sessionsGauge.Dec()
		h.log.Debug().Str("session_id", sessionID).Msg("session unregistered")
	}
}

// Deliver pushes the event to every live session of the recipient. A
// session whose buffer is full loses the event; other sessions are
// unaffected.
func (h *Hub) Deliver(recipientID int, ev protocol.Event) {
	h.mu.RLock()
	peers := make([]*Session, 0, len(h.byRecipient[recipientID]))
	for _, s := range h.byRecipient[recipientID] {
		peers = append(peers, s)
	}
	h.mu.RUnlock()

	for _, s := range peers {
		if s.send(ev) {
			deliveredCounter.Inc()
		} else {
			droppedCounter.Inc()
			h.log.Warn().Str("session_id", s.ID).Int("recipient_id", recipientID).
				Str("kind", string(ev.Kind)).Msg("session buffer full, event dropped")
		}
	}
}

// Heartbeat records liveness for the session.
func (h *Hub) Heartbeat(sessionID string) {
	h.mu.RLock()
	s, ok := h.sessions[sessionID]
	h.mu.RUnlock()

	if ok {
		s.touch(time.Now())
	}
}

// HasSessions reports whether the recipient has any live channel, used to
// decide whether offline web-push delivery is worth attempting.
func (h *Hub) HasSessions(recipientID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byRecipient[recipientID]) > 0
}

// Run reaps sessions whose last heartbeat is older than the configured
// timeout. Reaped sessions get their channel closed, which the consumer
// observes as a disconnect.
func (h *Hub) Run(ctx context.Context) {
	interval := h.heartbeatTimeout / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.reapStale()
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) reapStale() {
	cutoff := time.Now().Add(-h.heartbeatTimeout)

	h.mu.RLock()
	var stale []string
	for id, s := range h.sessions {
		if s.seenBefore(cutoff) {
			stale = append(stale, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range stale {
		h.log.Info().Str("session_id", id).Msg("session heartbeat timed out")
		h.Unregister(id)
	}
}

// Close unregisters every session. Register fails afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	all := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		all = append(all, s)
	}
	h.sessions = make(map[string]*Session)
	h.byRecipient = make(map[int]map[string]*Session)
	h.mu.Unlock()

	for _, s := range all {
		s.close()
		sessionsGauge.Dec()
	}
}
