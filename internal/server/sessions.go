package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mailpilot/mailpilot/internal/instrumentation"
	"github.com/mailpilot/mailpilot/internal/logging"
	"github.com/mailpilot/mailpilot/internal/tools"
)

// Session lifecycle states.
const (
	SessionConnecting = "connecting"
	SessionOpen       = "open"
	SessionClosing    = "closing"
	SessionClosed     = "closed"
)

// ErrSessionClosed is returned when a response is enqueued to a session that
// is closing or closed. Callers drop the response silently; the work that
// produced it has already been cancelled via the session context.
var ErrSessionClosed = errors.New("session closed")

const (
	// sweepInterval is how often the manager scans for idle sessions.
	sweepInterval = time.Minute

	// Fallbacks applied when the manager is built with zero values.
	defaultQueueDepth  = 64
	defaultIdleTimeout = 10 * time.Minute
)

// Session is one client connection to the streaming transport. Each session
// owns a context cancelled on close and a bounded outbound queue drained by
// the transport's writer. Sessions are isolated: nothing here is shared
// between sessions except the dispatcher they invoke.
type Session struct {
	ID string

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    string
	degraded bool
	queue    []*tools.Response
	depth    int
	notify   chan struct{}
	last     time.Time

	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// Context returns the session's context. It is cancelled when the session
// closes, aborting any in-flight tool executions started on its behalf.
func (s *Session) Context() context.Context {
	return s.ctx
}

// State returns the session's lifecycle state.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Degraded reports whether the session has ever dropped an outbound response
// because its queue overflowed. The flag is sticky until the session closes.
func (s *Session) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Open transitions connecting -> open once the transport's event stream is
// established.
func (s *Session) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionConnecting {
		s.state = SessionOpen
	}
}

// Touch records client activity for idle-timeout accounting.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = time.Now()
}

// Enqueue appends a response to the outbound queue. When the queue is full,
// the oldest queued response is dropped to make room and the session is
// marked degraded: a slow consumer loses history, it does not stall the
// server. Returns ErrSessionClosed after Close.
func (s *Session) Enqueue(resp *tools.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == SessionClosing || s.state == SessionClosed {
		return ErrSessionClosed
	}

	if len(s.queue) >= s.depth {
		dropped := s.queue[0]
		s.queue = s.queue[1:]
		s.degraded = true
		if s.metrics != nil {
			s.metrics.RecordDroppedResponse(s.ctx, s.ID)
		}
		s.logger.Warn("outbound queue full, dropped oldest response",
			logging.Session(s.ID),
			logging.Request(dropped.RequestID))
	}
	s.queue = append(s.queue, resp)

	// Wake the writer without blocking if it is already signalled.
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// Next pops the oldest queued response, or blocks until one arrives or the
// session closes. Returns false when the session is closed and drained.
func (s *Session) Next() (*tools.Response, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			resp := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return resp, true
		}
		closed := s.state == SessionClosing || s.state == SessionClosed
		s.mu.Unlock()
		if closed {
			return nil, false
		}

		select {
		case <-s.notify:
		case <-s.ctx.Done():
			return nil, false
		}
	}
}

// close transitions to closing, cancels the session context, and wakes the
// writer so it can observe the closed state.
func (s *Session) close() {
	s.mu.Lock()
	if s.state == SessionClosing || s.state == SessionClosed {
		s.mu.Unlock()
		return
	}
	s.state = SessionClosing
	s.mu.Unlock()

	s.cancel()
	select {
	case s.notify <- struct{}{}:
	default:
	}

	s.mu.Lock()
	s.state = SessionClosed
	s.mu.Unlock()
}

// idleSince reports the last client activity.
func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// SessionManager tracks the active sessions of the streaming transport and
// expires the idle ones. Closing the manager closes every session.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	queueDepth  int
	idleTimeout time.Duration

	sweepTicker *time.Ticker
	sweepDone   chan struct{}

	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// NewSessionManager creates a manager. queueDepth and idleTimeout fall back
// to the configured defaults when non-positive.
func NewSessionManager(queueDepth int, idleTimeout time.Duration, logger *slog.Logger, metrics *instrumentation.Metrics) *SessionManager {
	if queueDepth <= 0 {
		queueDepth = defaultQueueDepth
	}
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &SessionManager{
		sessions:    make(map[string]*Session),
		queueDepth:  queueDepth,
		idleTimeout: idleTimeout,
		sweepTicker: time.NewTicker(sweepInterval),
		sweepDone:   make(chan struct{}),
		logger:      logger,
		metrics:     metrics,
	}
	go m.sweepIdleSessions()
	return m
}

// NewSession registers a new session in the connecting state. The parent
// context bounds the session's lifetime; closing the session cancels the
// derived context without touching the parent.
func (m *SessionManager) NewSession(parent context.Context) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		ID:      uuid.NewString(),
		ctx:     ctx,
		cancel:  cancel,
		state:   SessionConnecting,
		depth:   m.queueDepth,
		notify:  make(chan struct{}, 1),
		last:    time.Now(),
		logger:  m.logger,
		metrics: m.metrics,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.IncrementActiveSessions(ctx)
	}
	m.logger.Info("session created", logging.Session(s.ID))
	return s
}

// Get looks up a session by ID.
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close closes one session and removes it from the manager.
func (m *SessionManager) Close(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	s.close()
	if m.metrics != nil {
		m.metrics.DecrementActiveSessions(context.Background())
	}
	m.logger.Info("session closed", logging.Session(id))
}

// Count returns the number of active sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// sweepIdleSessions periodically closes sessions with no client activity
// within the idle timeout.
func (m *SessionManager) sweepIdleSessions() {
	for {
		select {
		case <-m.sweepTicker.C:
			m.expireIdle(time.Now())
		case <-m.sweepDone:
			return
		}
	}
}

func (m *SessionManager) expireIdle(now time.Time) {
	m.mu.RLock()
	var expired []string
	for id, s := range m.sessions {
		if now.Sub(s.idleSince()) > m.idleTimeout {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		m.logger.Info("closing idle session", logging.Session(id))
		m.Close(id)
	}
}

// Stop closes every session and halts the idle sweeper.
func (m *SessionManager) Stop() {
	m.sweepTicker.Stop()
	close(m.sweepDone)

	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Close(id)
	}
}
