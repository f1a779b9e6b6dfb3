package session

import (
	"context"
	"log/slog"
	"sync"
)

// Manager keeps at most one session open. Opening a new session first
// tears the old one down completely.
type Manager struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	mu      sync.Mutex // serialises Open and Close
	current *Session

	subMu   sync.RWMutex
	last    Snapshot
	subs    map[uint64]chan Snapshot
	nextSub uint64
}

// NewManager creates a manager that opens sessions with cfg and deps.
// deps.OnSnapshot, if set, still receives every snapshot.
func NewManager(cfg Config, deps Deps) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	m := &Manager{
		cfg:    cfg,
		logger: deps.Logger,
		last:   idleSnapshot(),
		subs:   make(map[uint64]chan Snapshot),
	}

	user := deps.OnSnapshot
	deps.OnSnapshot = func(s Snapshot) {
		m.broadcast(s)
		if user != nil {
			user(s)
		}
	}
	m.deps = deps
	return m
}

// Config returns the session configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Open closes the current session, if any, and opens a new one.
func (m *Manager) Open(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		if err := m.current.Close(); err != nil {
			m.logger.Warn("previous session did not close cleanly", "session_id", m.current.ID(), "error", err)
		}
		m.current = nil
	}

	s, err := Open(ctx, m.cfg, m.deps)
	if err != nil {
		return nil, err
	}
	m.current = s
	return s, nil
}

// Close closes the current session.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return ErrNoSession
	}
	err := m.current.Close()
	m.current = nil
	return err
}

// Current returns the open session, or nil. A session that failed stays
// current until the next Open or Close.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Snapshot returns the most recently published snapshot.
func (m *Manager) Snapshot() Snapshot {
	m.subMu.RLock()
	defer m.subMu.RUnlock()
	return m.last
}

// Subscribe returns a channel receiving every snapshot published from now
// on, starting with the latest one. Slow subscribers miss snapshots rather
// than stall the session. Call cancel to unsubscribe.
func (m *Manager) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)

	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.last
	m.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// broadcast records s as the latest snapshot and fans it out. A snapshot
// older than the one already recorded for the same session is dropped.
func (m *Manager) broadcast(s Snapshot) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	if s.ID == m.last.ID && s.Seq <= m.last.Seq {
		return
	}
	m.last = s
	for _, ch := range m.subs {
		select {
		case ch <- s:
		default:
		}
	}
}
