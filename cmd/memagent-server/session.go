package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nevindra/memagent"
	"github.com/nevindra/memagent/observer"
)

// sessionEntry is one live conversation.
type sessionEntry struct {
	agent      *memagent.Agent
	chat       observer.Chatter
	lastAccess time.Time
}

// sessionManager creates, reuses, and evicts per-session agents. Every
// agent shares the same memory root; an agent serializes its own turns.
// All methods are safe for concurrent use.
type sessionManager struct {
	newAgent func() (*memagent.Agent, observer.Chatter, error)
	archive  func(context.Context, *memagent.Agent) // nil = no archive
	ttl      time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*sessionEntry
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newSessionManager(newAgent func() (*memagent.Agent, observer.Chatter, error), ttl time.Duration, logger *slog.Logger) *sessionManager {
	return &sessionManager{
		newAgent: newAgent,
		ttl:      ttl,
		logger:   logger,
		sessions: make(map[string]*sessionEntry),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// start launches the background cleanup goroutine.
func (m *sessionManager) start(interval time.Duration) {
	go m.runCleanup(interval)
}

// create starts a new session and returns its entry; the session ID is the
// agent's ID.
func (m *sessionManager) create() (*sessionEntry, error) {
	agent, chat, err := m.newAgent()
	if err != nil {
		return nil, err
	}
	entry := &sessionEntry{agent: agent, chat: chat, lastAccess: time.Now()}
	m.mu.Lock()
	m.sessions[agent.ID()] = entry
	n := len(m.sessions)
	m.mu.Unlock()
	m.logger.Info("session created", "session_id", agent.ID(), "sessions", n)
	return entry, nil
}

// get returns the live session for id and refreshes its access time.
func (m *sessionManager) get(id string) (*sessionEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[id]
	if ok {
		entry.lastAccess = time.Now()
	}
	return entry, ok
}

// delete ends a session, archiving its conversation first. It reports
// whether the session existed.
func (m *sessionManager) delete(ctx context.Context, id string) bool {
	m.mu.Lock()
	entry, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return false
	}
	m.finish(ctx, entry, "deleted")
	return true
}

func (m *sessionManager) finish(ctx context.Context, entry *sessionEntry, reason string) {
	if m.archive != nil {
		m.archive(ctx, entry.agent)
	}
	m.logger.Info("session ended", "session_id", entry.agent.ID(), "reason", reason)
}

// len returns the number of live sessions.
func (m *sessionManager) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// close stops the cleanup goroutine, then archives every live session.
func (m *sessionManager) close(ctx context.Context) {
	close(m.stopCh)
	<-m.doneCh

	m.mu.Lock()
	entries := m.sessions
	m.sessions = make(map[string]*sessionEntry)
	m.mu.Unlock()
	for _, e := range entries {
		m.finish(ctx, e, "shutdown")
	}
}

// runCleanup runs the TTL eviction loop until stopCh is closed.
func (m *sessionManager) runCleanup(interval time.Duration) {
	defer close(m.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evictExpired()
		case <-m.stopCh:
			return
		}
	}
}

// evictExpired removes sessions whose last access exceeds the TTL.
// Removes from the map atomically under lock, then archives outside the
// lock to avoid holding it during I/O.
func (m *sessionManager) evictExpired() {
	m.mu.Lock()
	var expired []*sessionEntry
	for id, entry := range m.sessions {
		if time.Since(entry.lastAccess) > m.ttl {
			expired = append(expired, entry)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, e := range expired {
		m.finish(context.Background(), e, "expired")
	}
}
