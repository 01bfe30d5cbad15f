// Copyright 2025 the airs-mcp authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/airsstack/airs-mcp/internal/server/mcp"
)

// SessionHeader carries the session identifier on HTTP requests and
// responses. A session is a logical client identity spanning any number
// of connections and SSE reconnects; it is not a TCP connection.
const SessionHeader = "Mcp-Session-Id"

// Session is one logical client tracked by the server.
type Session struct {
	Id        string
	CreatedAt time.Time

	// State is the per-session MCP protocol state (initialize gating).
	State *mcp.SessionState

	mu       sync.Mutex
	lastSeen time.Time
	subject  string
}

// Touch records activity on the session.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// LastSeen returns the time of the session's most recent activity.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// SetSubject records the authenticated principal last seen on the
// session.
func (s *Session) SetSubject(subject string) {
	s.mu.Lock()
	s.subject = subject
	s.mu.Unlock()
}

// Subject returns the authenticated principal, or "".
func (s *Session) Subject() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subject
}

// sessionManager owns the session table and reaps idle sessions.
type sessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	timeout  time.Duration

	// onEvict runs outside the table lock for each reaped session.
	onEvict func(*Session)

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// newSessionManager starts a manager reaping sessions idle longer than
// timeout. A zero timeout means 30 minutes.
func newSessionManager(timeout time.Duration, onEvict func(*Session)) *sessionManager {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	m := &sessionManager{
		sessions: make(map[string]*Session),
		timeout:  timeout,
		onEvict:  onEvict,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go m.reapLoop()
	return m
}

// getOrCreate resolves id to its session, creating one when id is unknown
// or empty. The returned bool reports whether a session was created.
func (m *sessionManager) getOrCreate(id string) (*Session, bool) {
	if id != "" {
		m.mu.RLock()
		s, ok := m.sessions[id]
		m.mu.RUnlock()
		if ok {
			s.Touch()
			return s, false
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if id != "" {
		if s, ok := m.sessions[id]; ok {
			s.Touch()
			return s, false
		}
	} else {
		id = uuid.New().String()
	}
	now := time.Now()
	s := &Session{
		Id:        id,
		CreatedAt: now,
		lastSeen:  now,
		State:     mcp.NewSessionState(),
	}
	m.sessions[id] = s
	return s, true
}

// get returns the session for id, or nil.
func (m *sessionManager) get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// remove drops the session without running the evict hook.
func (m *sessionManager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// len reports the number of live sessions.
func (m *sessionManager) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// close stops the reaper.
func (m *sessionManager) close() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

func (m *sessionManager) reapLoop() {
	defer close(m.done)
	interval := m.timeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.reapIdle(time.Now())
		case <-m.stop:
			return
		}
	}
}

// reapIdle evicts sessions idle past the timeout. Evict hooks run after
// the lock is released.
func (m *sessionManager) reapIdle(now time.Time) {
	var evicted []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastSeen()) > m.timeout {
			delete(m.sessions, id)
			evicted = append(evicted, s)
		}
	}
	m.mu.Unlock()

	if m.onEvict != nil {
		for _, s := range evicted {
			m.onEvict(s)
		}
	}
}
