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
	"encoding/json"
	"fmt"
	"sync"

	"github.com/airsstack/airs-mcp/internal/server/mcp/jsonrpc"
)

// sseSubscriber is one open event stream. A session may have several
// concurrent subscribers (reconnects, multiple tabs); each gets every
// event for its session, in emission order.
type sseSubscriber struct {
	id         string
	sessionId  string
	done       chan struct{}
	eventQueue chan string
}

// sseManager manages and controls access to SSE subscriber streams,
// grouped by session for fan-out.
type sseManager struct {
	mu          sync.RWMutex
	subscribers map[string]*sseSubscriber            // by subscriber id
	bySession   map[string]map[string]*sseSubscriber // session id → subscriber id
}

func newSseManager() *sseManager {
	return &sseManager{
		subscribers: make(map[string]*sseSubscriber),
		bySession:   make(map[string]map[string]*sseSubscriber),
	}
}

func (m *sseManager) add(sub *sseSubscriber) {
	m.mu.Lock()
	m.subscribers[sub.id] = sub
	group, ok := m.bySession[sub.sessionId]
	if !ok {
		group = make(map[string]*sseSubscriber)
		m.bySession[sub.sessionId] = group
	}
	group[sub.id] = sub
	m.mu.Unlock()
}

func (m *sseManager) remove(subscriberId string) {
	m.mu.Lock()
	sub, ok := m.subscribers[subscriberId]
	if ok {
		delete(m.subscribers, subscriberId)
		if group, ok := m.bySession[sub.sessionId]; ok {
			delete(group, subscriberId)
			if len(group) == 0 {
				delete(m.bySession, sub.sessionId)
			}
		}
	}
	m.mu.Unlock()
}

// closeSession tears down every subscriber of one session.
func (m *sseManager) closeSession(sessionId string) {
	m.mu.Lock()
	group := m.bySession[sessionId]
	delete(m.bySession, sessionId)
	for id, sub := range group {
		delete(m.subscribers, id)
		close(sub.done)
	}
	m.mu.Unlock()
}

// closeAll tears down every subscriber.
func (m *sseManager) closeAll() {
	m.mu.Lock()
	for id, sub := range m.subscribers {
		delete(m.subscribers, id)
		close(sub.done)
	}
	m.bySession = make(map[string]map[string]*sseSubscriber)
	m.mu.Unlock()
}

func (m *sseManager) sessionSubscribers(sessionId string) []*sseSubscriber {
	m.mu.RLock()
	defer m.mu.RUnlock()
	group := m.bySession[sessionId]
	subs := make([]*sseSubscriber, 0, len(group))
	for _, sub := range group {
		subs = append(subs, sub)
	}
	return subs
}

// subscriberCount reports live streams for one session.
func (m *sseManager) subscriberCount(sessionId string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bySession[sessionId])
}

// formatEvent renders one SSE frame.
func formatEvent(event string, data []byte) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)
}

// sendToSession queues one message event to every subscriber of the
// session. Subscribers with a full queue drop the event rather than
// blocking the emitter.
func (m *sseManager) sendToSession(sessionId string, msg jsonrpc.JSONRPCMessage) (delivered int) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0
	}
	event := formatEvent("message", data)
	for _, sub := range m.sessionSubscribers(sessionId) {
		select {
		case sub.eventQueue <- event:
			delivered++
		case <-sub.done:
		default:
		}
	}
	return delivered
}

// notifySession emits a server-initiated notification to one session.
func (m *sseManager) notifySession(sessionId, method string, params any) int {
	raw, err := json.Marshal(params)
	if err != nil {
		return 0
	}
	return m.sendToSession(sessionId, jsonrpc.NewNotification(method, raw))
}

// notifyAll emits a notification to every session with live subscribers.
func (m *sseManager) notifyAll(method string, params any) {
	m.mu.RLock()
	sessionIds := make([]string, 0, len(m.bySession))
	for id := range m.bySession {
		sessionIds = append(sessionIds, id)
	}
	m.mu.RUnlock()
	for _, id := range sessionIds {
		m.notifySession(id, method, params)
	}
}
