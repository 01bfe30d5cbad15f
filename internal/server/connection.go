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
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/render"
)

// connectionManager caps the number of live connections. Requests beyond
// the cap are rejected with 503 rather than queued.
type connectionManager struct {
	mu     sync.Mutex
	live   int
	max    int
	peak   int
	stop   chan struct{}
	once   sync.Once
	onTick func(live int)
}

// newConnectionManager returns a manager capping live connections at max
// (zero means 1024) and reporting the live count every healthInterval.
func newConnectionManager(max int, healthInterval time.Duration, onTick func(live int)) *connectionManager {
	if max <= 0 {
		max = 1024
	}
	if healthInterval <= 0 {
		healthInterval = 30 * time.Second
	}
	m := &connectionManager{max: max, stop: make(chan struct{}), onTick: onTick}
	go func() {
		ticker := time.NewTicker(healthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if m.onTick != nil {
					m.onTick(m.Live())
				}
			case <-m.stop:
				return
			}
		}
	}()
	return m
}

// acquire claims one connection slot, failing when the cap is reached.
func (m *connectionManager) acquire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live >= m.max {
		return false
	}
	m.live++
	if m.live > m.peak {
		m.peak = m.live
	}
	return true
}

// release returns one connection slot.
func (m *connectionManager) release() {
	m.mu.Lock()
	if m.live > 0 {
		m.live--
	}
	m.mu.Unlock()
}

// Live reports the number of claimed slots.
func (m *connectionManager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// close stops the health ticker.
func (m *connectionManager) close() {
	m.once.Do(func() { close(m.stop) })
}

// limit is the chi middleware enforcing the cap.
func (m *connectionManager) limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.acquire() {
			_ = render.Render(w, r, newErrResponse(
				fmt.Errorf("connection limit of %d reached", m.max),
				http.StatusServiceUnavailable,
			))
			return
		}
		defer m.release()
		next.ServeHTTP(w, r)
	})
}
