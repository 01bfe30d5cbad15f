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
	"testing"
	"time"
)

func TestSessionGetOrCreate(t *testing.T) {
	m := newSessionManager(time.Minute, nil)
	defer m.close()

	s1, created := m.getOrCreate("")
	if !created || s1.Id == "" {
		t.Fatalf("expected fresh session, got %+v created=%v", s1, created)
	}
	s2, created := m.getOrCreate(s1.Id)
	if created || s2 != s1 {
		t.Fatal("lookup by id did not return the same session")
	}
	// An unknown id provisions a session under that id.
	s3, created := m.getOrCreate("client-chosen")
	if !created || s3.Id != "client-chosen" {
		t.Fatalf("unexpected session: %+v", s3)
	}
	if m.len() != 2 {
		t.Fatalf("unexpected table size: %d", m.len())
	}
}

func TestSessionReapAfterIdleTimeout(t *testing.T) {
	var mu sync.Mutex
	var evicted []string
	m := newSessionManager(50*time.Millisecond, func(s *Session) {
		mu.Lock()
		evicted = append(evicted, s.Id)
		mu.Unlock()
	})
	defer m.close()

	idle, _ := m.getOrCreate("")
	busy, _ := m.getOrCreate("")

	deadline := time.Now().Add(2 * time.Second)
	for {
		busy.Touch()
		mu.Lock()
		reaped := len(evicted) > 0
		mu.Unlock()
		if reaped {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("idle session never reaped")
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if evicted[0] != idle.Id {
		t.Fatalf("wrong session reaped: %v", evicted)
	}
	if m.get(busy.Id) == nil {
		t.Fatal("active session was reaped")
	}
}

func TestConnectionLimit(t *testing.T) {
	m := newConnectionManager(2, time.Minute, nil)
	defer m.close()

	if !m.acquire() || !m.acquire() {
		t.Fatal("slots under the cap were refused")
	}
	if m.acquire() {
		t.Fatal("slot over the cap was granted")
	}
	m.release()
	if !m.acquire() {
		t.Fatal("released slot was not reusable")
	}
	if m.Live() != 2 {
		t.Fatalf("unexpected live count: %d", m.Live())
	}
}
