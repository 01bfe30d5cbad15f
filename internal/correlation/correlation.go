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

// Package correlation matches asynchronous responses to their originating
// requests by id. A Manager owns the table of in-flight requests; each
// registered request gets a single-fulfilment waiter that resolves on
// completion, cancellation, timeout, or transport close.
package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/airsstack/airs-mcp/internal/server/mcp/jsonrpc"
)

var (
	// ErrAtCapacity is returned by Register when the in-flight table is
	// full. Callers fail fast instead of queueing.
	ErrAtCapacity = errors.New("correlation manager at capacity")

	// ErrCancelled resolves waiters whose request was cancelled.
	ErrCancelled = errors.New("request cancelled")

	// ErrClosed resolves waiters that were live when the manager shut
	// down with its transport.
	ErrClosed = errors.New("correlation manager closed")

	// ErrDuplicateId is returned by Register for an id already in flight.
	// A duplicate in-flight id is a protocol violation.
	ErrDuplicateId = errors.New("duplicate in-flight request id")
)

// TimeoutError resolves waiters whose deadline passed without a response.
type TimeoutError struct {
	TimeoutMs int64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %dms", e.TimeoutMs)
}

// Result is the outcome delivered to a waiter: the response result bytes,
// the peer's error response, or a local failure (timeout, cancel, close).
type Result struct {
	Result   json.RawMessage
	RpcError *jsonrpc.Error
	Err      error
}

// Waiter resolves exactly once with the outcome of one request.
type Waiter <-chan Result

// Await blocks until the waiter resolves or ctx is done.
func (w Waiter) Await(ctx context.Context) (Result, error) {
	select {
	case r := <-w:
		if r.Err != nil {
			return r, r.Err
		}
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// pendingRequest is one in-flight request awaiting its response.
type pendingRequest struct {
	sender    chan Result
	createdAt time.Time
	timeout   time.Duration
	// Original request data for debugging and late-response logging.
	requestData json.RawMessage
}

func (p *pendingRequest) expiredAt(now time.Time) bool {
	return now.Sub(p.createdAt) > p.timeout
}

// Config tunes a Manager.
type Config struct {
	// DefaultTimeout applies to requests registered without their own.
	DefaultTimeout time.Duration
	// Capacity bounds the number of in-flight requests; Register fails
	// with ErrAtCapacity beyond it. Zero means 256.
	Capacity int
	// SweepInterval is the cadence of the expiry sweeper. Zero means
	// DefaultTimeout / 4, floored at 10ms.
	SweepInterval time.Duration
}

// DefaultConfig returns 30s timeouts and a 256-request table.
func DefaultConfig() Config {
	return Config{DefaultTimeout: 30 * time.Second, Capacity: 256}
}

// Manager owns the in-flight request table. All methods are safe for
// concurrent use; register, complete and cancel are independent per id.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	pending map[jsonrpc.RequestId]*pendingRequest
	closed  bool

	nextId atomic.Uint64

	sweepStop chan struct{}
	sweepDone chan struct{}

	// onLateResponse is invoked (outside locks) when a response arrives
	// for an unknown id. Wired to logging by the integration layer.
	onLateResponse func(id jsonrpc.RequestId)
}

// NewManager returns a started Manager; the expiry sweeper runs until
// Close.
func NewManager(cfg Config) *Manager {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultConfig().DefaultTimeout
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = cfg.DefaultTimeout / 4
		if cfg.SweepInterval < 10*time.Millisecond {
			cfg.SweepInterval = 10 * time.Millisecond
		}
	}
	m := &Manager{
		cfg:       cfg,
		pending:   make(map[jsonrpc.RequestId]*pendingRequest),
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// SetLateResponseHook installs the late-response callback. Must be called
// before the manager is shared.
func (m *Manager) SetLateResponseHook(fn func(id jsonrpc.RequestId)) {
	m.onLateResponse = fn
}

// NextId allocates a monotonically increasing numeric request id.
func (m *Manager) NextId() jsonrpc.RequestId {
	return jsonrpc.NewNumericId(int64(m.nextId.Add(1)))
}

// Register inserts an in-flight entry for id and returns its waiter. A
// zero timeout uses the manager default. Registration fails fast with
// ErrAtCapacity when the table is full and with ErrDuplicateId when the
// id is already in flight.
func (m *Manager) Register(id jsonrpc.RequestId, requestData json.RawMessage, timeout time.Duration) (Waiter, error) {
	if timeout <= 0 {
		timeout = m.cfg.DefaultTimeout
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if len(m.pending) >= m.cfg.Capacity {
		return nil, ErrAtCapacity
	}
	if _, exists := m.pending[id]; exists {
		return nil, ErrDuplicateId
	}

	p := &pendingRequest{
		sender:      make(chan Result, 1),
		createdAt:   time.Now(),
		timeout:     timeout,
		requestData: requestData,
	}
	m.pending[id] = p
	return p.sender, nil
}

// take removes and returns the entry for id, or nil. Removal under the
// lock is what makes fulfilment single-shot: whichever of complete,
// cancel, sweep, or close takes the entry is the one that resolves it.
func (m *Manager) take(id jsonrpc.RequestId) *pendingRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[id]
	if !ok {
		return nil
	}
	delete(m.pending, id)
	return p
}

// Complete resolves the waiter for id with a success result. A response
// for an unknown id is dropped and reported through the late-response
// hook.
func (m *Manager) Complete(id jsonrpc.RequestId, result json.RawMessage) {
	p := m.take(id)
	if p == nil {
		if m.onLateResponse != nil {
			m.onLateResponse(id)
		}
		return
	}
	p.sender <- Result{Result: result}
}

// CompleteError resolves the waiter for id with the peer's error response.
func (m *Manager) CompleteError(id jsonrpc.RequestId, rpcErr *jsonrpc.Error) {
	p := m.take(id)
	if p == nil {
		if m.onLateResponse != nil {
			m.onLateResponse(id)
		}
		return
	}
	p.sender <- Result{RpcError: rpcErr, Err: rpcErr}
}

// Cancel resolves the waiter for id with ErrCancelled. Cancelling an
// unknown id is a no-op.
func (m *Manager) Cancel(id jsonrpc.RequestId) {
	if p := m.take(id); p != nil {
		p.sender <- Result{Err: ErrCancelled}
	}
}

// Len reports the number of in-flight requests.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Close resolves every live waiter with ErrClosed and stops the sweeper.
// It is idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	orphans := m.pending
	m.pending = make(map[jsonrpc.RequestId]*pendingRequest)
	m.mu.Unlock()

	close(m.sweepStop)
	<-m.sweepDone
	for _, p := range orphans {
		p.sender <- Result{Err: ErrClosed}
	}
}

func (m *Manager) sweepLoop() {
	defer close(m.sweepDone)
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweepExpired(time.Now())
		case <-m.sweepStop:
			return
		}
	}
}

// sweepExpired resolves every entry past its deadline with a
// TimeoutError. The lock is held only to collect expired entries, not to
// deliver results.
func (m *Manager) sweepExpired(now time.Time) {
	var expired []*pendingRequest
	m.mu.Lock()
	for id, p := range m.pending {
		if p.expiredAt(now) {
			delete(m.pending, id)
			expired = append(expired, p)
		}
	}
	m.mu.Unlock()

	for _, p := range expired {
		p.sender <- Result{Err: &TimeoutError{TimeoutMs: p.timeout.Milliseconds()}}
	}
}
