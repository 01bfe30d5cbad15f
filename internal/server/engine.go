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
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// HttpEngine runs an http.Handler. The default engine is chi on net/http;
// alternative engines plug in behind this interface without touching the
// MCP layer.
type HttpEngine interface {
	// Bind opens the listener. Must be called before Start.
	Bind(ctx context.Context, address string, port int) error
	// Addr returns the bound address, or nil before Bind.
	Addr() net.Addr
	// Start serves the handler until Shutdown. It blocks.
	Start(handler http.Handler) error
	// Shutdown stops accepting connections and drains in-flight requests.
	Shutdown(ctx context.Context) error
	// Type names the engine for logs.
	Type() string
}

// ChiEngine is the default engine: a plain net/http server fronted by the
// chi router the Server assembles.
type ChiEngine struct {
	mu       sync.Mutex
	listener net.Listener
	srv      *http.Server
}

// NewChiEngine returns an unbound engine.
func NewChiEngine() *ChiEngine { return &ChiEngine{} }

// Bind implements HttpEngine.
func (e *ChiEngine) Bind(ctx context.Context, address string, port int) error {
	addr := net.JoinHostPort(address, strconv.Itoa(port))
	lc := net.ListenConfig{KeepAlive: 30 * time.Second}
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to open listener for %q: %w", addr, err)
	}
	e.mu.Lock()
	e.listener = l
	e.mu.Unlock()
	return nil
}

// Addr implements HttpEngine.
func (e *ChiEngine) Addr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener == nil {
		return nil
	}
	return e.listener.Addr()
}

// Start implements HttpEngine.
func (e *ChiEngine) Start(handler http.Handler) error {
	e.mu.Lock()
	if e.listener == nil {
		e.mu.Unlock()
		return fmt.Errorf("engine is not bound")
	}
	e.srv = &http.Server{Handler: handler}
	srv, l := e.srv, e.listener
	e.mu.Unlock()

	if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown implements HttpEngine.
func (e *ChiEngine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	srv := e.srv
	e.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Type implements HttpEngine.
func (e *ChiEngine) Type() string { return "chi" }

var _ HttpEngine = (*ChiEngine)(nil)
