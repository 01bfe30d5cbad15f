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

// Package server glues the MCP request handler to its transports: the
// chi-routed HTTP surface with SSE streaming, sessions and security, and
// the single-session stdio loop.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	logLib "github.com/airsstack/airs-mcp/internal/log"
	"github.com/airsstack/airs-mcp/internal/server/mcp"
	"github.com/airsstack/airs-mcp/internal/server/mcp/jsonrpc"
	"github.com/airsstack/airs-mcp/internal/transport"
	"github.com/airsstack/airs-mcp/internal/transport/stdio"
)

// Server contains info for running an instance of the MCP server. Should
// be instantiated with NewServer().
type Server struct {
	conf    ServerConfig
	root    chi.Router
	logger  logLib.Logger
	metrics *ServerMetrics
	tracer  trace.Tracer

	security    *securityPipeline
	sessions    *sessionManager
	connections *connectionManager
	sse         *sseManager
	engine      HttpEngine
	bufferPool  *BufferPool
	mcpHandler  *mcp.Handler

	mu    sync.Mutex
	stdio *stdio.Transport
}

// NewServer returns a Server dispatching to the given MCP handler.
func NewServer(cfg ServerConfig, handler *mcp.Handler, log logLib.Logger) (*Server, error) {
	metrics, err := CreateCustomMetrics(cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("unable to create custom metrics: %w", err)
	}

	security, err := newSecurityPipeline(cfg.Security, log)
	if err != nil {
		return nil, fmt.Errorf("unable to build security pipeline: %w", err)
	}

	s := &Server{
		conf:       cfg,
		logger:     log,
		metrics:    metrics,
		tracer:     otel.Tracer(InstrumentationName, trace.WithInstrumentationVersion(cfg.Version)),
		security:   security,
		sse:        newSseManager(),
		engine:     NewChiEngine(),
		bufferPool: NewBufferPool(64, 64*1024),
		mcpHandler: handler,
	}
	s.sessions = newSessionManager(cfg.SessionTimeout, s.evictSession)
	s.connections = newConnectionManager(cfg.MaxConnections, cfg.HealthCheckInterval, func(live int) {
		s.logger.Debug(fmt.Sprintf("connection health: %d live", live))
	})
	handler.SetNotifier(s)

	logLevel, err := logLib.SeverityToLevel(cfg.LogLevel.String())
	if err != nil {
		return nil, fmt.Errorf("unable to initialize http log: %w", err)
	}
	var httpOpts httplog.Options
	switch cfg.LoggingFormat.String() {
	case "json":
		httpOpts = httplog.Options{
			JSON:             true,
			LogLevel:         logLevel,
			Concise:          true,
			RequestHeaders:   true,
			MessageFieldName: "message",
		}
	default:
		httpOpts = httplog.Options{
			LogLevel:         logLevel,
			Concise:          true,
			RequestHeaders:   true,
			MessageFieldName: "message",
		}
	}
	httpLogger := httplog.NewLogger("httplog", httpOpts)

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(httpLogger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", SessionHeader, "MCP-Protocol-Version"},
		ExposedHeaders: []string{SessionHeader},
	}))
	r.Use(s.connections.limit)

	// Liveness and discovery endpoints bypass authentication.
	r.Get("/health", healthHandler(s))
	r.Get("/.well-known/oauth-protected-resource", oauthMetadataHandler(s))

	mcpRoutes(s, r)

	s.root = r
	return s, nil
}

// Router exposes the assembled handler, mainly for tests.
func (s *Server) Router() http.Handler { return s.root }

// Listen binds the engine's listener for the configured address.
func (s *Server) Listen(ctx context.Context) (net.Addr, error) {
	if err := s.engine.Bind(ctx, s.conf.Address, s.conf.Port); err != nil {
		return nil, err
	}
	return s.engine.Addr(), nil
}

// Serve runs the HTTP engine until Shutdown. It blocks.
func (s *Server) Serve() error {
	s.logger.Info(fmt.Sprintf("serving MCP over %s engine", s.engine.Type()))
	return s.engine.Start(s.root)
}

// Shutdown stops the engine, tears down streams and sessions, and
// releases security resources. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.engine.Shutdown(ctx)
	s.sse.closeAll()
	s.sessions.close()
	s.connections.close()
	s.security.shutdown()

	s.mu.Lock()
	st := s.stdio
	s.mu.Unlock()
	if st != nil {
		if cerr := st.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// ReplaceApiKeys applies a hot-reloaded key table.
func (s *Server) ReplaceApiKeys(entries []ApiKeyEntry) {
	s.security.ReplaceApiKeys(entries)
	s.logger.Info(fmt.Sprintf("reloaded %d api keys", len(entries)))
}

// evictSession runs when a session idles out: its SSE subscribers are
// torn down and the eviction is counted.
func (s *Server) evictSession(session *Session) {
	s.sse.closeSession(session.Id)
	s.metrics.SessionEvict.Add(context.Background(), 1)
	s.logger.Debug(fmt.Sprintf("session %s reaped after idle timeout", session.Id))
}

// Notify implements mcp.Notifier: server-initiated notifications reach
// the single stdio peer when serving stdio, and every SSE session
// otherwise.
func (s *Server) Notify(method string, params any) {
	s.mu.Lock()
	st := s.stdio
	s.mu.Unlock()

	if st != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return
		}
		_ = st.Send(context.Background(), jsonrpc.NewNotification(method, raw))
		return
	}
	s.sse.notifyAll(method, params)
}

// ServeStdio runs the single-session stdio loop until the peer closes
// the stream or ctx is cancelled. The configured logger must not write
// to stdout.
func (s *Server) ServeStdio(ctx context.Context) error {
	tr := stdio.New(stdio.Config{MaxMessageSize: int(s.conf.maxBodyBytes())}, s.logger)
	return s.serveStdioTransport(ctx, tr)
}

func (s *Server) serveStdioTransport(ctx context.Context, tr *stdio.Transport) error {
	s.mu.Lock()
	s.stdio = tr
	s.mu.Unlock()

	done := make(chan struct{})
	h := &stdioHandler{server: s, transport: tr, state: mcp.NewSessionState(), done: done}
	if err := tr.SetMessageHandler(h); err != nil {
		return err
	}
	if err := tr.Start(ctx); err != nil {
		return err
	}
	s.logger.Info("serving MCP over stdio")

	select {
	case <-ctx.Done():
		return tr.Close(context.Background())
	case <-done:
		return nil
	}
}

// stdioHandler adapts the MCP handler to the stdio transport's single
// implicit session.
type stdioHandler struct {
	server    *Server
	transport *stdio.Transport
	state     *mcp.SessionState
	done      chan struct{}
	closeOnce sync.Once
}

func (h *stdioHandler) HandleMessage(ctx context.Context, msg jsonrpc.JSONRPCMessage, mctx transport.MessageContext[transport.NoContext]) {
	switch typed := msg.(type) {
	case jsonrpc.JSONRPCRequest:
		h.server.metrics.McpRequest.Add(ctx, 1)
		res := h.server.mcpHandler.Handle(ctx, typed, h.state)
		if err := h.transport.Send(ctx, res); err != nil {
			h.server.logger.ErrorContext(ctx, "unable to send response", "error", err)
		}
	case jsonrpc.JSONRPCNotification:
		h.server.mcpHandler.HandleNotification(ctx, typed, h.state)
	default:
		// Responses addressed to a server have no meaning on stdio.
		h.server.logger.DebugContext(ctx, "dropping unexpected message type")
	}
}

func (h *stdioHandler) HandleError(ctx context.Context, err error) {
	h.server.logger.WarnContext(ctx, "transport error", "error", err)
}

func (h *stdioHandler) HandleClose(ctx context.Context) {
	h.closeOnce.Do(func() { close(h.done) })
}
