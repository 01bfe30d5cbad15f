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
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/airsstack/airs-mcp/internal/auth"
	"github.com/airsstack/airs-mcp/internal/authz"
	"github.com/airsstack/airs-mcp/internal/server/mcp"
	"github.com/airsstack/airs-mcp/internal/server/mcp/jsonrpc"
	"github.com/airsstack/airs-mcp/internal/transport"
)

// mcpRoutes registers the MCP endpoint, the SSE stream, and its paired
// message endpoint.
func mcpRoutes(s *Server, r chi.Router) {
	r.Get("/sse", func(w http.ResponseWriter, r *http.Request) { sseHandler(s, w, r) })
	r.Post("/messages", func(w http.ResponseWriter, r *http.Request) { mcpHandler(s, w, r, true) })
	r.Post("/mcp", func(w http.ResponseWriter, r *http.Request) { mcpHandler(s, w, r, false) })
}

// writeRpcError renders a JSON-RPC error body with the given HTTP status.
func writeRpcError(w http.ResponseWriter, r *http.Request, status int, res jsonrpc.JSONRPCError) {
	render.Status(r, status)
	render.JSON(w, r, res)
}

// readBody reads the request body through the buffer pool, enforcing the
// configured size cap before any JSON parsing happens.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	limited := http.MaxBytesReader(w, r.Body, s.conf.maxBodyBytes())
	buf := s.bufferPool.Get()
	defer s.bufferPool.Put(buf)

	chunk := make([]byte, 32*1024)
	for {
		n, err := limited.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	body := make([]byte, len(buf))
	copy(body, buf)
	return body, nil
}

// mcpHandler handles all MCP messages arriving over HTTP. When viaSse is
// set the response is pushed to the session's event stream and the POST
// is acknowledged with 202, matching clients that speak the SSE pairing;
// when the session has no live stream the response is returned on the POST.
func mcpHandler(s *Server, w http.ResponseWriter, r *http.Request, viaSse bool) {
	ctx := r.Context()

	body, err := s.readBody(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			// Oversized bodies are rejected before JSON parsing.
			writeRpcError(w, r, http.StatusRequestEntityTooLarge,
				jsonrpc.NewError(jsonrpc.RequestId{}, jsonrpc.INVALID_REQUEST,
					fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), nil))
			return
		}
		writeRpcError(w, r, http.StatusBadRequest,
			jsonrpc.NewError(jsonrpc.RequestId{}, jsonrpc.PARSE_ERROR,
				fmt.Sprintf("unable to read request body: %v", err), nil))
		return
	}

	// Authentication, then method-level authorization against the method
	// in the JSON-RPC body.
	hctx := transport.NewHttpContext(r)
	scopeCtx, err := s.security.authenticate(ctx, hctx)
	if err != nil {
		s.metrics.AuthFailure.Add(ctx, 1)
		s.logger.DebugContext(ctx, "authentication rejected", "error", err)
		s.security.challenge(w)
		writeRpcError(w, r, http.StatusUnauthorized,
			jsonrpc.NewError(jsonrpc.RequestId{}, mcp.ERR_CODE_UNAUTHORIZED,
				"authentication required", map[string]any{"kind": string(mcp.KindUnauthorized)}))
		return
	}
	if err := s.security.authorize(scopeCtx, mcpAuthRequest{body: body, path: r.URL.Path}); err != nil {
		s.metrics.AuthFailure.Add(ctx, 1)
		data := map[string]any{"kind": string(mcp.KindAuthorizationFailed)}
		var authzErr *authz.Error
		if errors.As(err, &authzErr) && authzErr.RequiredScope != "" {
			data["required_scope"] = authzErr.RequiredScope
		}
		writeRpcError(w, r, http.StatusForbidden,
			jsonrpc.NewError(jsonrpc.RequestId{}, mcp.ERR_CODE_UNAUTHORIZED, "insufficient scope", data))
		return
	}

	// Sessions are header-scoped; the same id may arrive on many
	// connections. The query form exists for the SSE message pairing.
	sessionId := r.Header.Get(SessionHeader)
	if sessionId == "" {
		sessionId = r.URL.Query().Get("sessionId")
	}
	session, _ := s.sessions.getOrCreate(sessionId)
	if scopeCtx != nil {
		session.SetSubject(scopeCtx.Subject)
	}
	w.Header().Set(SessionHeader, session.Id)

	msg, perr := jsonrpc.FromJSONBytes(body)
	if perr != nil {
		var rpcErr *jsonrpc.Error
		if !errors.As(perr, &rpcErr) {
			rpcErr = &jsonrpc.Error{Code: jsonrpc.PARSE_ERROR, Message: perr.Error()}
		}
		status := http.StatusBadRequest
		writeRpcError(w, r, status, jsonrpc.NewError(jsonrpc.RequestId{}, rpcErr.Code, rpcErr.Message, rpcErr.Data))
		return
	}

	switch typed := msg.(type) {
	case jsonrpc.JSONRPCNotification:
		s.mcpHandler.HandleNotification(ctx, typed, session.State)
		// Notifications do not expect a response.
		render.Status(r, http.StatusAccepted)
		render.JSON(w, r, struct{}{})
		return
	case jsonrpc.JSONRPCRequest:
		s.metrics.McpRequest.Add(ctx, 1)
		ctx, span := s.tracer.Start(ctx, "airs-mcp/server/mcp/dispatch",
			trace.WithAttributes(attribute.String("mcp_method", typed.Method)))
		res := s.mcpHandler.Handle(ctx, typed, session.State)
		span.End()

		if viaSse {
			// Responses for the SSE pairing ride the event stream; the
			// POST acknowledges receipt.
			if delivered := s.sse.sendToSession(session.Id, res); delivered == 0 {
				s.logger.DebugContext(ctx, "sse session not available", "session_id", session.Id)
				render.JSON(w, r, res)
				return
			}
			render.Status(r, http.StatusAccepted)
			render.JSON(w, r, struct{}{})
			return
		}
		render.JSON(w, r, res)
		return
	default:
		// Responses addressed to the server have no meaning here.
		writeRpcError(w, r, http.StatusBadRequest,
			jsonrpc.NewError(jsonrpc.RequestId{}, jsonrpc.INVALID_REQUEST,
				"unexpected message type", nil))
		return
	}
}

// sseHandler opens one subscriber stream for the request's session and
// pumps events until the client disconnects or the session is torn down.
func sseHandler(s *Server, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		_ = render.Render(w, r, newErrResponse(fmt.Errorf("unable to retrieve flusher for sse"), http.StatusInternalServerError))
		return
	}

	// SSE streams authenticate like any other request; no method-level
	// authorization runs because the stream itself carries no JSON-RPC payload.
	hctx := transport.NewHttpContext(r)
	if _, err := s.security.authenticate(ctx, hctx); err != nil {
		s.metrics.AuthFailure.Add(ctx, 1)
		s.security.challenge(w)
		_ = render.Render(w, r, newErrResponse(auth.ErrUnauthorized, http.StatusUnauthorized))
		return
	}

	sessionId := r.Header.Get(SessionHeader)
	if sessionId == "" {
		sessionId = r.URL.Query().Get("sessionId")
	}
	session, _ := s.sessions.getOrCreate(sessionId)

	sub := &sseSubscriber{
		id:         uuid.New().String(),
		sessionId:  session.Id,
		done:       make(chan struct{}),
		eventQueue: make(chan string, 100),
	}
	s.sse.add(sub)
	s.metrics.SseSession.Add(ctx, 1)
	defer func() {
		s.sse.remove(sub.id)
		s.metrics.SseSession.Add(ctx, -1)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(SessionHeader, session.Id)

	// Announce the paired message endpoint for this session.
	fmt.Fprintf(w, "event: endpoint\ndata: /messages?sessionId=%s\n\n", session.Id)
	flusher.Flush()

	heartbeat := time.NewTicker(s.conf.sseHeartbeat())
	defer heartbeat.Stop()

	clientClose := ctx.Done()
	for {
		select {
		case event := <-sub.eventQueue:
			// Only a single writer touches the stream at once.
			fmt.Fprint(w, event)
			flusher.Flush()
			session.Touch()
		case <-heartbeat.C:
			fmt.Fprint(w, formatEvent("heartbeat", []byte(`{}`)))
			flusher.Flush()
		case <-sub.done:
			s.logger.DebugContext(ctx, "sse subscriber torn down", "session_id", session.Id)
			return
		case <-clientClose:
			s.logger.DebugContext(ctx, "client disconnected", "session_id", session.Id)
			return
		}
	}
}
