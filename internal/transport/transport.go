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

// Package transport defines the event-driven substrate every MCP transport
// implements: a Transport that moves framed JSON-RPC messages, and a
// MessageHandler the transport delivers inbound traffic to. The handler is
// generic over a per-transport context type so stdio (no context) and HTTP
// (request metadata) share one contract.
package transport

import (
	"context"

	"github.com/airsstack/airs-mcp/internal/server/mcp/jsonrpc"
)

// MessageContext carries per-message metadata to the handler. SessionId
// identifies the logical peer; Data is transport-specific (NoContext for
// stdio, HttpContext for HTTP).
type MessageContext[T any] struct {
	SessionId string
	Data      T
}

// NoContext is the context type of transports with nothing to add.
type NoContext = struct{}

// MessageHandler consumes transport events. Within one session, messages
// arrive in arrival order; a handler that processes them concurrently must
// preserve the request↔response id mapping but need not preserve response
// ordering.
type MessageHandler[T any] interface {
	// HandleMessage is called for each inbound framed message.
	HandleMessage(ctx context.Context, msg jsonrpc.JSONRPCMessage, mctx MessageContext[T])
	// HandleError is called for transport-level failures that do not end
	// the stream, e.g. one malformed frame.
	HandleError(ctx context.Context, err error)
	// HandleClose is called exactly once when the transport (or a session
	// on a multi-session transport) shuts down.
	HandleClose(ctx context.Context)
}

// Transport is a bidirectional message stream. Start begins background
// I/O and returns promptly; Send fails with ErrClosed after Close; Close
// is idempotent. The message handler may be replaced before Start but not
// after.
type Transport[T any] interface {
	Start(ctx context.Context) error
	Close(ctx context.Context) error
	Send(ctx context.Context, msg jsonrpc.JSONRPCMessage) error
	SetMessageHandler(h MessageHandler[T]) error
	// SessionId returns the transport's session identifier, or "" when
	// the transport has no single session (multi-session HTTP).
	SessionId() string
	IsConnected() bool
	TransportType() string
}
