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

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/airsstack/airs-mcp/internal/correlation"
	"github.com/airsstack/airs-mcp/internal/log"
	"github.com/airsstack/airs-mcp/internal/server/mcp"
	"github.com/airsstack/airs-mcp/internal/server/mcp/jsonrpc"
	"github.com/airsstack/airs-mcp/internal/transport"
	"github.com/airsstack/airs-mcp/internal/transport/stdio"
)

type addToolProvider struct{}

func (addToolProvider) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return []mcp.Tool{{Name: "add", InputSchema: json.RawMessage(`{"type":"object"}`)}}, nil
}

func (addToolProvider) CallTool(ctx context.Context, name string, args map[string]any) ([]mcp.Content, error) {
	a, _ := args["a"].(float64)
	b, _ := args["b"].(float64)
	return []mcp.Content{mcp.NewTextContent(fmt.Sprintf("%g", a+b))}, nil
}

func discardLogger(t *testing.T) log.Logger {
	t.Helper()
	logger, err := log.NewStdLogger(io.Discard, io.Discard, "error")
	if err != nil {
		t.Fatalf("unexpected error building logger: %s", err)
	}
	return logger
}

// serverHandler answers requests through a real MCP handler over the
// server half of the pipe pair.
type serverHandler struct {
	handler *mcp.Handler
	state   *mcp.SessionState
	tr      *stdio.Transport
}

func (h *serverHandler) HandleMessage(ctx context.Context, msg jsonrpc.JSONRPCMessage, mctx transport.MessageContext[transport.NoContext]) {
	if req, ok := msg.(jsonrpc.JSONRPCRequest); ok {
		_ = h.tr.Send(ctx, h.handler.Handle(ctx, req, h.state))
	}
}

func (h *serverHandler) HandleError(context.Context, error) {}
func (h *serverHandler) HandleClose(context.Context)       {}

// pipePair wires a client transport to an in-process server loop.
func pipePair(t *testing.T, respond bool) *Client {
	t.Helper()
	logger := discardLogger(t)

	c2sReader, c2sWriter := io.Pipe()
	s2cReader, s2cWriter := io.Pipe()
	t.Cleanup(func() {
		c2sWriter.Close()
		s2cWriter.Close()
	})

	serverTr := stdio.NewWithStreams(stdio.DefaultConfig(), logger, c2sReader, s2cWriter)
	if respond {
		h := &serverHandler{
			handler: mcp.NewHandler("0.1.0").
				WithServerInfo(mcp.Implementation{Name: "pipe-server", Version: "0.1.0"}).
				WithToolProvider(addToolProvider{}).
				Build(),
			state: mcp.NewSessionState(),
			tr:    serverTr,
		}
		if err := serverTr.SetMessageHandler(h); err != nil {
			t.Fatalf("unexpected error setting server handler: %s", err)
		}
	} else {
		// A server that swallows every request.
		if err := serverTr.SetMessageHandler(silentHandler{}); err != nil {
			t.Fatalf("unexpected error setting server handler: %s", err)
		}
	}
	if err := serverTr.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error starting server transport: %s", err)
	}
	t.Cleanup(func() { serverTr.Close(context.Background()) })

	clientTr := stdio.NewWithStreams(stdio.DefaultConfig(), logger, s2cReader, c2sWriter)
	c, err := NewStdioClient(context.Background(), Config{
		ClientInfo:     mcp.Implementation{Name: "pipe-client", Version: "0.1.0"},
		RequestTimeout: 2 * time.Second,
	}, logger, clientTr)
	if err != nil {
		t.Fatalf("unexpected error building client: %s", err)
	}
	t.Cleanup(func() { c.Close(context.Background()) })
	return c
}

type silentHandler struct{}

func (silentHandler) HandleMessage(context.Context, jsonrpc.JSONRPCMessage, transport.MessageContext[transport.NoContext]) {
}
func (silentHandler) HandleError(context.Context, error) {}
func (silentHandler) HandleClose(context.Context)        {}

func TestClientInitializeAndCall(t *testing.T) {
	c := pipePair(t, true)
	ctx := context.Background()

	result, err := c.Initialize(ctx)
	if err != nil {
		t.Fatalf("unexpected error initializing: %s", err)
	}
	if result.ServerInfo.Name != "pipe-server" {
		t.Fatalf("unexpected server info: %+v", result.ServerInfo)
	}
	if result.Capabilities.Tools == nil {
		t.Fatal("tools capability missing")
	}

	tools, err := c.ListTools(ctx)
	if err != nil {
		t.Fatalf("unexpected error listing tools: %s", err)
	}
	if len(tools) != 1 || tools[0].Name != "add" {
		t.Fatalf("unexpected tools: %+v", tools)
	}

	callResult, err := c.CallTool(ctx, "add", map[string]any{"a": 2.0, "b": 3.0})
	if err != nil {
		t.Fatalf("unexpected error calling tool: %s", err)
	}
	if callResult.IsError || len(callResult.Content) != 1 || callResult.Content[0].Text != "5" {
		t.Fatalf("unexpected result: %+v", callResult)
	}
}

func TestClientSurfacesServerErrors(t *testing.T) {
	c := pipePair(t, true)
	ctx := context.Background()

	// tools/list before initialize is rejected by the server's gate and
	// surfaces as a jsonrpc error.
	_, err := c.ListTools(ctx)
	var rpcErr *jsonrpc.Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *jsonrpc.Error, got %v", err)
	}
	if rpcErr.Code != jsonrpc.INVALID_REQUEST {
		t.Fatalf("unexpected code: %d", rpcErr.Code)
	}
}

func TestClientRequestTimeout(t *testing.T) {
	logger := discardLogger(t)

	c2sReader, c2sWriter := io.Pipe()
	s2cReader, s2cWriter := io.Pipe()
	t.Cleanup(func() {
		c2sWriter.Close()
		s2cWriter.Close()
	})

	serverTr := stdio.NewWithStreams(stdio.DefaultConfig(), logger, c2sReader, s2cWriter)
	_ = serverTr.SetMessageHandler(silentHandler{})
	if err := serverTr.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error starting server transport: %s", err)
	}
	t.Cleanup(func() { serverTr.Close(context.Background()) })

	clientTr := stdio.NewWithStreams(stdio.DefaultConfig(), logger, s2cReader, c2sWriter)
	c, err := NewStdioClient(context.Background(), Config{
		RequestTimeout: 50 * time.Millisecond,
	}, logger, clientTr)
	if err != nil {
		t.Fatalf("unexpected error building client: %s", err)
	}
	t.Cleanup(func() { c.Close(context.Background()) })

	start := time.Now()
	err = c.Ping(context.Background())
	elapsed := time.Since(start)

	var timeoutErr *correlation.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if timeoutErr.TimeoutMs != 50 {
		t.Fatalf("unexpected timeout value: %d", timeoutErr.TimeoutMs)
	}
	if elapsed > time.Second {
		t.Fatalf("timeout fired too late: %s", elapsed)
	}
}
