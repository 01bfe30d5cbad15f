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

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/airsstack/airs-mcp/internal/server/mcp/jsonrpc"
)

type fakeToolProvider struct {
	callErr error
}

func (p *fakeToolProvider) ListTools(ctx context.Context) ([]Tool, error) {
	return []Tool{{Name: "add", InputSchema: json.RawMessage(`{"type":"object"}`)}}, nil
}

func (p *fakeToolProvider) CallTool(ctx context.Context, name string, args map[string]any) ([]Content, error) {
	if p.callErr != nil {
		return nil, p.callErr
	}
	if name != "add" {
		return nil, &McpError{Kind: KindResourceNotFound, Message: "no such tool"}
	}
	a, _ := args["a"].(float64)
	b, _ := args["b"].(float64)
	return []Content{NewTextContent(fmt.Sprintf("result: %g", a+b))}, nil
}

type fakeResourceProvider struct{}

func (fakeResourceProvider) ListResources(ctx context.Context) ([]Resource, error) {
	return []Resource{{Uri: "file:///tmp/a.txt", Name: "a"}}, nil
}

func (fakeResourceProvider) ReadResource(ctx context.Context, uri Uri) ([]Content, error) {
	if uri != "file:///tmp/a.txt" {
		return nil, NewResourceNotFoundError(uri.String())
	}
	return []Content{NewTextContent("hello")}, nil
}

func (fakeResourceProvider) Subscribe(ctx context.Context, uri Uri) error   { return nil }
func (fakeResourceProvider) Unsubscribe(ctx context.Context, uri Uri) error { return nil }

func newRequest(t *testing.T, method string, params any, id int64) jsonrpc.JSONRPCRequest {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("unexpected error marshaling params: %s", err)
		}
		raw = b
	}
	return jsonrpc.NewRequest(method, raw, jsonrpc.NewNumericId(id))
}

func initializedState(t *testing.T, h *Handler) *SessionState {
	t.Helper()
	state := NewSessionState()
	res := h.Handle(context.Background(), newRequest(t, MethodInitialize, InitializeParams{
		ProtocolVersion: LATEST_PROTOCOL_VERSION,
	}, 1), state)
	if _, ok := res.(jsonrpc.JSONRPCResponse); !ok {
		t.Fatalf("initialize failed: %+v", res)
	}
	return state
}

func TestInitializeRoundTrip(t *testing.T) {
	h := NewHandler("0.1.0").
		WithServerInfo(Implementation{Name: "test", Version: "0.1.0"}).
		WithToolProvider(&fakeToolProvider{}).
		Build()
	state := NewSessionState()

	res := h.Handle(context.Background(), newRequest(t, MethodInitialize, InitializeParams{
		ProtocolVersion: "2024-11-05",
	}, 1), state)

	resp, ok := res.(jsonrpc.JSONRPCResponse)
	if !ok {
		t.Fatalf("expected success response, got %T: %+v", res, res)
	}
	var result InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unexpected error decoding result: %s", err)
	}
	if result.ProtocolVersion != "2024-11-05" {
		t.Fatalf("unexpected protocol version: %s", result.ProtocolVersion)
	}
	if result.ServerInfo.Name != "test" || result.ServerInfo.Version != "0.1.0" {
		t.Fatalf("unexpected server info: %+v", result.ServerInfo)
	}
	if result.Capabilities.Tools == nil {
		t.Fatal("expected tools capability to be advertised")
	}
	if result.Capabilities.Resources != nil {
		t.Fatal("resources capability advertised with no provider bound")
	}
	if !state.Initialized() {
		t.Fatal("session not marked initialized")
	}
}

func TestInitializeVersionMismatch(t *testing.T) {
	h := NewHandler("0.1.0").Build()
	state := NewSessionState()

	res := h.Handle(context.Background(), newRequest(t, MethodInitialize, InitializeParams{
		ProtocolVersion: "1999-01-01",
	}, 1), state)

	errResp, ok := res.(jsonrpc.JSONRPCError)
	if !ok {
		t.Fatalf("expected error response, got %T", res)
	}
	data := errResp.Error.Data.(map[string]any)
	if data["kind"] != string(KindVersionMismatch) {
		t.Fatalf("unexpected discriminant: %v", data["kind"])
	}
	if state.Initialized() {
		t.Fatal("session must not initialize on version mismatch")
	}
}

func TestInitializeGating(t *testing.T) {
	h := NewHandler("0.1.0").WithToolProvider(&fakeToolProvider{}).Build()
	state := NewSessionState()

	// ping is allowed before initialize.
	res := h.Handle(context.Background(), newRequest(t, MethodPing, nil, 1), state)
	if _, ok := res.(jsonrpc.JSONRPCResponse); !ok {
		t.Fatalf("ping before initialize must succeed, got %+v", res)
	}

	// everything else is rejected with NotInitialized.
	res = h.Handle(context.Background(), newRequest(t, MethodToolsList, nil, 2), state)
	errResp, ok := res.(jsonrpc.JSONRPCError)
	if !ok {
		t.Fatalf("expected error response, got %T", res)
	}
	if errResp.Error.Code != jsonrpc.INVALID_REQUEST {
		t.Fatalf("unexpected code: %d", errResp.Error.Code)
	}
	data := errResp.Error.Data.(map[string]any)
	if data["reason"] != string(KindNotInitialized) {
		t.Fatalf("unexpected discriminant: %v", data["reason"])
	}
}

func TestToolsCall(t *testing.T) {
	h := NewHandler("0.1.0").WithToolProvider(&fakeToolProvider{}).Build()
	state := initializedState(t, h)

	res := h.Handle(context.Background(), newRequest(t, MethodToolsCall, CallToolParams{
		Name:      "add",
		Arguments: map[string]any{"a": 2.0, "b": 3.0},
	}, 3), state)

	resp, ok := res.(jsonrpc.JSONRPCResponse)
	if !ok {
		t.Fatalf("expected success response, got %T: %+v", res, res)
	}
	var result CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unexpected error decoding result: %s", err)
	}
	if result.IsError {
		t.Fatal("unexpected isError")
	}
	if len(result.Content) != 1 || result.Content[0].Text != "result: 5" {
		t.Fatalf("unexpected content: %+v", result.Content)
	}
}

func TestToolsCallFailureIsToolLevel(t *testing.T) {
	h := NewHandler("0.1.0").
		WithToolProvider(&fakeToolProvider{callErr: fmt.Errorf("boom")}).
		Build()
	state := initializedState(t, h)

	res := h.Handle(context.Background(), newRequest(t, MethodToolsCall, CallToolParams{Name: "add"}, 4), state)
	resp, ok := res.(jsonrpc.JSONRPCResponse)
	if !ok {
		t.Fatalf("tool failure must be a result, got %T", res)
	}
	var result CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unexpected error decoding result: %s", err)
	}
	if !result.IsError {
		t.Fatal("expected isError result")
	}
}

func TestResourcesReadNotFound(t *testing.T) {
	h := NewHandler("0.1.0").WithResourceProvider(fakeResourceProvider{}).Build()
	state := initializedState(t, h)

	res := h.Handle(context.Background(), newRequest(t, MethodResourcesRead, ReadResourceParams{
		Uri: "file:///missing",
	}, 5), state)

	errResp, ok := res.(jsonrpc.JSONRPCError)
	if !ok {
		t.Fatalf("expected error response, got %T", res)
	}
	if errResp.Error.Code != ERR_CODE_NOT_FOUND {
		t.Fatalf("unexpected code: %d", errResp.Error.Code)
	}
}

func TestAbsentProviderIsMethodNotFound(t *testing.T) {
	h := NewHandler("0.1.0").Build()
	state := initializedState(t, h)

	for _, method := range []string{
		MethodResourcesList, MethodToolsList, MethodPromptsList, MethodLoggingSetLevel, "no/such/method",
	} {
		res := h.Handle(context.Background(), newRequest(t, method, nil, 6), state)
		errResp, ok := res.(jsonrpc.JSONRPCError)
		if !ok {
			t.Fatalf("%s: expected error response, got %T", method, res)
		}
		if errResp.Error.Code != jsonrpc.METHOD_NOT_FOUND {
			t.Fatalf("%s: unexpected code %d", method, errResp.Error.Code)
		}
	}
}
