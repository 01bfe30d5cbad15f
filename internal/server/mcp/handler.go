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
	"slices"
	"sync/atomic"

	"github.com/airsstack/airs-mcp/internal/server/mcp/jsonrpc"
)

// SessionState tracks per-session MCP protocol state. One exists per HTTP
// session and exactly one for the lifetime of a stdio transport.
type SessionState struct {
	initialized     atomic.Bool
	protocolVersion atomic.Pointer[string]
}

// NewSessionState returns a fresh, uninitialized session state.
func NewSessionState() *SessionState { return &SessionState{} }

// Initialized reports whether the session completed initialize.
func (s *SessionState) Initialized() bool { return s.initialized.Load() }

// ProtocolVersion returns the version negotiated at initialize, or the
// empty string before that.
func (s *SessionState) ProtocolVersion() string {
	if v := s.protocolVersion.Load(); v != nil {
		return *v
	}
	return ""
}

// Handler routes decoded MCP requests to capability providers and produces
// protocol-compliant responses and errors. Providers are fixed at build
// time; a nil provider means the capability is absent, its methods return
// METHOD_NOT_FOUND, and initialize omits it.
type Handler struct {
	serverInfo   Implementation
	instructions string

	resources ResourceProvider
	tools     ToolProvider
	prompts   PromptProvider
	logging   LoggingHandler

	notifier Notifier
}

// HandlerBuilder assembles a Handler. Each With method binds one provider;
// Build resolves the capability set from what was bound.
type HandlerBuilder struct {
	h Handler
}

// NewHandler starts building a Handler advertising the given server version.
func NewHandler(version string) *HandlerBuilder {
	return &HandlerBuilder{h: Handler{
		serverInfo: Implementation{Name: SERVER_NAME, Version: version},
		notifier:   discardNotifier{},
	}}
}

// WithServerInfo overrides the advertised implementation name and version.
func (b *HandlerBuilder) WithServerInfo(info Implementation) *HandlerBuilder {
	b.h.serverInfo = info
	return b
}

// WithInstructions sets the instructions string returned from initialize.
func (b *HandlerBuilder) WithInstructions(s string) *HandlerBuilder {
	b.h.instructions = s
	return b
}

// WithResourceProvider binds the resources capability.
func (b *HandlerBuilder) WithResourceProvider(p ResourceProvider) *HandlerBuilder {
	b.h.resources = p
	return b
}

// WithToolProvider binds the tools capability.
func (b *HandlerBuilder) WithToolProvider(p ToolProvider) *HandlerBuilder {
	b.h.tools = p
	return b
}

// WithPromptProvider binds the prompts capability.
func (b *HandlerBuilder) WithPromptProvider(p PromptProvider) *HandlerBuilder {
	b.h.prompts = p
	return b
}

// WithLoggingHandler binds the logging capability.
func (b *HandlerBuilder) WithLoggingHandler(p LoggingHandler) *HandlerBuilder {
	b.h.logging = p
	return b
}

// WithNotifier binds the transport-side notification sink.
func (b *HandlerBuilder) WithNotifier(n Notifier) *HandlerBuilder {
	if n != nil {
		b.h.notifier = n
	}
	return b
}

// Build returns the assembled handler.
func (b *HandlerBuilder) Build() *Handler {
	h := b.h
	return &h
}

// SetNotifier replaces the notification sink. Intended for transport glue
// that is constructed after the handler.
func (h *Handler) SetNotifier(n Notifier) {
	if n != nil {
		h.notifier = n
	}
}

// capabilities derives the advertised capability set from bound providers.
func (h *Handler) capabilities() ServerCapabilities {
	var caps ServerCapabilities
	enabled := true
	if h.resources != nil {
		caps.Resources = &ResourcesCapability{Subscribe: &enabled, ListChanged: &enabled}
	}
	if h.tools != nil {
		caps.Tools = &ListChanged{ListChanged: &enabled}
	}
	if h.prompts != nil {
		caps.Prompts = &ListChanged{ListChanged: &enabled}
	}
	if h.logging != nil {
		caps.Logging = &struct{}{}
	}
	return caps
}

// ResourcesChanged emits notifications/resources/list_changed.
func (h *Handler) ResourcesChanged() { h.notifier.Notify(NotifyResourcesListChanged, struct{}{}) }

// ToolsChanged emits notifications/tools/list_changed.
func (h *Handler) ToolsChanged() { h.notifier.Notify(NotifyToolsListChanged, struct{}{}) }

// PromptsChanged emits notifications/prompts/list_changed.
func (h *Handler) PromptsChanged() { h.notifier.Notify(NotifyPromptsListChanged, struct{}{}) }

// HandleNotification processes a client notification. Notifications never
// produce a response; notifications/initialized acknowledges the
// handshake and nothing else is tracked yet.
func (h *Handler) HandleNotification(ctx context.Context, n jsonrpc.JSONRPCNotification, state *SessionState) {
}

// Handle dispatches one MCP request and returns its response. Methods other
// than initialize and ping are rejected until the session initializes.
func (h *Handler) Handle(ctx context.Context, req jsonrpc.JSONRPCRequest, state *SessionState) jsonrpc.JSONRPCMessage {
	if !state.Initialized() && req.Method != MethodInitialize && req.Method != MethodPing {
		return NewNotInitializedError(req.Method).JSONRPC(req.Id)
	}

	switch req.Method {
	case MethodInitialize:
		return h.handleInitialize(req, state)
	case MethodPing:
		return respond(req.Id, EmptyResult{})
	case MethodResourcesList:
		if h.resources == nil {
			return methodNotFound(req)
		}
		resources, err := h.resources.ListResources(ctx)
		if err != nil {
			return providerError(req.Id, err)
		}
		if resources == nil {
			resources = []Resource{}
		}
		return respond(req.Id, ListResourcesResult{Resources: resources})
	case MethodResourcesTemplates:
		tp, ok := h.resources.(ResourceTemplateProvider)
		if h.resources == nil || !ok {
			return methodNotFound(req)
		}
		templates, err := tp.ListResourceTemplates(ctx)
		if err != nil {
			return providerError(req.Id, err)
		}
		if templates == nil {
			templates = []ResourceTemplate{}
		}
		return respond(req.Id, ListResourceTemplatesResult{ResourceTemplates: templates})
	case MethodResourcesRead:
		if h.resources == nil {
			return methodNotFound(req)
		}
		var params ReadResourceParams
		if err := unmarshalParams(req.Params, &params); err != nil {
			return invalidParams(req.Id, err)
		}
		uri, err := NewUri(params.Uri)
		if err != nil {
			return err.(*InvalidUriError).Mcp().JSONRPC(req.Id)
		}
		contents, err := h.resources.ReadResource(ctx, uri)
		if err != nil {
			return providerError(req.Id, err)
		}
		return respond(req.Id, ReadResourceResult{Contents: contents})
	case MethodResourcesSubscribe, MethodResourcesUnsubscribe:
		if h.resources == nil {
			return methodNotFound(req)
		}
		var params SubscribeParams
		if err := unmarshalParams(req.Params, &params); err != nil {
			return invalidParams(req.Id, err)
		}
		uri, err := NewUri(params.Uri)
		if err != nil {
			return err.(*InvalidUriError).Mcp().JSONRPC(req.Id)
		}
		if req.Method == MethodResourcesSubscribe {
			err = h.resources.Subscribe(ctx, uri)
		} else {
			err = h.resources.Unsubscribe(ctx, uri)
		}
		if err != nil {
			return providerError(req.Id, err)
		}
		return respond(req.Id, EmptyResult{})
	case MethodToolsList:
		if h.tools == nil {
			return methodNotFound(req)
		}
		tools, err := h.tools.ListTools(ctx)
		if err != nil {
			return providerError(req.Id, err)
		}
		if tools == nil {
			tools = []Tool{}
		}
		return respond(req.Id, ListToolsResult{Tools: tools})
	case MethodToolsCall:
		if h.tools == nil {
			return methodNotFound(req)
		}
		var params CallToolParams
		if err := unmarshalParams(req.Params, &params); err != nil {
			return invalidParams(req.Id, err)
		}
		if params.Name == "" {
			return invalidParams(req.Id, fmt.Errorf("missing tool name"))
		}
		content, err := h.tools.CallTool(ctx, params.Name, params.Arguments)
		if err != nil {
			// Tool failures are results, not protocol errors, unless the
			// provider raised a domain error.
			if mcpErr, ok := err.(*McpError); ok {
				return mcpErr.JSONRPC(req.Id)
			}
			return respond(req.Id, CallToolResult{
				Content: []Content{NewTextContent(err.Error())},
				IsError: true,
			})
		}
		if content == nil {
			content = []Content{}
		}
		return respond(req.Id, CallToolResult{Content: content, IsError: false})
	case MethodPromptsList:
		if h.prompts == nil {
			return methodNotFound(req)
		}
		prompts, err := h.prompts.ListPrompts(ctx)
		if err != nil {
			return providerError(req.Id, err)
		}
		if prompts == nil {
			prompts = []Prompt{}
		}
		return respond(req.Id, ListPromptsResult{Prompts: prompts})
	case MethodPromptsGet:
		if h.prompts == nil {
			return methodNotFound(req)
		}
		var params GetPromptParams
		if err := unmarshalParams(req.Params, &params); err != nil {
			return invalidParams(req.Id, err)
		}
		if params.Name == "" {
			return invalidParams(req.Id, fmt.Errorf("missing prompt name"))
		}
		result, err := h.prompts.GetPrompt(ctx, params.Name, params.Arguments)
		if err != nil {
			return providerError(req.Id, err)
		}
		return respond(req.Id, result)
	case MethodLoggingSetLevel:
		if h.logging == nil {
			return methodNotFound(req)
		}
		var params SetLevelParams
		if err := unmarshalParams(req.Params, &params); err != nil {
			return invalidParams(req.Id, err)
		}
		if !params.Level.IsValid() {
			return invalidParams(req.Id, fmt.Errorf("invalid logging level %q", params.Level))
		}
		if err := h.logging.SetLevel(ctx, params.Level); err != nil {
			return providerError(req.Id, err)
		}
		return respond(req.Id, EmptyResult{})
	default:
		return methodNotFound(req)
	}
}

func (h *Handler) handleInitialize(req jsonrpc.JSONRPCRequest, state *SessionState) jsonrpc.JSONRPCMessage {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return invalidParams(req.Id, fmt.Errorf("invalid params: %w", err))
		}
	}
	// A client that offers no version gets the newest one the server speaks.
	if params.ProtocolVersion == "" {
		params.ProtocolVersion = LATEST_PROTOCOL_VERSION
	}
	if !slices.Contains(SUPPORTED_PROTOCOL_VERSIONS, params.ProtocolVersion) {
		return NewVersionMismatchError(SUPPORTED_PROTOCOL_VERSIONS, params.ProtocolVersion).JSONRPC(req.Id)
	}

	version := params.ProtocolVersion
	state.protocolVersion.Store(&version)
	state.initialized.Store(true)

	return respond(req.Id, InitializeResult{
		ProtocolVersion: params.ProtocolVersion,
		Capabilities:    h.capabilities(),
		ServerInfo:      h.serverInfo,
		Instructions:    h.instructions,
	})
}

func unmarshalParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing params")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

func respond(id jsonrpc.RequestId, result any) jsonrpc.JSONRPCMessage {
	resp, err := jsonrpc.NewResponse(result, id)
	if err != nil {
		return jsonrpc.NewError(id, jsonrpc.INTERNAL_ERROR, err.Error(), nil)
	}
	return resp
}

func methodNotFound(req jsonrpc.JSONRPCRequest) jsonrpc.JSONRPCMessage {
	return jsonrpc.NewError(req.Id, jsonrpc.METHOD_NOT_FOUND, fmt.Sprintf("invalid method %s", req.Method), nil)
}

func invalidParams(id jsonrpc.RequestId, err error) jsonrpc.JSONRPCMessage {
	return jsonrpc.NewError(id, jsonrpc.INVALID_PARAMS, err.Error(), nil)
}

// providerError converts a provider failure into a wire error. Domain
// errors keep their kind; anything else is an internal error with no
// details leaked beyond the message.
func providerError(id jsonrpc.RequestId, err error) jsonrpc.JSONRPCMessage {
	if mcpErr, ok := err.(*McpError); ok {
		return mcpErr.JSONRPC(id)
	}
	if uriErr, ok := err.(*InvalidUriError); ok {
		return uriErr.Mcp().JSONRPC(id)
	}
	return jsonrpc.NewError(id, jsonrpc.INTERNAL_ERROR, err.Error(), nil)
}
