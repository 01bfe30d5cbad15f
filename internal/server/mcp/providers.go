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
)

// Providers supply capability implementations to the request handler. All
// implementations must be safe for concurrent use: multiple in-flight
// requests may call the same provider at once. Each call receives the
// request's context; the server sets no deadline of its own on provider
// calls, so a call runs until it returns or that context is cancelled.

// ResourceProvider serves the resources/* methods.
type ResourceProvider interface {
	// ListResources returns every resource the server exposes.
	ListResources(ctx context.Context) ([]Resource, error)
	// ReadResource returns the contents of one resource.
	ReadResource(ctx context.Context, uri Uri) ([]Content, error)
	// Subscribe registers interest in change notifications for a resource.
	Subscribe(ctx context.Context, uri Uri) error
	// Unsubscribe removes a prior subscription.
	Unsubscribe(ctx context.Context, uri Uri) error
}

// ResourceTemplateProvider is an optional extension of ResourceProvider
// serving resources/templates/list.
type ResourceTemplateProvider interface {
	ListResourceTemplates(ctx context.Context) ([]ResourceTemplate, error)
}

// ToolProvider serves the tools/* methods. A CallTool error is reported to
// the client as a tool-level failure (isError: true), not a protocol error,
// except an *McpError, which is returned as a JSON-RPC error.
type ToolProvider interface {
	ListTools(ctx context.Context) ([]Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) ([]Content, error)
}

// PromptProvider serves the prompts/* methods.
type PromptProvider interface {
	ListPrompts(ctx context.Context) ([]Prompt, error)
	GetPrompt(ctx context.Context, name string, args map[string]string) (GetPromptResult, error)
}

// LoggingHandler serves logging/setLevel.
type LoggingHandler interface {
	SetLevel(ctx context.Context, level LoggingLevel) error
}

// Notifier delivers server-initiated notifications to the transport layer.
// Implementations route to the right peer: the single stdio stream, or
// every SSE subscriber of every session.
type Notifier interface {
	Notify(method string, params any)
}

// discardNotifier drops notifications when no transport is attached yet.
type discardNotifier struct{}

func (discardNotifier) Notify(string, any) {}
