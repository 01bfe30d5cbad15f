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

// Package mcp implements the Model Context Protocol wire contract on top of
// the jsonrpc layer: typed envelopes for the MCP methods, the capability
// and entity types, and the request handler that dispatches decoded methods
// to capability providers.
package mcp

import (
	"encoding/json"
)

// LATEST_PROTOCOL_VERSION is the most recent version of the MCP protocol
// this server speaks.
const LATEST_PROTOCOL_VERSION = "2024-11-05"

// SERVER_NAME is the implementation name reported during initialize.
const SERVER_NAME = "airs-mcp"

// SUPPORTED_PROTOCOL_VERSIONS lists every protocol version the server
// accepts from clients, newest first.
var SUPPORTED_PROTOCOL_VERSIONS = []string{LATEST_PROTOCOL_VERSION, "2024-10-07"}

// Implementation describes the name and version of an MCP implementation.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ListChanged is a capability flag indicating the server emits
// list_changed notifications for the capability it is attached to.
type ListChanged struct {
	ListChanged *bool `json:"listChanged,omitempty"`
}

// ResourcesCapability describes the server's resource support.
type ResourcesCapability struct {
	Subscribe   *bool `json:"subscribe,omitempty"`
	ListChanged *bool `json:"listChanged,omitempty"`
}

// ServerCapabilities describes the capabilities the server offers. A nil
// member means the capability is not available and its methods return
// METHOD_NOT_FOUND.
type ServerCapabilities struct {
	Resources *ResourcesCapability `json:"resources,omitempty"`
	Tools     *ListChanged         `json:"tools,omitempty"`
	Prompts   *ListChanged         `json:"prompts,omitempty"`
	Logging   *struct{}            `json:"logging,omitempty"`
}

// ClientCapabilities describes the capabilities a client declares during
// initialize. Entries under experimental are kept as raw JSON; other
// unknown members are dropped on decode.
type ClientCapabilities struct {
	Roots        *ListChanged               `json:"roots,omitempty"`
	Sampling     *struct{}                  `json:"sampling,omitempty"`
	Experimental map[string]json.RawMessage `json:"experimental,omitempty"`
}

// InitializeParams are the parameters of the initialize request.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult is the result of a successful initialize request.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// Resource describes a resource the server exposes.
type Resource struct {
	Uri         Uri      `json:"uri"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	MimeType    MimeType `json:"mimeType,omitempty"`
}

// ResourceTemplate describes a parameterized resource URI.
type ResourceTemplate struct {
	UriTemplate string   `json:"uriTemplate"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	MimeType    MimeType `json:"mimeType,omitempty"`
}

// Tool describes a callable tool and its input schema.
type Tool struct {
	Name        string          `json:"name"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// PromptArgument describes one argument a prompt accepts.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Prompt describes a prompt template the server exposes.
type Prompt struct {
	Name        string           `json:"name"`
	Title       string           `json:"title,omitempty"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptMessage is one message of a rendered prompt.
type PromptMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

/* Method params and results */

// ListResourcesResult is the result of resources/list.
type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
}

// ListResourceTemplatesResult is the result of resources/templates/list.
type ListResourceTemplatesResult struct {
	ResourceTemplates []ResourceTemplate `json:"resourceTemplates"`
}

// ReadResourceParams are the parameters of resources/read.
type ReadResourceParams struct {
	Uri string `json:"uri"`
}

// ReadResourceResult is the result of resources/read.
type ReadResourceResult struct {
	Contents []Content `json:"contents"`
}

// SubscribeParams are the parameters of resources/subscribe and
// resources/unsubscribe.
type SubscribeParams struct {
	Uri string `json:"uri"`
}

// ListToolsResult is the result of tools/list.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams are the parameters of tools/call.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// CallToolResult is the result of tools/call. IsError marks tool-level
// failures, which are results rather than protocol errors.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError"`
}

// ListPromptsResult is the result of prompts/list.
type ListPromptsResult struct {
	Prompts []Prompt `json:"prompts"`
}

// GetPromptParams are the parameters of prompts/get.
type GetPromptParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// GetPromptResult is the result of prompts/get.
type GetPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// LoggingLevel is an RFC 5424 syslog severity accepted by logging/setLevel.
type LoggingLevel string

const (
	LevelDebug     LoggingLevel = "debug"
	LevelInfo      LoggingLevel = "info"
	LevelNotice    LoggingLevel = "notice"
	LevelWarning   LoggingLevel = "warning"
	LevelError     LoggingLevel = "error"
	LevelCritical  LoggingLevel = "critical"
	LevelAlert     LoggingLevel = "alert"
	LevelEmergency LoggingLevel = "emergency"
)

// IsValid reports whether the level is one of the defined severities.
func (l LoggingLevel) IsValid() bool {
	switch l {
	case LevelDebug, LevelInfo, LevelNotice, LevelWarning,
		LevelError, LevelCritical, LevelAlert, LevelEmergency:
		return true
	}
	return false
}

// SetLevelParams are the parameters of logging/setLevel.
type SetLevelParams struct {
	Level LoggingLevel `json:"level"`
}

// EmptyResult represents a response that indicates success but carries no
// data.
type EmptyResult struct{}
