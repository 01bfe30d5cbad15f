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
	"fmt"

	"github.com/airsstack/airs-mcp/internal/server/mcp/jsonrpc"
)

// MCP-specific error codes within the JSON-RPC server error range.
const (
	ERR_CODE_UNAUTHORIZED = -32000
	ERR_CODE_TIMEOUT      = -32001
	ERR_CODE_NOT_FOUND    = -32002
)

// ErrorKind is the stable discriminant carried in the data field of MCP
// error responses. Clients switch on it rather than on message text.
type ErrorKind string

const (
	KindVersionMismatch       ErrorKind = "VersionMismatch"
	KindUnsupportedCapability ErrorKind = "UnsupportedCapability"
	KindResourceNotFound      ErrorKind = "ResourceNotFound"
	KindAuthorizationFailed   ErrorKind = "AuthorizationFailed"
	KindUnauthorized          ErrorKind = "Unauthorized"
	KindRequestTimeout        ErrorKind = "RequestTimeout"
	KindInvalidUri            ErrorKind = "InvalidUri"
	KindNotInitialized        ErrorKind = "NotInitialized"
)

// McpError is a domain error the handler converts into a JSON-RPC error
// body. Data members are merged into the response data alongside the kind.
type McpError struct {
	Kind    ErrorKind
	Message string
	Data    map[string]any
}

func (e *McpError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// JSONRPC converts the error into an error response echoing id.
func (e *McpError) JSONRPC(id jsonrpc.RequestId) jsonrpc.JSONRPCError {
	data := map[string]any{"kind": string(e.Kind)}
	for k, v := range e.Data {
		data[k] = v
	}
	return jsonrpc.NewError(id, e.code(), e.Message, data)
}

func (e *McpError) code() int {
	switch e.Kind {
	case KindVersionMismatch, KindNotInitialized:
		return jsonrpc.INVALID_REQUEST
	case KindUnsupportedCapability:
		return jsonrpc.METHOD_NOT_FOUND
	case KindInvalidUri:
		return jsonrpc.INVALID_PARAMS
	case KindResourceNotFound:
		return ERR_CODE_NOT_FOUND
	case KindRequestTimeout:
		return ERR_CODE_TIMEOUT
	case KindUnauthorized, KindAuthorizationFailed:
		return ERR_CODE_UNAUTHORIZED
	default:
		return jsonrpc.INTERNAL_ERROR
	}
}

// NewVersionMismatchError reports an unsupported protocol version offered
// during initialize.
func NewVersionMismatchError(expected []string, actual string) *McpError {
	return &McpError{
		Kind:    KindVersionMismatch,
		Message: fmt.Sprintf("unsupported protocol version %q", actual),
		Data:    map[string]any{"expected": expected, "actual": actual},
	}
}

// NewResourceNotFoundError reports a read of an unknown resource.
func NewResourceNotFoundError(uri string) *McpError {
	return &McpError{
		Kind:    KindResourceNotFound,
		Message: fmt.Sprintf("resource %q does not exist", uri),
		Data:    map[string]any{"uri": uri},
	}
}

// NewNotInitializedError reports a method called before initialize.
func NewNotInitializedError(method string) *McpError {
	return &McpError{
		Kind:    KindNotInitialized,
		Message: fmt.Sprintf("method %q called before initialize", method),
		Data:    map[string]any{"reason": string(KindNotInitialized)},
	}
}

// NewRequestTimeoutError reports an expired in-flight request.
func NewRequestTimeoutError(timeoutMs int64) *McpError {
	return &McpError{
		Kind:    KindRequestTimeout,
		Message: fmt.Sprintf("request timed out after %dms", timeoutMs),
		Data:    map[string]any{"timeout_ms": timeoutMs},
	}
}

// InvalidUriError reports a uri rejected at construction.
type InvalidUriError struct {
	Uri    string
	Reason string
}

func (e *InvalidUriError) Error() string {
	return fmt.Sprintf("invalid uri %q: %s", e.Uri, e.Reason)
}

// Mcp converts the validation failure into its domain error form.
func (e *InvalidUriError) Mcp() *McpError {
	return &McpError{
		Kind:    KindInvalidUri,
		Message: e.Error(),
		Data:    map[string]any{"uri": e.Uri, "reason": e.Reason},
	}
}
