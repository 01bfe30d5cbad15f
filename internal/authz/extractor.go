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

package authz

import (
	"encoding/json"
	"strings"
)

// MethodExtractor derives the method name to authorize from a request.
type MethodExtractor[R any] interface {
	ExtractMethod(req R) (string, error)
	Name() string
}

// JsonPayloadCarrier is a request exposing its JSON-RPC payload bytes.
type JsonPayloadCarrier interface {
	JsonPayload() []byte
}

// PathCarrier is a request exposing its HTTP path.
type PathCarrier interface {
	HttpPath() string
}

// JsonRpcMethodExtractor reads the method from the JSON-RPC body. For
// JSON-RPC over HTTP this is the only correct extractor: the URL path
// selects the endpoint, it does not encode the method.
type JsonRpcMethodExtractor[R JsonPayloadCarrier] struct{}

// ExtractMethod implements MethodExtractor. Missing, non-string, and
// empty method fields are rejected.
func (JsonRpcMethodExtractor[R]) ExtractMethod(req R) (string, error) {
	var envelope struct {
		Method json.RawMessage `json:"method"`
	}
	if err := json.Unmarshal(req.JsonPayload(), &envelope); err != nil {
		return "", Forbidden("request body is not valid JSON: %v", err)
	}
	if envelope.Method == nil {
		return "", Forbidden("missing method field in JSON-RPC request")
	}
	var method string
	if err := json.Unmarshal(envelope.Method, &method); err != nil {
		return "", Forbidden("method field in JSON-RPC request is not a string")
	}
	if method == "" {
		return "", Forbidden("empty method in JSON-RPC request")
	}
	return method, nil
}

// Name implements MethodExtractor.
func (JsonRpcMethodExtractor[R]) Name() string { return "JsonRpcMethodExtractor" }

// HttpPathMethodExtractor strips a prefix from the URL path and returns
// the remainder. Only valid for REST-style endpoints that are not
// JSON-RPC; using it in front of a JSON-RPC endpoint authorizes the wrong
// method.
type HttpPathMethodExtractor[R PathCarrier] struct {
	Prefix string
}

// ExtractMethod implements MethodExtractor.
func (e HttpPathMethodExtractor[R]) ExtractMethod(req R) (string, error) {
	path := req.HttpPath()
	rest, ok := strings.CutPrefix(path, e.Prefix)
	if !ok {
		return "", Forbidden("path %q does not start with prefix %q", path, e.Prefix)
	}
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", Forbidden("path %q has no method segment after prefix", path)
	}
	return rest, nil
}

// Name implements MethodExtractor.
func (e HttpPathMethodExtractor[R]) Name() string { return "HttpPathMethodExtractor" }

// StaticMethodExtractor always returns the same method. For
// single-purpose endpoints.
type StaticMethodExtractor[R any] struct {
	Method string
}

// ExtractMethod implements MethodExtractor.
func (e StaticMethodExtractor[R]) ExtractMethod(R) (string, error) {
	if e.Method == "" {
		return "", Forbidden("static extractor has no method configured")
	}
	return e.Method, nil
}

// Name implements MethodExtractor.
func (e StaticMethodExtractor[R]) Name() string { return "StaticMethodExtractor" }

// CompositeMethodExtractor tries each member in order and returns the
// first success.
type CompositeMethodExtractor[R any] struct {
	Extractors []MethodExtractor[R]
}

// ExtractMethod implements MethodExtractor.
func (e CompositeMethodExtractor[R]) ExtractMethod(req R) (string, error) {
	var lastErr error
	for _, member := range e.Extractors {
		method, err := member.ExtractMethod(req)
		if err == nil {
			return method, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", Forbidden("composite extractor has no members")
}

// Name implements MethodExtractor.
func (e CompositeMethodExtractor[R]) Name() string { return "CompositeMethodExtractor" }
