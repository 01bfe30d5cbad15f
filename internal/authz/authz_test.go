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
	"errors"
	"testing"
)

// authRequest is the request view the HTTP layer hands to authorization.
type authRequest struct {
	path string
	body []byte
}

func (r authRequest) JsonPayload() []byte { return r.body }
func (r authRequest) HttpPath() string    { return r.path }

func TestJsonRpcMethodExtractor(t *testing.T) {
	testCases := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{name: "method present", body: `{"jsonrpc":"2.0","method":"initialize","id":1}`, want: "initialize"},
		{name: "missing method", body: `{"jsonrpc":"2.0","id":1}`, wantErr: true},
		{name: "non-string method", body: `{"method":42}`, wantErr: true},
		{name: "empty method", body: `{"method":""}`, wantErr: true},
		{name: "not json", body: `nope`, wantErr: true},
	}

	e := JsonRpcMethodExtractor[authRequest]{}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.ExtractMethod(authRequest{body: []byte(tc.body)})
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if got != tc.want {
				t.Fatalf("unexpected method: want %q, got %q", tc.want, got)
			}
		})
	}
}

func TestHttpPathMethodExtractor(t *testing.T) {
	e := HttpPathMethodExtractor[authRequest]{Prefix: "/api"}

	got, err := e.ExtractMethod(authRequest{path: "/api/health"})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got != "health" {
		t.Fatalf("unexpected method: %q", got)
	}

	if _, err := e.ExtractMethod(authRequest{path: "/other"}); err == nil {
		t.Fatal("expected error for unmatched prefix")
	}
	if _, err := e.ExtractMethod(authRequest{path: "/api/"}); err == nil {
		t.Fatal("expected error for empty method segment")
	}
}

func TestCompositeMethodExtractor(t *testing.T) {
	e := CompositeMethodExtractor[authRequest]{Extractors: []MethodExtractor[authRequest]{
		JsonRpcMethodExtractor[authRequest]{},
		StaticMethodExtractor[authRequest]{Method: "fallback"},
	}}

	got, err := e.ExtractMethod(authRequest{body: []byte(`{"method":"tools/list"}`)})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got != "tools/list" {
		t.Fatalf("unexpected method: %q", got)
	}

	got, err = e.ExtractMethod(authRequest{body: []byte(`{}`)})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got != "fallback" {
		t.Fatalf("unexpected method: %q", got)
	}
}

func TestScopePolicy(t *testing.T) {
	policy := NewScopePolicy[*ScopeAuthContext]()

	testCases := []struct {
		name    string
		scopes  []string
		method  string
		allowed bool
	}{
		{name: "exact scope", scopes: []string{"mcp:initialize"}, method: "initialize", allowed: true},
		{name: "wildcard scope", scopes: []string{"mcp:*"}, method: "tools/call", allowed: true},
		{name: "wrong namespace", scopes: []string{"api:read"}, method: "tools/call", allowed: false},
		{name: "no scopes", scopes: nil, method: "initialize", allowed: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := policy.Authorize(NewScopeAuthContext("u", tc.scopes), tc.method)
			if tc.allowed && err != nil {
				t.Fatalf("unexpected denial: %s", err)
			}
			if !tc.allowed {
				var authzErr *Error
				if !errors.As(err, &authzErr) {
					t.Fatalf("expected *Error, got %v", err)
				}
				want := "mcp:" + tc.method
				if authzErr.RequiredScope != want {
					t.Fatalf("unexpected required scope: want %q, got %q", want, authzErr.RequiredScope)
				}
			}
		})
	}
}

func TestScopePolicyWildcardDisabled(t *testing.T) {
	policy := ScopePolicy[*ScopeAuthContext]{Prefix: "mcp", AllowWildcard: false}
	if err := policy.Authorize(NewScopeAuthContext("u", []string{"mcp:*"}), "tools/call"); err == nil {
		t.Fatal("wildcard matched with AllowWildcard off")
	}
}

// The method passed to the policy for JSON-RPC over HTTP must come from
// the body, never from the URL path: POST /mcp with method "initialize"
// authorizes against mcp:initialize, not mcp:mcp:*.
func TestJsonRpcOverHttpAuthorizesBodyMethod(t *testing.T) {
	mw := NewMiddleware[*ScopeAuthContext, authRequest](
		NewScopePolicy[*ScopeAuthContext](),
		JsonRpcMethodExtractor[authRequest]{},
	)
	req := authRequest{
		path: "/mcp",
		body: []byte(`{"jsonrpc":"2.0","method":"initialize","id":1}`),
	}

	// A context provisioned with the documented wildcard works.
	if err := mw.Authorize(NewScopeAuthContext("u", []string{"mcp:*"}), req); err != nil {
		t.Fatalf("wildcard context denied: %s", err)
	}
	// So does the exact method scope.
	if err := mw.Authorize(NewScopeAuthContext("u", []string{"mcp:initialize"}), req); err != nil {
		t.Fatalf("exact context denied: %s", err)
	}

	// The failure names mcp:initialize, proving the path played no part.
	err := mw.Authorize(NewScopeAuthContext("u", []string{"api:read"}), req)
	var authzErr *Error
	if !errors.As(err, &authzErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if authzErr.RequiredScope != "mcp:initialize" {
		t.Fatalf("required scope derived from path: %q", authzErr.RequiredScope)
	}
}

func TestBinaryPolicy(t *testing.T) {
	if err := (BinaryPolicy[NoAuthContext]{Allow: true}).Authorize(NoAuthContext{}, "x"); err != nil {
		t.Fatalf("allow-all denied: %s", err)
	}
	if err := (BinaryPolicy[NoAuthContext]{Allow: false}).Authorize(NoAuthContext{}, "x"); err == nil {
		t.Fatal("deny-all allowed")
	}
}

func TestHasScopeWildcardPrefix(t *testing.T) {
	c := NewScopeAuthContext("u", []string{"mcp:tools:*"})
	if !c.HasScope("mcp:tools:execute") {
		t.Fatal("prefix wildcard did not match")
	}
	if c.HasScope("mcp:resources:read") {
		t.Fatal("prefix wildcard matched outside its prefix")
	}
}
