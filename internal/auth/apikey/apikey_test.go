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

package apikey

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/airsstack/airs-mcp/internal/auth"
	"github.com/airsstack/airs-mcp/internal/transport"
)

func requestWith(t *testing.T, target string, headers map[string]string) transport.HttpContext {
	t.Helper()
	r := httptest.NewRequest("POST", target, nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return transport.NewHttpContext(r)
}

func TestAuthenticateSources(t *testing.T) {
	strategy := NewStrategy(NewTable(map[string]string{"secret-1": "client-a"}))

	testCases := []struct {
		name       string
		target     string
		headers    map[string]string
		wantSource Source
		wantErr    bool
	}{
		{
			name:       "dedicated header",
			target:     "/mcp",
			headers:    map[string]string{"X-API-Key": "secret-1"},
			wantSource: SourceHeader,
		},
		{
			name:       "header is case-insensitive",
			target:     "/mcp",
			headers:    map[string]string{"x-api-key": "secret-1"},
			wantSource: SourceHeader,
		},
		{
			name:       "bearer credential",
			target:     "/mcp",
			headers:    map[string]string{"Authorization": "Bearer secret-1"},
			wantSource: SourceBearer,
		},
		{
			name:       "query parameter",
			target:     "/mcp?api_key=secret-1",
			wantSource: SourceQuery,
		},
		{
			name:    "unknown key",
			target:  "/mcp",
			headers: map[string]string{"X-API-Key": "nope"},
			wantErr: true,
		},
		{
			name:    "no credential",
			target:  "/mcp",
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			authCtx, err := strategy.Authenticate(context.Background(), requestWith(t, tc.target, tc.headers))
			if tc.wantErr {
				if !errors.Is(err, auth.ErrUnauthorized) {
					t.Fatalf("expected ErrUnauthorized, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if authCtx.Data.KeyId != "client-a" {
				t.Fatalf("unexpected key id: %s", authCtx.Data.KeyId)
			}
			if authCtx.Data.Source != tc.wantSource {
				t.Fatalf("unexpected source: want %s, got %s", tc.wantSource, authCtx.Data.Source)
			}
			if authCtx.Method != auth.MethodApiKey {
				t.Fatalf("unexpected method: %s", authCtx.Method)
			}
		})
	}
}

func TestTableReplace(t *testing.T) {
	table := NewTable(map[string]string{"old": "a"})
	strategy := NewStrategy(table)

	table.Replace(map[string]string{"new": "b"})

	if _, err := strategy.Authenticate(context.Background(), requestWith(t, "/mcp", map[string]string{"X-API-Key": "old"})); err == nil {
		t.Fatal("expected old key to be rejected after replace")
	}
	authCtx, err := strategy.Authenticate(context.Background(), requestWith(t, "/mcp", map[string]string{"X-API-Key": "new"}))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if authCtx.Data.KeyId != "b" {
		t.Fatalf("unexpected key id: %s", authCtx.Data.KeyId)
	}
}

func TestManagerChecksExpiry(t *testing.T) {
	strategy := NewStrategy(NewTable(map[string]string{"k": "a"}))
	manager := auth.NewManager[transport.HttpContext, KeyData](strategy, time.Second)

	authCtx, err := manager.Authenticate(context.Background(), requestWith(t, "/mcp", map[string]string{"X-API-Key": "k"}))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	authCtx.ExpiresAt = time.Now().Add(-time.Minute)
	ok, err := manager.Validate(context.Background(), authCtx)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if ok {
		t.Fatal("expired context validated")
	}
}
