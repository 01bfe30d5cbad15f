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

// Package apikey implements API key authentication over HTTP. Keys are
// accepted from the X-API-Key header, an Authorization bearer credential,
// or the api_key query parameter, and checked against a constant-time
// table or a caller-provided validator.
package apikey

import (
	"context"
	"crypto/subtle"
	"strings"
	"sync"
	"time"

	"github.com/airsstack/airs-mcp/internal/auth"
	"github.com/airsstack/airs-mcp/internal/transport"
)

// Source identifies where a key was found on the request.
type Source string

const (
	SourceHeader Source = "header"
	SourceBearer Source = "bearer"
	SourceQuery  Source = "query"
)

const (
	headerName = "X-API-Key"
	queryName  = "api_key"
)

// KeyData is the strategy-specific auth context payload: the validated
// key's id and where it came from.
type KeyData struct {
	KeyId  string
	Source Source
}

// Validator resolves a presented key to its id. Implementations must be
// safe for concurrent use.
type Validator interface {
	ValidateKey(ctx context.Context, key string) (keyId string, ok bool)
}

// Table is a fixed key→id table with constant-time comparison.
type Table struct {
	mu   sync.RWMutex
	keys map[string]string
}

// NewTable builds a table from key→id pairs.
func NewTable(keys map[string]string) *Table {
	copied := make(map[string]string, len(keys))
	for k, v := range keys {
		copied[k] = v
	}
	return &Table{keys: copied}
}

// Replace swaps the table contents. Used by config hot-reload.
func (t *Table) Replace(keys map[string]string) {
	copied := make(map[string]string, len(keys))
	for k, v := range keys {
		copied[k] = v
	}
	t.mu.Lock()
	t.keys = copied
	t.mu.Unlock()
}

// ValidateKey scans the table comparing every entry, so the lookup takes
// the same time whether or not the key exists.
func (t *Table) ValidateKey(_ context.Context, key string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var foundId string
	found := 0
	for candidate, id := range t.keys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			foundId = id
			found = 1
		}
	}
	return foundId, found == 1
}

// Strategy authenticates HTTP requests by API key.
type Strategy struct {
	validator Validator
}

// NewStrategy returns an API key strategy backed by the given validator.
func NewStrategy(v Validator) *Strategy {
	return &Strategy{validator: v}
}

// Method implements auth.Strategy.
func (s *Strategy) Method() auth.Method { return auth.MethodApiKey }

// extractKey finds the credential on the request, preferring the
// dedicated header, then the bearer credential, then the query parameter.
func extractKey(req transport.HttpContext) (string, Source, bool) {
	if key := req.Header(headerName); key != "" {
		return key, SourceHeader, true
	}
	if authz := req.Header("Authorization"); authz != "" {
		if key, ok := strings.CutPrefix(authz, "Bearer "); ok && key != "" {
			return key, SourceBearer, true
		}
	}
	if key := req.Query(queryName); key != "" {
		return key, SourceQuery, true
	}
	return "", "", false
}

// Authenticate implements auth.Strategy.
func (s *Strategy) Authenticate(ctx context.Context, req transport.HttpContext) (*auth.Context[KeyData], error) {
	key, source, ok := extractKey(req)
	if !ok {
		return nil, auth.Unauthorizedf("no api key presented")
	}
	keyId, ok := s.validator.ValidateKey(ctx, key)
	if !ok {
		return nil, auth.Unauthorizedf("unknown api key")
	}
	return &auth.Context[KeyData]{
		Method:   auth.MethodApiKey,
		Data:     KeyData{KeyId: keyId, Source: source},
		IssuedAt: time.Now(),
		Attributes: map[string]string{
			"key_id": keyId,
			"source": string(source),
		},
	}, nil
}

// Validate implements auth.Strategy. API keys are re-verified on every
// request by Authenticate, so a context that was issued at all remains
// valid until the manager's expiry check says otherwise.
func (s *Strategy) Validate(ctx context.Context, authCtx *auth.Context[KeyData]) (bool, error) {
	return authCtx.Data.KeyId != "", nil
}

var _ auth.Strategy[transport.HttpContext, KeyData] = (*Strategy)(nil)
