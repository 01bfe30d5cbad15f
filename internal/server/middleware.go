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

package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/airsstack/airs-mcp/internal/auth"
	"github.com/airsstack/airs-mcp/internal/auth/apikey"
	"github.com/airsstack/airs-mcp/internal/auth/oauth2"
	"github.com/airsstack/airs-mcp/internal/authz"
	"github.com/airsstack/airs-mcp/internal/log"
	"github.com/airsstack/airs-mcp/internal/transport"
)

// securityPipeline is the server's assembled authentication and
// authorization stack. The concrete strategy and policy are fixed when
// the pipeline is built from config; per-request work is two direct
// calls.
type securityPipeline struct {
	method auth.Method
	realm  string

	// authenticate resolves the request to a scope-bearing context.
	authenticate func(ctx context.Context, hctx transport.HttpContext) (*authz.ScopeAuthContext, error)
	// authorize checks the extracted JSON-RPC method against the policy.
	authorize func(authCtx *authz.ScopeAuthContext, req mcpAuthRequest) error

	// shutdown stops background credential plumbing (JWKS refresh).
	shutdown func()

	// keyTable is set for the apikey method so hot-reload can swap keys.
	keyTable *apikey.Table

	mu           sync.RWMutex
	apiKeyScopes map[string][]string
}

// scopesFor returns the scopes provisioned for one API key id.
func (p *securityPipeline) scopesFor(keyId string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.apiKeyScopes[keyId]
}

// mcpAuthRequest is the authorization view of one inbound MCP request:
// the JSON-RPC payload and the path it arrived on.
type mcpAuthRequest struct {
	body []byte
	path string
}

func (r mcpAuthRequest) JsonPayload() []byte { return r.body }
func (r mcpAuthRequest) HttpPath() string    { return r.path }

// newSecurityPipeline builds the pipeline for the configured scheme.
//
// For JSON-RPC over HTTP the method extractor is always
// JsonRpcMethodExtractor: the scope for POST /mcp with body method M is
// <prefix>:M, never anything derived from the URL path.
func newSecurityPipeline(cfg SecurityConfig, logger log.Logger) (*securityPipeline, error) {
	p := &securityPipeline{
		method:   cfg.Method,
		realm:    cfg.Realm,
		shutdown: func() {},
	}

	if cfg.Method == auth.MethodNone {
		p.authenticate = func(context.Context, transport.HttpContext) (*authz.ScopeAuthContext, error) {
			return nil, nil
		}
		p.authorize = func(*authz.ScopeAuthContext, mcpAuthRequest) error { return nil }
		return p, nil
	}

	policy := authz.ScopePolicy[*authz.ScopeAuthContext]{
		Prefix:        cfg.scopePrefix(),
		AllowWildcard: !cfg.DisableWildcard,
	}
	middleware := authz.NewMiddleware[*authz.ScopeAuthContext, mcpAuthRequest](
		policy,
		authz.JsonRpcMethodExtractor[mcpAuthRequest]{},
	)
	p.authorize = middleware.Authorize

	switch cfg.Method {
	case auth.MethodApiKey:
		keys := make(map[string]string, len(cfg.ApiKeys))
		p.apiKeyScopes = make(map[string][]string, len(cfg.ApiKeys))
		for _, entry := range cfg.ApiKeys {
			keys[entry.Key] = entry.Id
			p.apiKeyScopes[entry.Id] = entry.Scopes
		}
		p.keyTable = apikey.NewTable(keys)
		manager := auth.NewManager[transport.HttpContext, apikey.KeyData](
			apikey.NewStrategy(p.keyTable), cfg.AuthTimeout)

		p.authenticate = func(ctx context.Context, hctx transport.HttpContext) (*authz.ScopeAuthContext, error) {
			authCtx, err := manager.Authenticate(ctx, hctx)
			if err != nil {
				return nil, err
			}
			scopeCtx := authz.NewScopeAuthContext(authCtx.Data.KeyId, p.scopesFor(authCtx.Data.KeyId))
			scopeCtx.ExpiresAt = authCtx.ExpiresAt
			return scopeCtx, nil
		}
	case auth.MethodOAuth2:
		strategy, err := oauth2.NewStrategy(cfg.OAuth2, logger)
		if err != nil {
			return nil, fmt.Errorf("unable to build oauth2 strategy: %w", err)
		}
		p.shutdown = strategy.Shutdown
		manager := auth.NewManager[transport.HttpContext, oauth2.Claims](strategy, cfg.AuthTimeout)

		p.authenticate = func(ctx context.Context, hctx transport.HttpContext) (*authz.ScopeAuthContext, error) {
			authCtx, err := manager.Authenticate(ctx, hctx)
			if err != nil {
				return nil, err
			}
			scopeCtx := authz.NewScopeAuthContext(authCtx.Data.Subject, authCtx.Data.Scopes)
			scopeCtx.ExpiresAt = authCtx.ExpiresAt
			return scopeCtx, nil
		}
	default:
		return nil, fmt.Errorf("unknown auth method %q", cfg.Method)
	}
	return p, nil
}

// challenge writes the WWW-Authenticate header for schemes that define
// one. API key rejections carry no challenge.
func (p *securityPipeline) challenge(w http.ResponseWriter) {
	if p.method == auth.MethodOAuth2 {
		realm := p.realm
		if realm == "" {
			realm = "mcp"
		}
		w.Header().Set("WWW-Authenticate", fmt.Sprintf("Bearer realm=%q", realm))
	}
}

// ReplaceApiKeys swaps the provisioned key table and scope grants. No-op
// for other schemes.
func (p *securityPipeline) ReplaceApiKeys(entries []ApiKeyEntry) {
	if p.keyTable == nil {
		return
	}
	keys := make(map[string]string, len(entries))
	scopes := make(map[string][]string, len(entries))
	for _, entry := range entries {
		keys[entry.Key] = entry.Id
		scopes[entry.Id] = entry.Scopes
	}
	p.keyTable.Replace(keys)
	p.mu.Lock()
	p.apiKeyScopes = scopes
	p.mu.Unlock()
}
