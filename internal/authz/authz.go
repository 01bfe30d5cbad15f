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

// Package authz implements method-level authorization: extractors derive
// the method name to authorize from a typed request, and policies decide
// whether an authenticated context may call it. The two compose through
// Middleware, whose type parameters fix the concrete extractor and policy
// per deployment.
package authz

import (
	"fmt"
	"strings"
	"time"
)

// Error is an authorization failure. RequiredScope, when set, names the
// scope the caller was missing; it is surfaced to clients in the error
// data.
type Error struct {
	Reason        string
	RequiredScope string
}

func (e *Error) Error() string {
	if e.RequiredScope != "" {
		return fmt.Sprintf("forbidden: %s (required scope %s)", e.Reason, e.RequiredScope)
	}
	return fmt.Sprintf("forbidden: %s", e.Reason)
}

// Forbidden builds an Error with a reason only.
func Forbidden(format string, args ...any) *Error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

// NoAuthContext is the authorization context of deployments that do not
// authenticate. It pairs with NoPolicy.
type NoAuthContext struct{}

// ScopeHolder exposes the scope claims of an authorization context.
type ScopeHolder interface {
	Scopes() []string
}

// ScopeAuthContext is the scope-carrying authorization context produced
// from OAuth2 claims or provisioned API key metadata.
type ScopeAuthContext struct {
	Subject   string
	scopes    []string
	Metadata  map[string]string
	ExpiresAt time.Time
}

// NewScopeAuthContext builds a context for subject with the given scopes.
func NewScopeAuthContext(subject string, scopes []string) *ScopeAuthContext {
	return &ScopeAuthContext{Subject: subject, scopes: scopes}
}

// Scopes implements ScopeHolder.
func (c *ScopeAuthContext) Scopes() []string { return c.scopes }

// HasScope reports whether the exact scope is present, or covered by a
// trailing-* wildcard scope such as mcp:tools:*.
func (c *ScopeAuthContext) HasScope(want string) bool {
	for _, s := range c.scopes {
		if s == want {
			return true
		}
		if prefix, ok := strings.CutSuffix(s, "*"); ok && strings.HasPrefix(want, prefix) {
			return true
		}
	}
	return false
}
