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

// Package auth defines the authentication pipeline: a Strategy validates
// credentials extracted from a request and produces a typed AuthContext; a
// Manager wraps one strategy with a timeout. Strategies are bound at
// construction time through type parameters, so each deployment
// authenticates with exactly one statically known scheme.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Method names an authentication scheme.
type Method string

const (
	MethodNone   Method = "none"
	MethodApiKey Method = "apikey"
	MethodOAuth2 Method = "oauth2"
)

// ErrUnauthorized is the base failure for rejected credentials. Wire
// layers map it to an Unauthorized response; the wrapped reason stays in
// the server logs.
var ErrUnauthorized = errors.New("unauthorized")

// Unauthorizedf wraps ErrUnauthorized with a reason.
func Unauthorizedf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrUnauthorized}, args...)...)
}

// Context is the result of a successful authentication. D is
// strategy-specific data: the key record for API keys, the claim set for
// OAuth2.
type Context[D any] struct {
	Method     Method
	Data       D
	IssuedAt   time.Time
	ExpiresAt  time.Time // zero when the credential does not expire
	Attributes map[string]string
}

// Expired reports whether the context's credential has expired at now.
func (c *Context[D]) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Strategy authenticates requests of type R into contexts carrying D.
type Strategy[R any, D any] interface {
	// Method names the scheme this strategy implements.
	Method() Method
	// Authenticate verifies the credential carried by the request.
	Authenticate(ctx context.Context, req R) (*Context[D], error)
	// Validate re-checks a previously issued context.
	Validate(ctx context.Context, authCtx *Context[D]) (bool, error)
}

// Manager applies one strategy with a per-call timeout. The strategy type
// is fixed at construction; there is no runtime scheme negotiation.
type Manager[R any, D any] struct {
	strategy Strategy[R, D]
	timeout  time.Duration
}

// NewManager wraps a strategy. A zero timeout means 5s.
func NewManager[R any, D any](s Strategy[R, D], timeout time.Duration) *Manager[R, D] {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager[R, D]{strategy: s, timeout: timeout}
}

// Method names the wrapped strategy's scheme.
func (m *Manager[R, D]) Method() Method { return m.strategy.Method() }

// Authenticate runs the strategy under the manager's timeout.
func (m *Manager[R, D]) Authenticate(ctx context.Context, req R) (*Context[D], error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	authCtx, err := m.strategy.Authenticate(ctx, req)
	if err != nil {
		return nil, err
	}
	if authCtx.Expired(time.Now()) {
		return nil, Unauthorizedf("credential expired")
	}
	return authCtx, nil
}

// Validate re-checks a context under the manager's timeout. Expiry is
// checked on every call, before the strategy runs.
func (m *Manager[R, D]) Validate(ctx context.Context, authCtx *Context[D]) (bool, error) {
	if authCtx.Expired(time.Now()) {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.strategy.Validate(ctx, authCtx)
}
