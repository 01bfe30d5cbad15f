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

// Package oauth2 implements bearer-token authentication: the token is
// parsed as a JWT, its signature verified against a JWKS fetched from the
// authorization server, and its claims validated (issuer, audience,
// expiry with leeway, not-before, algorithm allow-list). Scopes come from
// either a space-separated "scope" claim or a "scopes" array.
package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/cenkalti/backoff/v5"
	"github.com/golang-jwt/jwt/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/airsstack/airs-mcp/internal/auth"
	"github.com/airsstack/airs-mcp/internal/log"
	"github.com/airsstack/airs-mcp/internal/transport"
)

// Config describes the token validation rules.
type Config struct {
	// JwksUrl is the key set endpoint of the authorization server.
	JwksUrl string `yaml:"jwksUrl"`
	// Issuer is the required iss claim.
	Issuer string `yaml:"issuer"`
	// Audience is the required aud claim.
	Audience string `yaml:"audience"`
	// Algorithms is the signature algorithm allow-list. Empty means RS256.
	Algorithms []string `yaml:"algorithms"`
	// Leeway tolerates clock skew when checking exp and nbf.
	Leeway time.Duration `yaml:"leeway"`
	// JwksRefreshInterval is the background key refresh cadence. Zero
	// means one hour.
	JwksRefreshInterval time.Duration `yaml:"jwksRefreshInterval"`
	// JwksRefreshRateLimit throttles refreshes triggered by unknown key
	// ids. Zero means five minutes.
	JwksRefreshRateLimit time.Duration `yaml:"jwksRefreshRateLimit"`
	// TokenCacheSize bounds the validated-token LRU. Zero means 1024.
	TokenCacheSize int `yaml:"tokenCacheSize"`
}

func (c *Config) withDefaults() Config {
	out := *c
	if len(out.Algorithms) == 0 {
		out.Algorithms = []string{"RS256"}
	}
	if out.JwksRefreshInterval <= 0 {
		out.JwksRefreshInterval = time.Hour
	}
	if out.JwksRefreshRateLimit <= 0 {
		out.JwksRefreshRateLimit = 5 * time.Minute
	}
	if out.TokenCacheSize <= 0 {
		out.TokenCacheSize = 1024
	}
	return out
}

// Claims is the strategy-specific auth context payload.
type Claims struct {
	Subject  string
	Issuer   string
	Audience []string
	Scopes   []string
	Raw      map[string]any
}

// Strategy authenticates HTTP requests carrying OAuth2 bearer tokens.
type Strategy struct {
	cfg    Config
	logger log.Logger

	jwksOnce sync.Once
	jwks     *keyfunc.JWKS
	jwksErr  error

	// tokenCache short-circuits repeat validation of the same bearer
	// token while it remains unexpired.
	tokenCache *lru.Cache[string, *auth.Context[Claims]]
}

// NewStrategy returns an OAuth2 strategy. The JWKS is fetched lazily on
// first use and refreshed in the background afterwards.
func NewStrategy(cfg Config, logger log.Logger) (*Strategy, error) {
	cfg = cfg.withDefaults()
	cache, err := lru.New[string, *auth.Context[Claims]](cfg.TokenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("unable to create token cache: %w", err)
	}
	return &Strategy{cfg: cfg, logger: logger, tokenCache: cache}, nil
}

// Method implements auth.Strategy.
func (s *Strategy) Method() auth.Method { return auth.MethodOAuth2 }

// keyfuncFor fetches the JWKS once, retrying transient failures with
// exponential backoff, then hands out the long-lived refreshing handle.
func (s *Strategy) keyfuncFor(ctx context.Context) (*keyfunc.JWKS, error) {
	s.jwksOnce.Do(func() {
		fetch := func() (*keyfunc.JWKS, error) {
			// The handle outlives the triggering request; its background
			// refresh is stopped by Shutdown, not request cancellation.
			return keyfunc.Get(s.cfg.JwksUrl, keyfunc.Options{
				RefreshInterval:   s.cfg.JwksRefreshInterval,
				RefreshRateLimit:  s.cfg.JwksRefreshRateLimit,
				RefreshUnknownKID: true,
				RefreshErrorHandler: func(err error) {
					// Serve stale keys until a refresh succeeds.
					s.logger.Warn(fmt.Sprintf("jwks refresh failed: %v", err))
				},
			})
		}
		s.jwks, s.jwksErr = backoff.Retry(ctx, fetch,
			backoff.WithBackOff(backoff.NewExponentialBackOff()),
			backoff.WithMaxTries(4),
		)
	})
	return s.jwks, s.jwksErr
}

// Shutdown stops the background JWKS refresh.
func (s *Strategy) Shutdown() {
	if s.jwks != nil {
		s.jwks.EndBackground()
	}
}

// Authenticate implements auth.Strategy.
func (s *Strategy) Authenticate(ctx context.Context, req transport.HttpContext) (*auth.Context[Claims], error) {
	header := req.Header("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, auth.Unauthorizedf("no bearer token presented")
	}

	if cached, ok := s.tokenCache.Get(token); ok {
		if !cached.Expired(time.Now()) {
			return cached, nil
		}
		s.tokenCache.Remove(token)
	}

	jwks, err := s.keyfuncFor(ctx)
	if err != nil {
		return nil, fmt.Errorf("jwks unavailable: %w", err)
	}

	parsed, err := jwt.Parse(token, jwks.Keyfunc,
		jwt.WithValidMethods(s.cfg.Algorithms),
		jwt.WithLeeway(s.cfg.Leeway),
	)
	if err != nil {
		return nil, auth.Unauthorizedf("token validation failed: %v", err)
	}
	if !parsed.Valid {
		return nil, auth.Unauthorizedf("token is invalid")
	}
	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, auth.Unauthorizedf("token claims are not in expected format")
	}
	if !mapClaims.VerifyIssuer(s.cfg.Issuer, true) {
		return nil, auth.Unauthorizedf("issuer (iss) claim mismatch")
	}
	if !mapClaims.VerifyAudience(s.cfg.Audience, true) {
		return nil, auth.Unauthorizedf("audience (aud) claim mismatch")
	}

	authCtx, err := s.contextFromClaims(mapClaims)
	if err != nil {
		return nil, err
	}
	s.tokenCache.Add(token, authCtx)
	return authCtx, nil
}

// Validate implements auth.Strategy. Expiry is enforced by the manager on
// every call; the strategy re-checks issuer pinning.
func (s *Strategy) Validate(ctx context.Context, authCtx *auth.Context[Claims]) (bool, error) {
	return authCtx.Data.Issuer == s.cfg.Issuer, nil
}

func (s *Strategy) contextFromClaims(claims jwt.MapClaims) (*auth.Context[Claims], error) {
	data := Claims{Raw: map[string]any(claims)}
	if sub, ok := claims["sub"].(string); ok {
		data.Subject = sub
	}
	if iss, ok := claims["iss"].(string); ok {
		data.Issuer = iss
	}
	switch aud := claims["aud"].(type) {
	case string:
		data.Audience = []string{aud}
	case []any:
		for _, v := range aud {
			if s, ok := v.(string); ok {
				data.Audience = append(data.Audience, s)
			}
		}
	}
	data.Scopes = ScopesFromClaims(claims)

	authCtx := &auth.Context[Claims]{
		Method:   auth.MethodOAuth2,
		Data:     data,
		IssuedAt: time.Now(),
		Attributes: map[string]string{
			"sub": data.Subject,
			"iss": data.Issuer,
		},
	}
	if exp := numericClaim(claims, "exp"); exp > 0 {
		authCtx.ExpiresAt = time.Unix(exp, 0)
	}
	if iat := numericClaim(claims, "iat"); iat > 0 {
		authCtx.IssuedAt = time.Unix(iat, 0)
	}
	return authCtx, nil
}

// numericClaim reads a unix-seconds claim that may decode as float64 or
// json.Number.
func numericClaim(claims jwt.MapClaims, name string) int64 {
	switch v := claims[name].(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	default:
		return 0
	}
}

// ScopesFromClaims extracts scopes from either the space-separated
// "scope" claim or the "scopes" array claim.
func ScopesFromClaims(claims map[string]any) []string {
	if scope, ok := claims["scope"].(string); ok && scope != "" {
		return strings.Fields(scope)
	}
	if raw, ok := claims["scopes"].([]any); ok {
		scopes := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok && s != "" {
				scopes = append(scopes, s)
			}
		}
		return scopes
	}
	if scopes, ok := claims["scopes"].([]string); ok {
		return scopes
	}
	return nil
}

var _ auth.Strategy[transport.HttpContext, Claims] = (*Strategy)(nil)
