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
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/airsstack/airs-mcp/internal/auth/oauth2"
)

func apiKeySecurity() SecurityConfig {
	return SecurityConfig{
		Method: "apikey",
		Realm:  "mcp-test",
		ApiKeys: []ApiKeyEntry{
			{Key: "secret-full", Id: "full", Scopes: []string{"mcp:*"}},
			{Key: "secret-narrow", Id: "narrow", Scopes: []string{"mcp:initialize"}},
		},
	}
}

func TestApiKeyUnknownKeyDenied(t *testing.T) {
	_, ts := setUpServer(t, func(cfg *ServerConfig) { cfg.Security = apiKeySecurity() })

	body := `{"jsonrpc":"2.0","method":"tools/list","id":2}`
	resp, payload, err := runRequest(ts, http.MethodPost, "/mcp", []byte(body), map[string]string{"X-API-Key": "nope"})
	if err != nil {
		t.Fatalf("unexpected error during request: %s", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, payload)
	}
	// The API key scheme issues no bearer challenge.
	if h := resp.Header.Get("WWW-Authenticate"); h != "" {
		t.Fatalf("unexpected WWW-Authenticate header: %q", h)
	}
	var got map[string]any
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unexpected error unmarshalling body: %s", err)
	}
	errBody := got["error"].(map[string]any)
	if errBody["code"] != -32000.0 {
		t.Fatalf("unexpected code: %v", errBody["code"])
	}
	if data := errBody["data"].(map[string]any); data["kind"] != "Unauthorized" {
		t.Fatalf("unexpected discriminant: %v", data["kind"])
	}
}

func TestApiKeyScopeEnforcement(t *testing.T) {
	_, ts := setUpServer(t, func(cfg *ServerConfig) { cfg.Security = apiKeySecurity() })

	// The narrow key may initialize...
	sessionId := initializeSession(t, ts, map[string]string{"X-API-Key": "secret-narrow"})

	// ...but tools/list requires mcp:tools/list, which it lacks.
	body := `{"jsonrpc":"2.0","method":"tools/list","id":2}`
	resp, payload, err := runRequest(ts, http.MethodPost, "/mcp", []byte(body), map[string]string{
		"X-API-Key":   "secret-narrow",
		SessionHeader: sessionId,
	})
	if err != nil {
		t.Fatalf("unexpected error during request: %s", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, payload)
	}
	var got map[string]any
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unexpected error unmarshalling body: %s", err)
	}
	data := got["error"].(map[string]any)["data"].(map[string]any)
	if data["required_scope"] != "mcp:tools/list" {
		t.Fatalf("unexpected required scope: %v", data["required_scope"])
	}

	// The wildcard key passes everywhere.
	resp, payload, err = runRequest(ts, http.MethodPost, "/mcp", []byte(body), map[string]string{
		"X-API-Key":   "secret-full",
		SessionHeader: sessionId,
	})
	if err != nil {
		t.Fatalf("unexpected error during request: %s", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, payload)
	}
}

// jwksServer serves a single-key JWKS for the test signer.
func jwksServer(t *testing.T, pub *rsa.PublicKey, kid string) *httptest.Server {
	t.Helper()
	jwks := map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": kid,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("unexpected error signing token: %s", err)
	}
	return signed
}

// For JSON-RPC over HTTP the required scope is computed from the method
// in the body: POST /mcp with method "initialize" authorizes against
// mcp:initialize (satisfied by the mcp:* wildcard), never mcp:mcp:*.
func TestOAuth2JsonRpcMethodExtraction(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("unexpected error generating key: %s", err)
	}
	const kid = "test-key-1"
	jwks := jwksServer(t, &key.PublicKey, kid)

	_, ts := setUpServer(t, func(cfg *ServerConfig) {
		cfg.Security = SecurityConfig{
			Method: "oauth2",
			Realm:  "mcp-test",
			OAuth2: oauth2.Config{
				JwksUrl:  jwks.URL,
				Issuer:   "https://issuer.test",
				Audience: "mcp-server",
			},
		}
	})

	baseClaims := func(scope string) jwt.MapClaims {
		return jwt.MapClaims{
			"iss":   "https://issuer.test",
			"aud":   "mcp-server",
			"sub":   "user-1",
			"scope": scope,
			"exp":   time.Now().Add(time.Hour).Unix(),
			"iat":   time.Now().Unix(),
		}
	}
	body := `{"jsonrpc":"2.0","method":"initialize","params":{"protocolVersion":"2024-11-05"},"id":1}`

	// Wildcard scope authorizes initialize and yields a normal result.
	token := signToken(t, key, kid, baseClaims("mcp:*"))
	resp, payload, err := runRequest(ts, http.MethodPost, "/mcp", []byte(body), map[string]string{
		"Authorization": "Bearer " + token,
	})
	if err != nil {
		t.Fatalf("unexpected error during request: %s", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, payload)
	}
	var ok map[string]any
	if err := json.Unmarshal(payload, &ok); err != nil {
		t.Fatalf("unexpected error unmarshalling body: %s", err)
	}
	if _, isResult := ok["result"]; !isResult {
		t.Fatalf("expected initialize result, got %s", payload)
	}

	// A token without mcp scopes is denied with the required scope
	// computed from the body method, independent of the /mcp path.
	token = signToken(t, key, kid, baseClaims("api:read"))
	resp, payload, err = runRequest(ts, http.MethodPost, "/mcp", []byte(body), map[string]string{
		"Authorization": "Bearer " + token,
	})
	if err != nil {
		t.Fatalf("unexpected error during request: %s", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, payload)
	}
	var denied map[string]any
	if err := json.Unmarshal(payload, &denied); err != nil {
		t.Fatalf("unexpected error unmarshalling body: %s", err)
	}
	data := denied["error"].(map[string]any)["data"].(map[string]any)
	if data["required_scope"] != "mcp:initialize" {
		t.Fatalf("required scope derived from path: %v", data["required_scope"])
	}

	// A bad signature is rejected with the bearer challenge.
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("unexpected error generating key: %s", err)
	}
	token = signToken(t, otherKey, kid, baseClaims("mcp:*"))
	resp, _, err = runRequest(ts, http.MethodPost, "/mcp", []byte(body), map[string]string{
		"Authorization": "Bearer " + token,
	})
	if err != nil {
		t.Fatalf("unexpected error during request: %s", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if h := resp.Header.Get("WWW-Authenticate"); h == "" {
		t.Fatal("missing WWW-Authenticate challenge for bearer scheme")
	}
}
