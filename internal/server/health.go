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
	"net/http"

	"github.com/go-chi/render"

	"github.com/airsstack/airs-mcp/internal/auth"
)

// healthResponse is the GET /health payload.
type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Sessions int    `json:"sessions"`
}

// oauthMetadata is the RFC 9728 protected-resource document served at
// /.well-known/oauth-protected-resource.
type oauthMetadata struct {
	Resource             string   `json:"resource"`
	JwksUri              string   `json:"jwks_uri,omitempty"`
	BearerMethods        []string `json:"bearer_methods_supported"`
	SigningAlgs          []string `json:"resource_signing_alg_values_supported,omitempty"`
	AuthorizationServers []string `json:"authorization_servers,omitempty"`
}

// healthHandler serves the unauthenticated liveness endpoint.
func healthHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, healthResponse{
			Status:   "healthy",
			Version:  s.conf.Version,
			Sessions: s.sessions.len(),
		})
	}
}

// oauthMetadataHandler serves the unauthenticated OAuth resource
// metadata. It exists for every auth method so clients can discover the
// scheme, but only the oauth2 method fills in key material.
func oauthMetadataHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc := oauthMetadata{
			Resource:      s.security.realm,
			BearerMethods: []string{"header"},
		}
		if s.security.method == auth.MethodOAuth2 {
			doc.JwksUri = s.conf.Security.OAuth2.JwksUrl
			doc.SigningAlgs = s.conf.Security.OAuth2.Algorithms
			doc.AuthorizationServers = []string{s.conf.Security.OAuth2.Issuer}
		}
		render.JSON(w, r, doc)
	}
}
