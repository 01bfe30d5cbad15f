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

package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/airsstack/airs-mcp/internal/log"
	"github.com/airsstack/airs-mcp/internal/server/mcp/jsonrpc"
)

// HttpConfig configures the HTTP sender.
type HttpConfig struct {
	// ServerUrl is the MCP endpoint, e.g. http://127.0.0.1:5000/mcp.
	ServerUrl string
	// ApiKey, when set, is sent in the X-API-Key header.
	ApiKey string
	// TokenSource, when set, supplies OAuth2 bearer tokens. Exactly one
	// of ApiKey and TokenSource should be configured.
	TokenSource oauth2.TokenSource
	// HttpClient overrides the default http.Client.
	HttpClient *http.Client
}

// HttpConfigFromEnv builds a config from MCP_SERVER_URL, MCP_API_KEY,
// MCP_AUTH_METHOD, and MCP_TIMEOUT.
func HttpConfigFromEnv() (HttpConfig, time.Duration) {
	cfg := HttpConfig{
		ServerUrl: os.Getenv("MCP_SERVER_URL"),
	}
	if os.Getenv("MCP_AUTH_METHOD") != "oauth2" {
		cfg.ApiKey = os.Getenv("MCP_API_KEY")
	}
	var timeout time.Duration
	if v := os.Getenv("MCP_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			timeout = time.Duration(secs) * time.Second
		}
	}
	return cfg, timeout
}

// NewHttpClient returns a client speaking JSON-RPC over HTTP POST. Each
// request rides one HTTP exchange; the response resolves the correlation
// table, so timeout and cancellation semantics match the stream
// transports.
func NewHttpClient(cfg Config, hcfg HttpConfig, logger log.Logger) (*Client, error) {
	if hcfg.ServerUrl == "" {
		return nil, fmt.Errorf("server url is required")
	}
	hc := hcfg.HttpClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	s := &httpSender{cfg: hcfg, http: hc}
	c := newClient(cfg, logger, s)
	s.client = c
	return c, nil
}

// httpSender performs request/response HTTP exchanges. The JSON-RPC
// response from the body is fed back through the correlation manager on
// a separate goroutine, preserving the register→send→await flow.
type httpSender struct {
	cfg    HttpConfig
	http   *http.Client
	client *Client

	mu        sync.Mutex
	sessionId string
}

func (s *httpSender) post(ctx context.Context, body []byte) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.ServerUrl, bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	if s.cfg.TokenSource != nil {
		token, err := s.cfg.TokenSource.Token()
		if err != nil {
			return nil, "", fmt.Errorf("unable to fetch oauth2 token: %w", err)
		}
		token.SetAuthHeader(req)
	} else if s.cfg.ApiKey != "" {
		req.Header.Set("X-API-Key", s.cfg.ApiKey)
	}

	s.mu.Lock()
	if s.sessionId != "" {
		req.Header.Set("Mcp-Session-Id", s.sessionId)
	}
	s.mu.Unlock()

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return payload, resp.Header.Get("Mcp-Session-Id"), nil
}

func (s *httpSender) send(ctx context.Context, req jsonrpc.JSONRPCRequest) error {
	wire, err := jsonrpc.ToJSON(req)
	if err != nil {
		return err
	}

	go func() {
		payload, sessionId, err := s.post(ctx, []byte(wire))
		if err != nil {
			s.client.correlation.CompleteError(req.Id, &jsonrpc.Error{
				Code:    jsonrpc.INTERNAL_ERROR,
				Message: fmt.Sprintf("http exchange failed: %v", err),
			})
			return
		}
		if sessionId != "" {
			s.mu.Lock()
			s.sessionId = sessionId
			s.mu.Unlock()
		}
		msg, perr := jsonrpc.FromJSONBytes(payload)
		if perr != nil {
			s.client.correlation.CompleteError(req.Id, &jsonrpc.Error{
				Code:    jsonrpc.PARSE_ERROR,
				Message: fmt.Sprintf("unparseable response: %v", perr),
			})
			return
		}
		s.client.handleInbound(msg)
	}()
	return nil
}

func (s *httpSender) sendNotification(ctx context.Context, n jsonrpc.JSONRPCNotification) error {
	wire, err := jsonrpc.ToJSON(n)
	if err != nil {
		return err
	}
	_, _, err = s.post(ctx, []byte(wire))
	return err
}

func (s *httpSender) close(context.Context) error {
	s.http.CloseIdleConnections()
	return nil
}
