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

// Package client implements the MCP client: typed calls over any
// transport, with request ids allocated and answered through the
// correlation manager.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/airsstack/airs-mcp/internal/correlation"
	"github.com/airsstack/airs-mcp/internal/log"
	"github.com/airsstack/airs-mcp/internal/server/mcp"
	"github.com/airsstack/airs-mcp/internal/server/mcp/jsonrpc"
	"github.com/airsstack/airs-mcp/internal/transport"
)

// sender moves one framed request toward the server. Responses come back
// through the correlation manager, either via the transport's message
// handler or directly from an HTTP round trip.
type sender interface {
	send(ctx context.Context, req jsonrpc.JSONRPCRequest) error
	sendNotification(ctx context.Context, n jsonrpc.JSONRPCNotification) error
	close(ctx context.Context) error
}

// Config tunes a Client.
type Config struct {
	// ClientInfo is reported during initialize.
	ClientInfo mcp.Implementation
	// ProtocolVersion offered at initialize. Empty means the newest
	// supported version.
	ProtocolVersion string
	// RequestTimeout bounds each call. Zero means 30s.
	RequestTimeout time.Duration
	// MaxInFlight caps concurrent outstanding requests.
	MaxInFlight int
}

// Client is an MCP client over one logical connection.
type Client struct {
	cfg         Config
	logger      log.Logger
	correlation *correlation.Manager
	sender      sender

	// NotificationHandler, when set before Connect-style use, receives
	// server-initiated notifications.
	NotificationHandler func(n jsonrpc.JSONRPCNotification)

	mu         sync.Mutex
	serverInfo mcp.Implementation
	serverCaps mcp.ServerCapabilities
	negotiated string
}

func newClient(cfg Config, logger log.Logger, s sender) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.ProtocolVersion == "" {
		cfg.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	}
	c := &Client{
		cfg:    cfg,
		logger: logger,
		correlation: correlation.NewManager(correlation.Config{
			DefaultTimeout: cfg.RequestTimeout,
			Capacity:       cfg.MaxInFlight,
		}),
		sender: s,
	}
	c.correlation.SetLateResponseHook(func(id jsonrpc.RequestId) {
		logger.Warn(fmt.Sprintf("dropping late response for request %s", id))
	})
	return c
}

// NewStdioClient returns a client speaking over an already-constructed
// stdio transport (typically a child process's pipes). The client owns
// the transport from here on: it installs the message handler and starts
// the background reader.
func NewStdioClient(ctx context.Context, cfg Config, logger log.Logger, tr transport.Transport[transport.NoContext]) (*Client, error) {
	s := &transportSender{tr: tr}
	c := newClient(cfg, logger, s)
	s.client = c
	if err := tr.SetMessageHandler(s); err != nil {
		return nil, err
	}
	if err := tr.Start(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Close tears the connection down. Live waiters resolve with Closed.
func (c *Client) Close(ctx context.Context) error {
	err := c.sender.close(ctx)
	c.correlation.Close()
	return err
}

// ServerInfo returns the implementation reported at initialize.
func (c *Client) ServerInfo() mcp.Implementation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// ServerCapabilities returns the capability set reported at initialize.
func (c *Client) ServerCapabilities() mcp.ServerCapabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverCaps
}

// call performs one correlated request and decodes its result into out.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("unable to marshal params for %s: %w", method, err)
		}
		raw = b
	}

	id := c.correlation.NextId()
	req := jsonrpc.NewRequest(method, raw, id)
	snapshot, _ := json.Marshal(req)

	waiter, err := c.correlation.Register(id, snapshot, c.cfg.RequestTimeout)
	if err != nil {
		return err
	}
	if err := c.sender.send(ctx, req); err != nil {
		c.correlation.Cancel(id)
		return err
	}

	res, err := waiter.Await(ctx)
	if err != nil {
		if ctx.Err() != nil {
			c.correlation.Cancel(id)
		}
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(res.Result, out); err != nil {
		return fmt.Errorf("unable to decode %s result: %w", method, err)
	}
	return nil
}

// Initialize performs the MCP handshake and records the negotiated
// version and server capabilities.
func (c *Client) Initialize(ctx context.Context) (*mcp.InitializeResult, error) {
	params := mcp.InitializeParams{
		ProtocolVersion: c.cfg.ProtocolVersion,
		ClientInfo:      c.cfg.ClientInfo,
	}
	var result mcp.InitializeResult
	if err := c.call(ctx, mcp.MethodInitialize, params, &result); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.serverInfo = result.ServerInfo
	c.serverCaps = result.Capabilities
	c.negotiated = result.ProtocolVersion
	c.mu.Unlock()

	// Acknowledge the handshake.
	_ = c.sender.sendNotification(ctx, jsonrpc.NewNotification(mcp.MethodNotifyInitialized, nil))
	return &result, nil
}

// Ping checks connectivity. Allowed before Initialize.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, mcp.MethodPing, nil, nil)
}

// ListResources fetches the server's resource catalog.
func (c *Client) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	var result mcp.ListResourcesResult
	if err := c.call(ctx, mcp.MethodResourcesList, nil, &result); err != nil {
		return nil, err
	}
	return result.Resources, nil
}

// ReadResource reads one resource's contents.
func (c *Client) ReadResource(ctx context.Context, uri string) ([]mcp.Content, error) {
	var result mcp.ReadResourceResult
	if err := c.call(ctx, mcp.MethodResourcesRead, mcp.ReadResourceParams{Uri: uri}, &result); err != nil {
		return nil, err
	}
	return result.Contents, nil
}

// SubscribeResource registers for change notifications on one resource.
func (c *Client) SubscribeResource(ctx context.Context, uri string) error {
	return c.call(ctx, mcp.MethodResourcesSubscribe, mcp.SubscribeParams{Uri: uri}, nil)
}

// UnsubscribeResource removes a prior subscription.
func (c *Client) UnsubscribeResource(ctx context.Context, uri string) error {
	return c.call(ctx, mcp.MethodResourcesUnsubscribe, mcp.SubscribeParams{Uri: uri}, nil)
}

// ListTools fetches the server's tool catalog.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	var result mcp.ListToolsResult
	if err := c.call(ctx, mcp.MethodToolsList, nil, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool invokes one tool. Tool-level failures come back in the result
// with IsError set, not as an error.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	var result mcp.CallToolResult
	if err := c.call(ctx, mcp.MethodToolsCall, mcp.CallToolParams{Name: name, Arguments: args}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListPrompts fetches the server's prompt catalog.
func (c *Client) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	var result mcp.ListPromptsResult
	if err := c.call(ctx, mcp.MethodPromptsList, nil, &result); err != nil {
		return nil, err
	}
	return result.Prompts, nil
}

// GetPrompt renders one prompt.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	var result mcp.GetPromptResult
	if err := c.call(ctx, mcp.MethodPromptsGet, mcp.GetPromptParams{Name: name, Arguments: args}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetLogLevel adjusts the server's notification log level.
func (c *Client) SetLogLevel(ctx context.Context, level mcp.LoggingLevel) error {
	return c.call(ctx, mcp.MethodLoggingSetLevel, mcp.SetLevelParams{Level: level}, nil)
}

// handleInbound routes one message arriving from the transport.
func (c *Client) handleInbound(msg jsonrpc.JSONRPCMessage) {
	switch typed := msg.(type) {
	case jsonrpc.JSONRPCResponse:
		c.correlation.Complete(typed.Id, typed.Result)
	case jsonrpc.JSONRPCError:
		rpcErr := typed.Error
		c.correlation.CompleteError(typed.Id, &rpcErr)
	case jsonrpc.JSONRPCNotification:
		if c.NotificationHandler != nil {
			c.NotificationHandler(typed)
		}
	default:
		// Server-originated requests are not supported yet.
		c.logger.Debug("dropping unexpected inbound message")
	}
}

// transportSender adapts a stream transport: sends go out directly and
// inbound frames resolve the correlation table.
type transportSender struct {
	tr     transport.Transport[transport.NoContext]
	client *Client
}

func (s *transportSender) send(ctx context.Context, req jsonrpc.JSONRPCRequest) error {
	return s.tr.Send(ctx, req)
}

func (s *transportSender) sendNotification(ctx context.Context, n jsonrpc.JSONRPCNotification) error {
	return s.tr.Send(ctx, n)
}

func (s *transportSender) close(ctx context.Context) error {
	return s.tr.Close(ctx)
}

func (s *transportSender) HandleMessage(ctx context.Context, msg jsonrpc.JSONRPCMessage, mctx transport.MessageContext[transport.NoContext]) {
	s.client.handleInbound(msg)
}

func (s *transportSender) HandleError(ctx context.Context, err error) {
	s.client.logger.WarnContext(ctx, "transport error", "error", err)
}

func (s *transportSender) HandleClose(ctx context.Context) {
	s.client.correlation.Close()
}

var _ transport.MessageHandler[transport.NoContext] = (*transportSender)(nil)
