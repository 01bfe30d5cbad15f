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
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	yaml "github.com/goccy/go-yaml"

	"github.com/airsstack/airs-mcp/internal/auth"
	"github.com/airsstack/airs-mcp/internal/auth/oauth2"
)

// ServerConfig holds everything needed to run an instance of the server.
type ServerConfig struct {
	// Server version
	Version string
	// Address is the address of the interface the server will listen on.
	Address string
	// Port is the port the server will listen on.
	Port int
	// LoggingFormat defines whether structured loggings are used.
	LoggingFormat LogFormat
	// LogLevel defines the levels to log.
	LogLevel StringLevel
	// LogFile routes logs to a rotating file. With Stdio and no LogFile,
	// logs go to stderr.
	LogFile string
	// TelemetryOTLP defines OTLP collector url for telemetry exports.
	TelemetryOTLP string
	// Stdio indicates the server is serving MCP over stdio.
	Stdio bool
	// DisableReload disables hot-reload of the security config file.
	DisableReload bool

	// Security configures authentication and authorization.
	Security SecurityConfig

	// MaxBodyBytes caps inbound HTTP bodies. Zero means 16 MiB.
	MaxBodyBytes int64
	// MaxConnections caps concurrent HTTP connections. Zero means 1024.
	MaxConnections int
	// HealthCheckInterval is the connection manager report cadence.
	HealthCheckInterval time.Duration
	// SessionTimeout reaps idle sessions. Zero means 30 minutes.
	SessionTimeout time.Duration
	// SseHeartbeatInterval keeps intermediaries from reaping idle SSE
	// streams. Zero means 15 seconds.
	SseHeartbeatInterval time.Duration
}

func (c *ServerConfig) maxBodyBytes() int64 {
	if c.MaxBodyBytes <= 0 {
		return 16 * 1024 * 1024
	}
	return c.MaxBodyBytes
}

func (c *ServerConfig) sseHeartbeat() time.Duration {
	if c.SseHeartbeatInterval <= 0 {
		return 15 * time.Second
	}
	return c.SseHeartbeatInterval
}

// ApiKeyEntry provisions one API key: the secret, the client id it maps
// to, and the scopes granted to that client.
type ApiKeyEntry struct {
	Key    string   `yaml:"key" validate:"required"`
	Id     string   `yaml:"id" validate:"required"`
	Scopes []string `yaml:"scopes"`
}

// SecurityConfig selects exactly one authentication scheme and its
// authorization posture.
type SecurityConfig struct {
	// Method is "none", "apikey", or "oauth2".
	Method auth.Method `yaml:"method"`
	// Realm names the protected resource in WWW-Authenticate challenges
	// and the OAuth metadata document.
	Realm string `yaml:"realm"`
	// ApiKeys provisions keys for the apikey method.
	ApiKeys []ApiKeyEntry `yaml:"apiKeys"`
	// OAuth2 configures token validation for the oauth2 method.
	OAuth2 oauth2.Config `yaml:"oauth2"`
	// ScopePrefix overrides the scope namespace. Empty means "mcp".
	ScopePrefix string `yaml:"scopePrefix"`
	// DisableWildcard turns off <prefix>:* matching.
	DisableWildcard bool `yaml:"disableWildcard"`
	// AuthTimeout bounds one authentication attempt.
	AuthTimeout time.Duration `yaml:"authTimeout"`
}

// securityFile is the on-disk shape of the security config.
type securityFile struct {
	Security SecurityConfig `yaml:"security"`
}

// UnmarshalSecurityConfig strict-decodes the security section of a config
// file: unknown fields are rejected and validate tags are enforced.
func UnmarshalSecurityConfig(raw []byte) (SecurityConfig, error) {
	var file securityFile
	dec := yaml.NewDecoder(
		bytes.NewReader(raw),
		yaml.Strict(),
		yaml.Validator(validator.New()),
	)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return SecurityConfig{}, fmt.Errorf("unable to parse security config: %w", err)
	}
	cfg := file.Security
	if cfg.Method == "" {
		cfg.Method = auth.MethodNone
	}
	if err := cfg.validate(); err != nil {
		return SecurityConfig{}, err
	}
	return cfg, nil
}

func (c *SecurityConfig) validate() error {
	switch c.Method {
	case auth.MethodNone:
		return nil
	case auth.MethodApiKey:
		if len(c.ApiKeys) == 0 {
			return fmt.Errorf("apikey method requires at least one provisioned key")
		}
		for i, k := range c.ApiKeys {
			if k.Key == "" || k.Id == "" {
				return fmt.Errorf("api key %d is missing key or id", i)
			}
		}
		return nil
	case auth.MethodOAuth2:
		if c.OAuth2.JwksUrl == "" || c.OAuth2.Issuer == "" || c.OAuth2.Audience == "" {
			return fmt.Errorf("oauth2 method requires jwksUrl, issuer, and audience")
		}
		return nil
	default:
		return fmt.Errorf("unknown auth method %q", c.Method)
	}
}

// scopePrefix returns the effective scope namespace.
func (c *SecurityConfig) scopePrefix() string {
	if c.ScopePrefix == "" {
		return "mcp"
	}
	return c.ScopePrefix
}

// LogFormat selects the logger encoding.
type LogFormat string

// String is used by both fmt.Print and by Cobra in help text
func (f *LogFormat) String() string {
	if string(*f) != "" {
		return strings.ToLower(string(*f))
	}
	return "standard"
}

// Set validates the logging format flag.
func (f *LogFormat) Set(v string) error {
	switch strings.ToLower(v) {
	case "standard", "json":
		*f = LogFormat(v)
		return nil
	default:
		return fmt.Errorf(`log format must be one of "standard", or "json"`)
	}
}

// Type is used in Cobra help text
func (f *LogFormat) Type() string {
	return "logFormat"
}

// StringLevel is the log severity flag.
type StringLevel string

// String is used by both fmt.Print and by Cobra in help text
func (s *StringLevel) String() string {
	if string(*s) != "" {
		return strings.ToLower(string(*s))
	}
	return "info"
}

// Set validates the log level flag.
func (s *StringLevel) Set(v string) error {
	switch strings.ToLower(v) {
	case "debug", "info", "warn", "error":
		*s = StringLevel(v)
		return nil
	default:
		return fmt.Errorf(`log level must be one of "debug", "info", "warn", or "error"`)
	}
}

// Type is used in Cobra help text
func (s *StringLevel) Type() string {
	return "stringLevel"
}
