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
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	InstrumentationName = "github.com/airsstack/airs-mcp/internal/opentel"

	mcpRequestCountName   = "airs_mcp.server.request.count"
	authFailureCountName  = "airs_mcp.server.auth.failure.count"
	sseSessionCountName   = "airs_mcp.server.sse.session.count"
	sessionEvictCountName = "airs_mcp.server.session.evict.count"
)

// ServerMetrics defines the custom server metrics.
type ServerMetrics struct {
	meter        metric.Meter
	McpRequest   metric.Int64Counter
	AuthFailure  metric.Int64Counter
	SseSession   metric.Int64UpDownCounter
	SessionEvict metric.Int64Counter
}

// CreateCustomMetrics creates all the custom metrics for the server.
func CreateCustomMetrics(versionString string) (*ServerMetrics, error) {
	meter := otel.Meter(InstrumentationName, metric.WithInstrumentationVersion(versionString))

	mcpRequest, err := meter.Int64Counter(
		mcpRequestCountName,
		metric.WithDescription("Number of MCP requests dispatched."),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create %s metric: %w", mcpRequestCountName, err)
	}

	authFailure, err := meter.Int64Counter(
		authFailureCountName,
		metric.WithDescription("Number of rejected authentication or authorization attempts."),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create %s metric: %w", authFailureCountName, err)
	}

	sseSession, err := meter.Int64UpDownCounter(
		sseSessionCountName,
		metric.WithDescription("Number of live SSE subscriber streams."),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create %s metric: %w", sseSessionCountName, err)
	}

	sessionEvict, err := meter.Int64Counter(
		sessionEvictCountName,
		metric.WithDescription("Number of sessions reaped after idle timeout."),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create %s metric: %w", sessionEvictCountName, err)
	}

	metrics := &ServerMetrics{
		meter:        meter,
		McpRequest:   mcpRequest,
		AuthFailure:  authFailure,
		SseSession:   sseSession,
		SessionEvict: sessionEvict,
	}
	return metrics, nil
}
