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

package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestSeverityToLevel(t *testing.T) {
	for _, ok := range []string{"debug", "INFO", "Warn", "ERROR"} {
		if _, err := SeverityToLevel(ok); err != nil {
			t.Fatalf("unexpected error for %q: %s", ok, err)
		}
	}
	if _, err := SeverityToLevel("verbose"); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestStdLoggerSplitsStreams(t *testing.T) {
	var out, errOut bytes.Buffer
	logger, err := NewStdLogger(&out, &errOut, "debug")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	logger.Info("hello info")
	logger.Error("hello error")

	if !strings.Contains(out.String(), "hello info") {
		t.Fatalf("info missing from out stream: %q", out.String())
	}
	if strings.Contains(out.String(), "hello error") {
		t.Fatal("error leaked into out stream")
	}
	if !strings.Contains(errOut.String(), "hello error") {
		t.Fatalf("error missing from err stream: %q", errOut.String())
	}
}

func TestStdLoggerLevelFilter(t *testing.T) {
	var out, errOut bytes.Buffer
	logger, err := NewStdLogger(&out, &errOut, "warn")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	logger.Debug("invisible")
	logger.Info("also invisible")
	logger.Warn("visible")

	if out.Len() != 0 {
		t.Fatalf("suppressed levels reached out stream: %q", out.String())
	}
	if !strings.Contains(errOut.String(), "visible") {
		t.Fatalf("warn missing: %q", errOut.String())
	}
}

func TestStructuredLoggerEmitsJSON(t *testing.T) {
	var out, errOut bytes.Buffer
	logger, err := NewStructuredLogger(&out, &errOut, "info")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	logger.Info("structured line")

	var record map[string]any
	if err := json.Unmarshal(out.Bytes(), &record); err != nil {
		t.Fatalf("output is not json: %q", out.String())
	}
	if record["msg"] != "structured line" {
		t.Fatalf("unexpected record: %+v", record)
	}
}
