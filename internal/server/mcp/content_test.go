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

package mcp

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestContentRoundTrip(t *testing.T) {
	testCases := []struct {
		name     string
		content  Content
		wantWire string
	}{
		{
			name:     "text",
			content:  NewTextContent("hello"),
			wantWire: `{"type":"text","text":"hello"}`,
		},
		{
			name:     "blob",
			content:  NewBlobContent("aGVsbG8=", "application/octet-stream"),
			wantWire: `{"type":"blob","data":"aGVsbG8=","mimeType":"application/octet-stream"}`,
		},
		{
			name:     "resource",
			content:  NewResourceContent("file:///tmp/a.txt", "text/plain"),
			wantWire: `{"type":"resource","uri":"file:///tmp/a.txt","mimeType":"text/plain"}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			wire, err := json.Marshal(tc.content)
			if err != nil {
				t.Fatalf("unexpected error during marshal: %s", err)
			}
			if string(wire) != tc.wantWire {
				t.Fatalf("unexpected wire form: want %s, got %s", tc.wantWire, wire)
			}
			var got Content
			if err := json.Unmarshal(wire, &got); err != nil {
				t.Fatalf("unexpected error during unmarshal: %s", err)
			}
			if diff := cmp.Diff(tc.content, got); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestContentUnknownType(t *testing.T) {
	var c Content
	if err := json.Unmarshal([]byte(`{"type":"video"}`), &c); err == nil {
		t.Fatal("expected error for unknown content type")
	}
}

func TestUriValidation(t *testing.T) {
	testCases := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{name: "file uri", in: "file:///tmp/a.txt"},
		{name: "custom scheme", in: "memo://bank/entry-1"},
		{name: "empty", in: "", wantErr: true},
		{name: "no scheme", in: "tmp/a.txt", wantErr: true},
		{name: "whitespace", in: "file:///a b", wantErr: true},
		{name: "bad scheme char", in: "fi le:///a", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			uri, err := NewUri(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if uri.String() != tc.in {
				t.Fatalf("unexpected uri: %s", uri)
			}
		})
	}
}

func TestMimeTypeValidation(t *testing.T) {
	if _, err := NewMimeType("text/plain"); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	for _, bad := range []string{"", "text", "/plain", "text/", "text / plain"} {
		if _, err := NewMimeType(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
