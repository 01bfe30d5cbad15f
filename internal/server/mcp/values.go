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
	"fmt"
	"strings"
	"unicode"
)

// Uri is a validated resource identifier. Ill-formed strings are rejected
// at construction, so a populated Uri is always usable on the wire.
type Uri string

// NewUri validates and returns a Uri. A valid uri is non-empty, contains a
// scheme separated by "://" or ":", and has no interior whitespace.
func NewUri(s string) (Uri, error) {
	if s == "" {
		return "", &InvalidUriError{Uri: s, Reason: "uri is empty"}
	}
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return "", &InvalidUriError{Uri: s, Reason: "uri contains whitespace"}
	}
	scheme, rest, ok := strings.Cut(s, ":")
	if !ok || scheme == "" || rest == "" {
		return "", &InvalidUriError{Uri: s, Reason: "uri has no scheme"}
	}
	for _, r := range scheme {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '-' && r != '.' {
			return "", &InvalidUriError{Uri: s, Reason: fmt.Sprintf("invalid scheme character %q", r)}
		}
	}
	return Uri(s), nil
}

// String returns the uri's wire form.
func (u Uri) String() string { return string(u) }

// Scheme returns the uri scheme.
func (u Uri) Scheme() string {
	scheme, _, _ := strings.Cut(string(u), ":")
	return scheme
}

// UnmarshalJSON implements json.Unmarshaler, applying NewUri validation.
func (u *Uri) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := NewUri(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// MimeType is a validated media type of the form "type/subtype".
type MimeType string

// NewMimeType validates and returns a MimeType.
func NewMimeType(s string) (MimeType, error) {
	if s == "" {
		return "", fmt.Errorf("mime type is empty")
	}
	major, sub, ok := strings.Cut(s, "/")
	if !ok || major == "" || sub == "" {
		return "", fmt.Errorf("invalid mime type %q: want type/subtype", s)
	}
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return "", fmt.Errorf("invalid mime type %q: contains whitespace", s)
	}
	return MimeType(s), nil
}

// String returns the media type's wire form.
func (m MimeType) String() string { return string(m) }

// UnmarshalJSON implements json.Unmarshaler. An empty value is allowed
// here because mimeType is optional on most entities; NewMimeType rejects
// empty strings for callers constructing values directly.
func (m *MimeType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*m = ""
		return nil
	}
	parsed, err := NewMimeType(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
