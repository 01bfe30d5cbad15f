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

package transport

import (
	"net/http"
	"net/url"
)

// HttpContext is the per-message context of the HTTP transport: the
// request line and metadata of the HTTP request that carried the frame.
// Header lookup is case-insensitive.
type HttpContext struct {
	Method     string
	Path       string
	RemoteAddr string

	headers http.Header
	query   url.Values
}

// NewHttpContext captures the relevant parts of an inbound request.
func NewHttpContext(r *http.Request) HttpContext {
	return HttpContext{
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		headers:    r.Header,
		query:      r.URL.Query(),
	}
}

// Header returns the first value of the named header, case-insensitively.
func (c HttpContext) Header(name string) string {
	if c.headers == nil {
		return ""
	}
	return c.headers.Get(name)
}

// Query returns the first value of the named query parameter.
func (c HttpContext) Query(name string) string {
	if c.query == nil {
		return ""
	}
	return c.query.Get(name)
}
