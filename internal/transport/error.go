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
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by Send after Close. Live correlation waiters
	// are resolved with correlation.ErrClosed instead.
	ErrClosed = errors.New("transport is closed")

	// ErrAlreadyStarted is returned by Start on a running transport and
	// by SetMessageHandler after Start.
	ErrAlreadyStarted = errors.New("transport already started")

	// ErrNoHandler is returned by Start when no message handler is set.
	ErrNoHandler = errors.New("no message handler set")
)

// FramingError reports a frame that could not be decoded. The transport
// skips the frame, reports it through HandleError, and keeps reading.
type FramingError struct {
	Reason string
	Err    error
}

func (e *FramingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("framing error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("framing error: %s", e.Reason)
}

func (e *FramingError) Unwrap() error { return e.Err }

// MessageTooLargeError reports a frame exceeding the transport's
// configured maximum message size.
type MessageTooLargeError struct {
	Size int
	Max  int
}

func (e *MessageTooLargeError) Error() string {
	return fmt.Sprintf("message of %d bytes exceeds maximum of %d", e.Size, e.Max)
}

// IOError wraps a fatal read/write failure on the underlying stream.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
