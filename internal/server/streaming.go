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

	"github.com/airsstack/airs-mcp/internal/transport"
)

// FrameScanner incrementally splits a byte stream into newline-delimited
// JSON frames. Feed appends raw bytes as they arrive; Next returns one
// complete frame at a time. A frame exceeding the configured maximum is
// reported once and its bytes are discarded, keeping the stream aligned.
type FrameScanner struct {
	buf      bytes.Buffer
	max      int
	skipping bool
}

// NewFrameScanner returns a scanner enforcing max bytes per frame.
func NewFrameScanner(max int) *FrameScanner {
	if max <= 0 {
		max = 16 * 1024 * 1024
	}
	return &FrameScanner{max: max}
}

// Feed appends bytes received from the peer.
func (s *FrameScanner) Feed(p []byte) {
	s.buf.Write(p)
}

// Next returns the next complete frame, or nil when no full frame is
// buffered. When an oversized frame is detected the returned error
// reports it once; subsequent calls resume with the next frame.
func (s *FrameScanner) Next() ([]byte, error) {
	for {
		data := s.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			if s.buf.Len() > s.max && !s.skipping {
				// Frame already too large and still unterminated; drop
				// what we have and keep discarding until the newline.
				s.skipping = true
				size := s.buf.Len()
				s.buf.Reset()
				return nil, &transport.MessageTooLargeError{Size: size, Max: s.max}
			}
			if s.skipping {
				s.buf.Reset()
			}
			return nil, nil
		}

		frame := make([]byte, idx)
		copy(frame, data[:idx])
		s.buf.Next(idx + 1)

		if s.skipping {
			// Tail of the oversized frame; already reported.
			s.skipping = false
			continue
		}
		if len(frame) > s.max {
			return nil, &transport.MessageTooLargeError{Size: len(frame), Max: s.max}
		}
		if len(frame) == 0 {
			continue
		}
		return frame, nil
	}
}

// Buffered reports how many bytes are waiting for a frame boundary.
func (s *FrameScanner) Buffered() int { return s.buf.Len() }
