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

// Package stdio implements the stdio MCP transport: one JSON value per
// line over stdin/stdout, UTF-8, newline terminated. Reads happen on a
// dedicated goroutine; writes are serialized through a bounded queue and
// a single writer goroutine. Nothing in this package logs to stdout —
// the stream is the wire.
package stdio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/airsstack/airs-mcp/internal/log"
	"github.com/airsstack/airs-mcp/internal/server/mcp/jsonrpc"
	"github.com/airsstack/airs-mcp/internal/transport"
)

const transportType = "stdio"

// Config tunes the stdio transport.
type Config struct {
	// MaxMessageSize caps one line, in bytes. Longer lines are skipped and
	// reported to the handler as a MessageTooLargeError; no error response
	// is written to the peer.
	MaxMessageSize int
	// WriteQueueSize bounds the outbound queue. Senders suspend when the
	// queue is full.
	WriteQueueSize int
}

// DefaultConfig returns the default stdio tuning: 16 MiB frames, a
// 64-message write queue.
func DefaultConfig() Config {
	return Config{
		MaxMessageSize: 16 * 1024 * 1024,
		WriteQueueSize: 64,
	}
}

// Transport is the stdio transport. Exactly one implicit session exists
// for the lifetime of the process.
type Transport struct {
	cfg       Config
	logger    log.Logger
	sessionId string

	in  io.Reader
	out io.Writer

	mu      sync.Mutex
	handler transport.MessageHandler[transport.NoContext]
	started bool
	closed  bool

	writeQueue chan []byte
	done       chan struct{}
	readerDone chan struct{}
	writerDone chan struct{}
}

// New returns a stdio transport bound to the process stdin/stdout. The
// logger must not write to stdout; use log.NewFileLogger or a stderr
// logger.
func New(cfg Config, logger log.Logger) *Transport {
	return newTransport(cfg, logger, os.Stdin, os.Stdout)
}

// NewWithStreams returns a transport bound to arbitrary streams. Used by
// in-process tests and by clients driving a child process's pipes.
func NewWithStreams(cfg Config, logger log.Logger, in io.Reader, out io.Writer) *Transport {
	return newTransport(cfg, logger, in, out)
}

func newTransport(cfg Config, logger log.Logger, in io.Reader, out io.Writer) *Transport {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultConfig().MaxMessageSize
	}
	if cfg.WriteQueueSize <= 0 {
		cfg.WriteQueueSize = DefaultConfig().WriteQueueSize
	}
	return &Transport{
		cfg:        cfg,
		logger:     logger,
		sessionId:  uuid.New().String(),
		in:         in,
		out:        out,
		writeQueue: make(chan []byte, cfg.WriteQueueSize),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

// SetMessageHandler installs the inbound message handler. It may be
// replaced until Start is called.
func (t *Transport) SetMessageHandler(h transport.MessageHandler[transport.NoContext]) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return transport.ErrAlreadyStarted
	}
	t.handler = h
	return nil
}

// Start launches the reader and writer goroutines and returns promptly.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return transport.ErrAlreadyStarted
	}
	if t.handler == nil {
		return transport.ErrNoHandler
	}
	t.started = true

	go t.readLoop(ctx)
	go t.writeLoop()
	return nil
}

// Send queues one message for the writer goroutine. It suspends while the
// queue is full and fails with ErrClosed after Close.
func (t *Transport) Send(ctx context.Context, msg jsonrpc.JSONRPCMessage) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}

	wire, err := jsonrpc.ToJSON(msg)
	if err != nil {
		return fmt.Errorf("unable to serialize outbound message: %w", err)
	}
	frame := append([]byte(wire), '\n')

	select {
	case t.writeQueue <- frame:
		return nil
	case <-t.done:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts the transport down. It is idempotent; subsequent Sends fail
// with ErrClosed.
func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	started := t.started
	handler := t.handler
	close(t.done)
	t.mu.Unlock()

	if started {
		// Drain the writer so queued responses reach the peer.
		select {
		case <-t.writerDone:
		case <-ctx.Done():
		}
	}
	if handler != nil {
		handler.HandleClose(ctx)
	}
	return nil
}

// SessionId returns the transport's implicit session id.
func (t *Transport) SessionId() string { return t.sessionId }

// IsConnected reports whether the transport is started and not closed.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started && !t.closed
}

// TransportType identifies this transport in logs and metrics.
func (t *Transport) TransportType() string { return transportType }

func (t *Transport) readLoop(ctx context.Context) {
	defer close(t.readerDone)

	reader := bufio.NewReaderSize(t.in, 64*1024)
	mctx := transport.MessageContext[transport.NoContext]{SessionId: t.sessionId}

	for {
		select {
		case <-t.done:
			return
		default:
		}

		line, tooLong, err := readLine(reader, t.cfg.MaxMessageSize)
		if tooLong {
			t.logger.WarnContext(ctx, "skipping oversized frame", "max_bytes", t.cfg.MaxMessageSize)
			t.handler.HandleError(ctx, &transport.MessageTooLargeError{Size: len(line), Max: t.cfg.MaxMessageSize})
			continue
		}
		if len(line) > 0 {
			msg, perr := jsonrpc.FromJSONBytes(line)
			if perr != nil {
				// One bad frame does not end the stream.
				t.logger.WarnContext(ctx, "skipping malformed frame", "error", perr)
				t.handler.HandleError(ctx, &transport.FramingError{Reason: "malformed frame", Err: perr})
			} else {
				t.handler.HandleMessage(ctx, msg, mctx)
			}
		}
		if err != nil {
			if err != io.EOF {
				t.logger.ErrorContext(ctx, "stdin read failed", "error", err)
				t.handler.HandleError(ctx, &transport.IOError{Op: "read", Err: err})
			}
			// EOF on stdin ends the session.
			_ = t.Close(ctx)
			return
		}
	}
}

// readLine reads one newline-terminated frame, reporting tooLong when the
// frame exceeds max bytes. Oversized frames are consumed to the newline so
// the stream stays aligned.
func readLine(r *bufio.Reader, max int) (line []byte, tooLong bool, err error) {
	var buf []byte
	for {
		chunk, rerr := r.ReadSlice('\n')
		buf = append(buf, chunk...)
		if rerr == bufio.ErrBufferFull {
			if len(buf) > max {
				// Discard the remainder of the frame.
				for rerr == bufio.ErrBufferFull {
					_, rerr = r.ReadSlice('\n')
				}
				return nil, true, rerr
			}
			continue
		}
		if len(buf) > 0 && buf[len(buf)-1] == '\n' {
			buf = buf[:len(buf)-1]
		}
		if len(buf) > max {
			return nil, true, rerr
		}
		return buf, false, rerr
	}
}

func (t *Transport) writeLoop() {
	defer close(t.writerDone)
	for {
		select {
		case frame := <-t.writeQueue:
			if _, err := t.out.Write(frame); err != nil {
				t.logger.Error(fmt.Sprintf("stdout write failed: %v", err))
				return
			}
		case <-t.done:
			// Drain whatever was queued before the close.
			for {
				select {
				case frame := <-t.writeQueue:
					if _, err := t.out.Write(frame); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

var _ transport.Transport[transport.NoContext] = (*Transport)(nil)
