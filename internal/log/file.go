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
	"fmt"

	"gopkg.in/natefinch/lumberjack.v2"
)

// File rotation limits for NewFileLogger.
const (
	maxLogSizeMB  = 50
	maxLogBackups = 3
	maxLogAgeDays = 28
)

// NewFileLogger returns a structured logger writing to a rotating file.
// When serving over stdio, logs go here or to stderr: stdout carries
// protocol frames, so nothing may log to it.
func NewFileLogger(path, level string) (Logger, error) {
	if path == "" {
		return nil, fmt.Errorf("log file path is required")
	}
	sink := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
		MaxAge:     maxLogAgeDays,
		Compress:   true,
	}
	return NewStructuredLogger(sink, sink, level)
}
