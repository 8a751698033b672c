// Copyright 2025 Google LLC
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

// Package hlog is the structured logger every engine component logs
// through. It wraps log/slog with a TRACE level below slog.LevelDebug (for
// per-record cursor/btree tracing that is too noisy even for DEBUG) and a
// severity name that matches the on-disk/diagnostic vocabulary used
// elsewhere in the engine (TRACE, DEBUG, INFO, WARNING, ERROR, OFF).
package hlog

import (
	"log/slog"
	"strings"
)

const (
	// LevelTrace sits one slog level-group below Debug.
	LevelTrace = slog.Level(-8)
	// LevelOff is above any real severity; nothing is logged at or above it.
	LevelOff = slog.Level(12)
)

const (
	Trace   = "TRACE"
	Debug   = "DEBUG"
	Info    = "INFO"
	Warning = "WARNING"
	Error   = "ERROR"
	Off     = "OFF"
)

// ParseLevel maps a severity name to a slog.Level. Unknown names fall back
// to INFO.
func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(name) {
	case Trace:
		return LevelTrace
	case Debug:
		return slog.LevelDebug
	case Info:
		return slog.LevelInfo
	case Warning:
		return slog.LevelWarn
	case Error:
		return slog.LevelError
	case Off:
		return LevelOff
	default:
		return slog.LevelInfo
	}
}

// severityName renders a slog.Level using the engine's severity vocabulary
// instead of slog's default (INFO/WARN/ERROR/DEBUG) so log lines read
// consistently regardless of which level fired.
func severityName(l slog.Level) string {
	switch {
	case l < slog.LevelDebug:
		return Trace
	case l < slog.LevelInfo:
		return Debug
	case l < slog.LevelWarn:
		return Info
	case l < slog.LevelError:
		return Warning
	default:
		return Error
	}
}

// replaceLevelAttr rewrites the slog "level" attribute emitted by the
// standard handlers into a "severity" attribute using the engine's names.
// Passed as a ReplaceAttr function to slog.HandlerOptions.
func replaceLevelAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level, _ := a.Value.Any().(slog.Level)
		a.Key = "severity"
		a.Value = slog.StringValue(severityName(level))
	}
	return a
}
