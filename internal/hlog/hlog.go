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

package hlog

import (
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Format selects the on-wire shape of a log record.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// RotateConfig mirrors lumberjack's rotation knobs so callers needn't import
// lumberjack themselves.
type RotateConfig struct {
	Filename   string // "" means stderr, no rotation
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Factory builds *slog.Logger instances that all share one output
// destination, format, and level, mutable after construction (SetLevel) so
// the mount's "update" path (§6) can change verbosity without restarting.
type Factory struct {
	level  *slog.LevelVar
	format Format
	out    io.Writer
}

// NewFactory builds a Factory writing to rc (or stderr if rc.Filename is
// empty) in the given format at the given initial level.
func NewFactory(format Format, level string, rc RotateConfig) *Factory {
	var out io.Writer = os.Stderr
	if rc.Filename != "" {
		out = &lumberjack.Logger{
			Filename:   rc.Filename,
			MaxSize:    rc.MaxSizeMB,
			MaxBackups: rc.MaxBackups,
			MaxAge:     rc.MaxAgeDays,
			Compress:   rc.Compress,
		}
	}

	lv := new(slog.LevelVar)
	lv.Set(ParseLevel(level))

	return &Factory{
		level:  lv,
		format: format,
		out:    out,
	}
}

// SetLevel changes the factory's (and every logger it already produced's)
// minimum severity.
func (f *Factory) SetLevel(level string) {
	f.level.Set(ParseLevel(level))
}

func (f *Factory) handler() slog.Handler {
	replace := replaceLevelAttr
	if f.format == FormatJSON {
		replace = chainReplaceAttr(replaceLevelAttr, replaceTimeAttrJSON)
	}
	opts := &slog.HandlerOptions{
		Level:       f.level,
		ReplaceAttr: replace,
	}
	if f.format == FormatJSON {
		return slog.NewJSONHandler(f.out, opts)
	}
	return slog.NewTextHandler(f.out, opts)
}

// New returns a logger tagged with component=name, e.g. "btree", "flusher".
func (f *Factory) New(component string) *slog.Logger {
	return slog.New(f.handler()).With(slog.String("component", component))
}

func chainReplaceAttr(fns ...func([]string, slog.Attr) slog.Attr) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		for _, fn := range fns {
			a = fn(groups, a)
		}
		return a
	}
}

// replaceTimeAttrJSON renders the record's time as a structured
// {seconds,nanos} pair instead of slog's default RFC3339 string, matching
// the engine's on-disk TID/timestamp vocabulary.
func replaceTimeAttrJSON(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey || len(groups) != 0 {
		return a
	}
	t, ok := a.Value.Any().(time.Time)
	if !ok {
		return a
	}
	a.Key = "timestamp"
	a.Value = slog.GroupValue(
		slog.Int64("seconds", t.Unix()),
		slog.Int64("nanos", int64(t.Nanosecond())),
	)
	return a
}
