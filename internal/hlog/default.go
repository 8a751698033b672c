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

import "log/slog"

// defaultFactory backs Default() for call sites that have no logger
// threaded through them yet: the mkfs CLI before a mount exists, and panic
// recovery inside invariant checks. Every other component is handed an
// explicit *slog.Logger at construction and must not use this.
var defaultFactory = NewFactory(FormatText, Info, RotateConfig{})

// Default returns the process-wide fallback logger.
func Default() *slog.Logger {
	return defaultFactory.New("hammer")
}

// SetDefaultLevel adjusts the fallback logger's severity. No package in
// this module calls it.
func SetDefaultLevel(level string) {
	defaultFactory.SetLevel(level)
}
