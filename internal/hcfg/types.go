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

package hcfg

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// LogSeverity is the config datatype for --logging.severity; it accepts the
// same vocabulary as hlog (TRACE, DEBUG, INFO, WARNING, ERROR, OFF).
type LogSeverity string

var validSeverities = []string{LogTrace, LogDebug, LogInfo, LogWarning, LogError, LogOff}

func (s *LogSeverity) UnmarshalText(text []byte) error {
	level := LogSeverity(strings.ToUpper(string(text)))
	if !slices.Contains(validSeverities, string(level)) {
		return fmt.Errorf("invalid log severity: %s. must be one of %v", text, validSeverities)
	}
	*s = level
	return nil
}

func (s LogSeverity) String() string { return string(s) }

// LogFormat is the config datatype for --logging.format: text or json.
type LogFormat string

var validLogFormats = []string{LogFormatText, LogFormatJSON}

func (f *LogFormat) UnmarshalText(text []byte) error {
	format := LogFormat(strings.ToLower(string(text)))
	if !slices.Contains(validLogFormats, string(format)) {
		return fmt.Errorf("invalid log format: %s. must be one of %v", text, validLogFormats)
	}
	*f = format
	return nil
}

func (f LogFormat) String() string { return string(f) }

// ResolvedPath is a filesystem path that is always made absolute on
// unmarshal, so downstream code never has to care what directory the
// CLI was invoked from.
type ResolvedPath string

func (p *ResolvedPath) UnmarshalText(text []byte) error {
	resolved, err := resolvePath(string(text))
	if err != nil {
		return err
	}
	*p = ResolvedPath(resolved)
	return nil
}

func (p ResolvedPath) String() string { return string(p) }

func resolvePath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving ~: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	return filepath.Abs(path)
}
