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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSeverityUnmarshalText(t *testing.T) {
	var s LogSeverity
	require.NoError(t, s.UnmarshalText([]byte("warning")))
	assert.Equal(t, LogSeverity(LogWarning), s)

	assert.Error(t, s.UnmarshalText([]byte("not-a-level")))
}

func TestLogFormatUnmarshalText(t *testing.T) {
	var f LogFormat
	require.NoError(t, f.UnmarshalText([]byte("JSON")))
	assert.Equal(t, LogFormat(LogFormatJSON), f)

	assert.Error(t, f.UnmarshalText([]byte("xml")))
}

func TestResolvedPathUnmarshalTextMakesAbsolute(t *testing.T) {
	var p ResolvedPath
	require.NoError(t, p.UnmarshalText([]byte("relative/path")))
	assert.True(t, len(p) > 0 && p[0] == '/')
}

func TestResolvedPathUnmarshalTextEmptyStaysEmpty(t *testing.T) {
	var p ResolvedPath
	require.NoError(t, p.UnmarshalText([]byte("")))
	assert.Equal(t, ResolvedPath(""), p)
}
