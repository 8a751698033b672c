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

	"github.com/mitchellh/mapstructure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHookDecodesLoggingOptions(t *testing.T) {
	input := map[string]interface{}{
		"severity": "error",
		"format":   "json",
		"file":     "relative.log",
	}
	var out LoggingOptions

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: DecodeHook(),
		Result:     &out,
	})
	require.NoError(t, err)
	require.NoError(t, dec.Decode(input))

	assert.Equal(t, LogSeverity(LogError), out.Severity)
	assert.Equal(t, LogFormat(LogFormatJSON), out.Format)
	assert.NotEqual(t, ResolvedPath("relative.log"), out.File)
}

func TestDecodeHookRejectsInvalidSeverity(t *testing.T) {
	input := map[string]interface{}{"severity": "LOUD"}
	var out LoggingOptions

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: DecodeHook(),
		Result:     &out,
	})
	require.NoError(t, err)
	assert.Error(t, dec.Decode(input))
}
