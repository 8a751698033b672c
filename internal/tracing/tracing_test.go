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

package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesSpansToWriter(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init(&buf, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	ctx, span := Start(context.Background(), "test-span")
	End(span, nil)
	_ = ctx

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "test-span")
}

func TestEndRecordsError(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init(&buf, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	_, span := Start(context.Background(), "failing-span")
	End(span, errors.New("boom"))

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "boom")
}
