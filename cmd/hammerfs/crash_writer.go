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

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hammerfs/hammer/internal/flusher"
)

// CrashWriter appends a line to a file every time it observes the
// flusher's critical-error latch trip, so an operator with no log
// aggregation still gets a durable record of when a mount went
// read-only-2.
type CrashWriter struct {
	fileName string
}

// NewCrashWriter returns a CrashWriter appending to fileName.
func NewCrashWriter(fileName string) *CrashWriter {
	return &CrashWriter{fileName: fileName}
}

func (w *CrashWriter) Write(p []byte) (n int, err error) {
	f, err := os.OpenFile(w.fileName, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.Write(p)
}

// watchCritical polls f's critical-error flag and writes one line to
// w (if non-nil) the moment it first trips, then stops polling; the
// latch never clears within a Flusher's life, so there is nothing
// more to report. The returned func stops the poll early, for a clean
// shutdown on unmount.
func watchCritical(ctx context.Context, f *flusher.Flusher, w *CrashWriter) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				if f.Critical() {
					if w != nil {
						_, _ = w.Write([]byte(fmt.Sprintf("%s critical error: flusher latched read-only-2\n", time.Now().UTC().Format(time.RFC3339))))
					}
					return
				}
			}
		}
	}()
	return func() { close(stop) }
}
