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
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hammerfs/hammer/internal/device"
	"github.com/hammerfs/hammer/internal/flusher"
	"github.com/hammerfs/hammer/internal/hammer"
	"github.com/hammerfs/hammer/internal/metrics"
	"github.com/hammerfs/hammer/internal/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	mountTrace      bool
	mountMetricAddr string
	mountCrashLog   string
)

var mountCmd = &cobra.Command{
	Use:   "mount [volume-path]",
	Short: "Open a volume and drain its flush groups until interrupted",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, factory, err := loadConfig()
		if err != nil {
			return err
		}
		path := string(cfg.VolumePath)
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return fmt.Errorf("hammerfs mount: a volume path is required")
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if mountTrace {
			shutdown, err := tracing.Init(os.Stderr, false)
			if err != nil {
				return fmt.Errorf("hammerfs mount: starting tracer: %w", err)
			}
			defer shutdown(context.Background())
		}

		dev, err := device.Open(path, 0)
		if err != nil {
			return err
		}

		mnt, err := hammer.Open(ctx, hammer.Config{
			Vol:              0,
			Dev:              dev,
			UndoSize:         cfg.Format.UndoSizeMB << 20,
			EntriesPerLayer1: cfg.Format.EntriesPerLayer1,
			ReadOnly:         cfg.Mount.ReadOnly,
			SlaveWorkers:     cfg.Mount.SlaveWorkers,
			Metrics:          flusher.NewMetrics(prometheus.NewRegistry()),
			Log:              factory.New("hammer"),
		})
		if err != nil {
			dev.Close()
			return fmt.Errorf("hammerfs mount: %w", err)
		}

		var srv *http.Server
		if mountMetricAddr != "" {
			provider, shutdown, err := metrics.Init()
			if err != nil {
				mnt.Close(ctx)
				return fmt.Errorf("hammerfs mount: starting metrics: %w", err)
			}
			defer shutdown(context.Background())
			if _, err := provider.RegisterMount(path, mnt); err != nil {
				mnt.Close(ctx)
				return fmt.Errorf("hammerfs mount: registering mount gauges: %w", err)
			}

			mux := http.NewServeMux()
			mux.Handle("/metrics", provider.Handler())
			srv = &http.Server{Addr: mountMetricAddr, Handler: mux}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					factory.New("hammerfs").Error("metrics server failed", "err", err)
				}
			}()
		}

		var crash *CrashWriter
		if mountCrashLog != "" {
			crash = NewCrashWriter(mountCrashLog)
		}
		stopWatch := watchCritical(ctx, mnt.Flusher(), crash)

		fmt.Printf("mounted %s; press Ctrl-C to unmount\n", path)
		<-ctx.Done()
		stopWatch()

		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}

		return mnt.Close(context.Background())
	},
}

func init() {
	mountCmd.Flags().BoolVar(&mountTrace, "trace", false, "Emit span traces to stderr.")
	mountCmd.Flags().StringVar(&mountMetricAddr, "metrics-addr", "", "Address to serve Prometheus metrics on, e.g. :9100; empty disables it.")
	mountCmd.Flags().StringVar(&mountCrashLog, "crash-log", "", "File to append a line to when the flusher latches a critical error; empty disables it.")
}
