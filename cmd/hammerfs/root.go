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

// Package main is the hammerfs command-line tool: mkfs, mount, and the
// three background maintenance scans, all sharing one configuration
// surface (internal/hcfg) bound across every subcommand's flags.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/hammerfs/hammer/internal/hcfg"
	"github.com/hammerfs/hammer/internal/hlog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	bindErr error
)

var rootCmd = &cobra.Command{
	Use:   "hammerfs",
	Short: "Format, mount, and maintain a HAMMER-style volume",
	Long: `hammerfs lays out, opens, and compacts a versioned, transactional,
crash-consistent volume: mkfs formats one, mount opens it and drains
its flush groups, and reblock/rebalance/prune run the background scans
that keep a long-lived volume compact.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return bindErr
	},
}

// Execute runs the root command, exiting the process on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file.")
	bindErr = hcfg.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(formatCmd, mountCmd, reblockCmd, rebalanceCmd, pruneCmd)
}

func initConfig() {
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		bindErr = fmt.Errorf("reading config file: %w", err)
	}
}

// loadConfig resolves the merged configuration and builds the logger
// factory every subcommand's components are built against.
func loadConfig() (*hcfg.Config, *hlog.Factory, error) {
	cfg, err := hcfg.Load()
	if err != nil {
		return nil, nil, err
	}

	factory := hlog.NewFactory(hlog.Format(cfg.Logging.Format), string(cfg.Logging.Severity), hlog.RotateConfig{
		Filename:   string(cfg.Logging.File),
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	slog.SetDefault(factory.New("hammerfs"))
	return cfg, factory, nil
}
