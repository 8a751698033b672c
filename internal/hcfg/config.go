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

// Package hcfg is the engine's configuration surface: one Config struct
// bound to both command-line flags and an optional YAML file through
// viper, the way the mount and mkfs commands have always taken their
// settings.
package hcfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully resolved configuration for a mount or mkfs
// invocation, after flags, config file, and defaults have all been
// merged by viper and Rationalize has filled in any derived fields.
type Config struct {
	// VolumePath is the path to the backing device or regular file.
	VolumePath ResolvedPath `yaml:"volume-path" mapstructure:"volume-path"`

	Format   FormatOptions   `yaml:"format" mapstructure:"format"`
	Mount    MountOptions    `yaml:"mount" mapstructure:"mount"`
	Throttle ThrottleOptions `yaml:"throttle" mapstructure:"throttle"`
	Reblock  ReblockOptions  `yaml:"reblock" mapstructure:"reblock"`
	Logging  LoggingOptions  `yaml:"logging" mapstructure:"logging"`
	Debug    DebugOptions    `yaml:"debug" mapstructure:"debug"`
}

// FormatOptions are only consulted by mkfs; Open ignores them in favor
// of whatever an earlier Format call already committed to the volume
// header (hammer.Config's UndoSize/EntriesPerLayer1 must still be
// passed explicitly on every Open, since the header doesn't persist
// them — see DESIGN.md's C9 entry).
type FormatOptions struct {
	UndoSizeMB       int64 `yaml:"undo-size-mb" mapstructure:"undo-size-mb"`
	EntriesPerLayer1 int   `yaml:"entries-per-layer1" mapstructure:"entries-per-layer1"`
}

// MountOptions control how an already-formatted volume is opened.
type MountOptions struct {
	ReadOnly     bool   `yaml:"read-only" mapstructure:"read-only"`
	SlaveWorkers uint32 `yaml:"slave-workers" mapstructure:"slave-workers"`
}

// ThrottleOptions configure the front-end cursor's UNDO-backlog wait.
type ThrottleOptions struct {
	ThresholdPercent int     `yaml:"threshold-percent" mapstructure:"threshold-percent"`
	RateHz           float64 `yaml:"rate-hz" mapstructure:"rate-hz"`
	Burst            int     `yaml:"burst" mapstructure:"burst"`
}

// ReblockOptions configure the background space-compaction scan.
type ReblockOptions struct {
	FreeLevel int `yaml:"free-level" mapstructure:"free-level"`
}

// LoggingOptions mirror hlog's Factory/RotateConfig knobs.
type LoggingOptions struct {
	Severity LogSeverity `yaml:"severity" mapstructure:"severity"`
	Format   LogFormat   `yaml:"format" mapstructure:"format"`

	File       ResolvedPath `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int          `yaml:"max-size-mb" mapstructure:"max-size-mb"`
	MaxBackups int          `yaml:"max-backups" mapstructure:"max-backups"`
	MaxAgeDays int          `yaml:"max-age-days" mapstructure:"max-age-days"`
	Compress   bool         `yaml:"compress" mapstructure:"compress"`
}

// DebugOptions gate invariant-violation behavior the way
// debug.exit-on-invariant-violation does upstream.
type DebugOptions struct {
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation" mapstructure:"exit-on-invariant-violation"`
}

// BindFlags registers every config field as a pflag on flagSet and binds
// it into viper under the matching dotted key, so viper.Unmarshal can
// populate a Config from whichever of flag, config file, or default
// wins precedence.
func BindFlags(flagSet *pflag.FlagSet) error {
	bind := func(key string) error {
		return viper.BindPFlag(key, flagSet.Lookup(key))
	}

	flagSet.String("volume-path", "", "Path to the backing device or file.")
	if err := bind("volume-path"); err != nil {
		return err
	}

	flagSet.Int64("format.undo-size-mb", DefaultUndoSizeMB, "UNDO FIFO size in MiB, used only by mkfs.")
	if err := bind("format.undo-size-mb"); err != nil {
		return err
	}

	flagSet.Int("format.entries-per-layer1", DefaultEntriesPerLayer1, "Layer2 entries per layer1 span, used only by mkfs.")
	if err := bind("format.entries-per-layer1"); err != nil {
		return err
	}

	flagSet.Bool("mount.read-only", false, "Mount the volume read-only.")
	if err := bind("mount.read-only"); err != nil {
		return err
	}

	flagSet.Uint32("mount.slave-workers", DefaultSlaveWorkers, "Flusher slave-lane concurrency.")
	if err := bind("mount.slave-workers"); err != nil {
		return err
	}

	flagSet.Int("throttle.threshold-percent", DefaultThrottleThresholdPercent, "UNDO FIFO occupancy percentage above which cursors are throttled.")
	if err := bind("throttle.threshold-percent"); err != nil {
		return err
	}

	flagSet.Float64("throttle.rate-hz", DefaultThrottleRateHz, "Cursor admission rate once throttling engages.")
	if err := bind("throttle.rate-hz"); err != nil {
		return err
	}

	flagSet.Int("throttle.burst", DefaultThrottleBurst, "Cursor admission burst once throttling engages.")
	if err := bind("throttle.burst"); err != nil {
		return err
	}

	flagSet.Int("reblock.free-level", DefaultReblockFreeLevel, "Free-bytes-per-big-block threshold for reblock candidacy.")
	if err := bind("reblock.free-level"); err != nil {
		return err
	}

	flagSet.String("logging.severity", LogInfo, "Log severity: TRACE, DEBUG, INFO, WARNING, ERROR, or OFF.")
	if err := bind("logging.severity"); err != nil {
		return err
	}

	flagSet.String("logging.format", LogFormatText, "Log record format: text or json.")
	if err := bind("logging.format"); err != nil {
		return err
	}

	flagSet.String("logging.file", "", "Log file path; empty means stderr.")
	if err := bind("logging.file"); err != nil {
		return err
	}

	flagSet.Int("logging.max-size-mb", 512, "Log file size in MiB before rotation.")
	if err := bind("logging.max-size-mb"); err != nil {
		return err
	}

	flagSet.Int("logging.max-backups", 10, "Rotated log files to retain.")
	if err := bind("logging.max-backups"); err != nil {
		return err
	}

	flagSet.Int("logging.max-age-days", 0, "Days to retain rotated log files; 0 disables age-based cleanup.")
	if err := bind("logging.max-age-days"); err != nil {
		return err
	}

	flagSet.Bool("logging.compress", true, "Gzip rotated log files.")
	if err := bind("logging.compress"); err != nil {
		return err
	}

	flagSet.Bool("debug.exit-on-invariant-violation", false, "Exit the process instead of panicking when an internal invariant check fails.")
	if err := bind("debug.exit-on-invariant-violation"); err != nil {
		return err
	}

	return nil
}
