// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for spyglass binaries.
//
// Configuration is a single YAML file passed via --config. Every field
// has a default, so running without a config file is fully supported:
// Default() is the zero-configuration behavior and Load(path) overlays
// the file's explicit fields on top of it. There is no automatic
// discovery of config files; the only override source is the file the
// operator names.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for spyglass.
type Config struct {
	// Paths configures file locations.
	Paths PathsConfig `yaml:"paths"`

	// Tail configures log ingestion.
	Tail TailConfig `yaml:"tail"`

	// Classifier configures the periodic activity sweep.
	Classifier ClassifierConfig `yaml:"classifier"`

	// Snapshot configures recovery-file persistence.
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Bridge configures the input-response bridge.
	Bridge BridgeConfig `yaml:"bridge"`

	// Sanitize configures parameter redaction.
	Sanitize SanitizeConfig `yaml:"sanitize"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// WatchRoot is the directory holding per-project subdirectories of
	// session JSONL logs. This is the primary event source.
	WatchRoot string `yaml:"watch_root"`

	// StateDir holds spyglass's own files: the recovery snapshot, the
	// tailer cursor file, and the feed socket.
	StateDir string `yaml:"state_dir"`

	// ResponseDir holds bridge artifacts. The process waiting for a
	// human answer polls this directory, so it must be reachable by
	// both sides.
	ResponseDir string `yaml:"response_dir"`
}

// TailConfig configures log ingestion.
type TailConfig struct {
	// RecentToolUses bounds the per-agent tool history. Oldest entries
	// are evicted first.
	RecentToolUses int `yaml:"recent_tool_uses"`

	// RescanInterval is the safety-net full rescan cadence for files
	// that changed without producing a filesystem notification (e.g.
	// writes over NFS).
	RescanInterval time.Duration `yaml:"rescan_interval"`
}

// ClassifierConfig configures the periodic activity sweep.
type ClassifierConfig struct {
	// Interval is the sweep cadence.
	Interval time.Duration `yaml:"interval"`

	// ActiveWindow is how recently a session's log must have been
	// touched for the session to count as active without a live pid.
	ActiveWindow time.Duration `yaml:"active_window"`

	// FailGrace is how stale a session with non-terminal agents must
	// be before the sweep marks it failed.
	FailGrace time.Duration `yaml:"fail_grace"`

	// Retention is how long ended sessions are kept before pruning.
	Retention time.Duration `yaml:"retention"`
}

// SnapshotConfig configures recovery-file persistence.
type SnapshotConfig struct {
	// Interval is the periodic snapshot cadence. A final snapshot is
	// always written on clean shutdown regardless of this value.
	Interval time.Duration `yaml:"interval"`
}

// BridgeConfig configures the input-response bridge.
type BridgeConfig struct {
	// SweepInterval is how often abandoned artifact pairs are checked.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// Retention is how old an artifact pair must be before the sweep
	// removes it.
	Retention time.Duration `yaml:"retention"`

	// PollInterval is the requester-side poll cadence for the signal
	// artifact.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// SanitizeConfig configures parameter redaction.
type SanitizeConfig struct {
	// MaxStringLength caps stored string values; longer values are
	// truncated with a marker.
	MaxStringLength int `yaml:"max_string_length"`

	// RedactKeys adds key substrings to the built-in redaction list.
	RedactKeys []string `yaml:"redact_keys"`
}

// SocketPath returns the push socket location inside the state
// directory. Producers and the monitor derive it from the same config
// so they agree without a separate flag.
func (c Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "events.sock")
}

// SnapshotPath returns the recovery file location.
func (c Config) SnapshotPath() string {
	return filepath.Join(c.Paths.StateDir, "state.snapshot")
}

// CursorPath returns the tailer cursor file location.
func (c Config) CursorPath() string {
	return filepath.Join(c.Paths.StateDir, "cursors.json")
}

// Default returns the zero-configuration defaults. Paths are anchored
// under the user's home directory.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		// No home directory: fall back to the working directory so
		// the binary still starts (e.g. minimal containers).
		home = "."
	}
	stateDir := filepath.Join(home, ".spyglass")
	return Config{
		Paths: PathsConfig{
			WatchRoot:   filepath.Join(home, ".claude", "projects"),
			StateDir:    stateDir,
			ResponseDir: filepath.Join(stateDir, "responses"),
		},
		Tail: TailConfig{
			RecentToolUses: 20,
			RescanInterval: 30 * time.Second,
		},
		Classifier: ClassifierConfig{
			Interval:     5 * time.Second,
			ActiveWindow: 30 * time.Second,
			FailGrace:    10 * time.Minute,
			Retention:    24 * time.Hour,
		},
		Snapshot: SnapshotConfig{
			Interval: 15 * time.Second,
		},
		Bridge: BridgeConfig{
			SweepInterval: time.Minute,
			Retention:     time.Hour,
			PollInterval:  250 * time.Millisecond,
		},
		Sanitize: SanitizeConfig{
			MaxStringLength: 512,
		},
	}
}

// Load reads the YAML file at path and overlays it on Default(). An
// empty path returns Default() unchanged. Unknown fields are rejected
// so typos surface at startup instead of silently using defaults.
func Load(path string) (Config, error) {
	configuration := Default()
	if path == "" {
		return configuration, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&configuration); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return configuration, nil
}
