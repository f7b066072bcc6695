// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds engine settings that are not part of the policy
// decision: where scratch state lives, how to reach the guest agent,
// and tool overrides. Loaded from YAML with environment overrides,
// the same shape as a sandbox profile file.
type Config struct {
	// BaseDir is the scratch root for per-session overlay state
	// (upper/work/staging directories). Defaults to
	// $XDG_RUNTIME_DIR/substrate/world, falling back to
	// /tmp/substrate-<uid>-world.
	BaseDir string `yaml:"base_dir"`

	// FuseOverlayfsBin overrides PATH lookup of fuse-overlayfs.
	FuseOverlayfsBin string `yaml:"fuse_overlayfs_bin"`

	// AgentSocket is the local forwarded Unix socket of the guest
	// world agent. Empty means commands execute natively.
	AgentSocket string `yaml:"agent_socket"`

	// AgentTimeout bounds every bridge request. Exceeding it is
	// classified as agent-unreachable, never as "unsupported".
	AgentTimeout time.Duration `yaml:"agent_timeout"`

	// HintPath is the file recording the last known good strategy,
	// keyed by host-capability fingerprint. A reporting hint only;
	// never a substitute for per-session probing.
	HintPath string `yaml:"hint_path"`
}

// DefaultAgentTimeout bounds guest agent requests when the config does
// not specify one.
const DefaultAgentTimeout = 10 * time.Second

// DefaultBaseDir returns the scratch root for the current user.
func DefaultBaseDir() string {
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		return filepath.Join(xdg, "substrate", "world")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("substrate-%d-world", os.Getuid()))
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	return &Config{
		BaseDir:      DefaultBaseDir(),
		AgentTimeout: DefaultAgentTimeout,
		HintPath:     filepath.Join(DefaultBaseDir(), "strategy-hint.yaml"),
	}
}

// LoadConfig reads a YAML config file and fills in defaults. A missing
// file is not an error: the defaults stand alone. The
// SUBSTRATE_AGENT_SOCKET environment variable overrides AgentSocket so
// a forwarded socket can be injected without editing config.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	// HintPath defaults are derived from the final BaseDir below, so a
	// file that sets base_dir places the hint under it.
	config.HintPath = ""

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults apply.
		case err != nil:
			return nil, fmt.Errorf("reading world config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("parsing world config %s: %w", path, err)
			}
		}
	}

	if socket := os.Getenv("SUBSTRATE_AGENT_SOCKET"); socket != "" {
		config.AgentSocket = socket
	}

	if config.BaseDir == "" {
		config.BaseDir = DefaultBaseDir()
	}
	if config.AgentTimeout <= 0 {
		config.AgentTimeout = DefaultAgentTimeout
	}
	if config.HintPath == "" {
		config.HintPath = filepath.Join(config.BaseDir, "strategy-hint.yaml")
	}
	return config, nil
}
