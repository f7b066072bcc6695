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

// StrategyHint records the last strategy that probed healthy, keyed by
// a host-capability fingerprint. It exists for reporting and operator
// insight only: the engine always probes per session, because host
// conditions change between commands and the hint can be stale the
// moment it is written.
type StrategyHint struct {
	Fingerprint string    `yaml:"fingerprint"`
	Strategy    Strategy  `yaml:"strategy"`
	RecordedAt  time.Time `yaml:"recorded_at"`
}

// LoadHint reads the hint file and returns the hint when its
// fingerprint matches the current one. A missing, malformed, or
// mismatched hint is simply absent: the hint never degrades anything.
func LoadHint(path, fingerprint string) (StrategyHint, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return StrategyHint{}, false
	}
	var hint StrategyHint
	if err := yaml.Unmarshal(data, &hint); err != nil {
		return StrategyHint{}, false
	}
	if hint.Fingerprint != fingerprint {
		return StrategyHint{}, false
	}
	if _, err := ParseStrategy(string(hint.Strategy)); err != nil {
		return StrategyHint{}, false
	}
	return hint, true
}

// SaveHint writes the hint atomically (write + rename) so a concurrent
// session never reads a torn file. Errors are returned for logging but
// are never fatal to the session.
func SaveHint(path, fingerprint string, strategy Strategy) error {
	hint := StrategyHint{
		Fingerprint: fingerprint,
		Strategy:    strategy,
		RecordedAt:  time.Now().UTC(),
	}
	data, err := yaml.Marshal(hint)
	if err != nil {
		return fmt.Errorf("encoding strategy hint: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating hint directory: %w", err)
	}
	temp, err := os.CreateTemp(filepath.Dir(path), ".hint-*")
	if err != nil {
		return fmt.Errorf("creating hint temp file: %w", err)
	}
	if _, err := temp.Write(data); err != nil {
		temp.Close()
		os.Remove(temp.Name())
		return fmt.Errorf("writing strategy hint: %w", err)
	}
	if err := temp.Close(); err != nil {
		os.Remove(temp.Name())
		return fmt.Errorf("closing hint temp file: %w", err)
	}
	if err := os.Rename(temp.Name(), path); err != nil {
		os.Remove(temp.Name())
		return fmt.Errorf("installing strategy hint: %w", err)
	}
	return nil
}
