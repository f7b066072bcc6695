// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package world

import "time"

// DoctorReportVersion is bumped when the report shape changes in a way
// consumers must distinguish.
const DoctorReportVersion = 1

// HostReadiness describes the host facilities isolation depends on,
// independent of any particular strategy.
type HostReadiness struct {
	KernelRelease          string `json:"kernel_release"`
	Root                   bool   `json:"root"`
	OverlayfsRegistered    bool   `json:"overlayfs_registered"`
	UserNamespacesEnabled  bool   `json:"user_namespaces_enabled"`
	FuseDeviceAvailable    bool   `json:"fuse_device_available"`
	FuseOverlayfsAvailable bool   `json:"fuse_overlayfs_available"`
	FuseOverlayfsPath      string `json:"fuse_overlayfs_path,omitempty"`
	LandlockSupported      bool   `json:"landlock_supported"`
	LandlockABI            int    `json:"landlock_abi,omitempty"`
}

// StrategyReadiness is the probed verdict for one strategy. Static
// capability checks never substitute for the probe; both appear in the
// report so a reader can see when they disagree.
type StrategyReadiness struct {
	Strategy Strategy    `json:"strategy"`
	Healthy  bool        `json:"healthy"`
	Reason   ProbeReason `json:"reason"`
	Detail   string      `json:"detail,omitempty"`
}

// DoctorReport is the full readiness report produced by the doctor
// operation: host facilities plus a live probe of every strategy in
// preference order.
type DoctorReport struct {
	SchemaVersion int                 `json:"schema_version"`
	CollectedAt   time.Time           `json:"collected_at"`
	Host          HostReadiness       `json:"host"`
	Strategies    []StrategyReadiness `json:"strategies"`

	// Selected is the strategy the fallback controller would choose
	// right now, empty when none is viable.
	Selected Strategy `json:"selected,omitempty"`

	// OK is true when at least one strategy probed healthy.
	OK bool `json:"ok"`
}
