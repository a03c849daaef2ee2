// Copyright 2024 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

// Package config holds the replica's recognized TOML configuration
// options and their defaults and validation rules.
package config

import (
	"fmt"
	"os"

	"github.com/naoina/toml"
)

// FsyncPolicy selects how aggressively the log fsyncs after an append.
type FsyncPolicy string

const (
	FsyncPerRecord   FsyncPolicy = "per_record"
	FsyncGroupCommit FsyncPolicy = "group_commit"
	FsyncNever       FsyncPolicy = "never"
)

// MetricsExportKind selects where runtime metrics are shipped.
type MetricsExportKind string

const (
	MetricsExportNone       MetricsExportKind = "none"
	MetricsExportPrometheus MetricsExportKind = "prometheus"
	MetricsExportOTLP       MetricsExportKind = "otlp"
	MetricsExportStatsd     MetricsExportKind = "statsd"
)

const maxReplicas = 7

// Config is a replica's full set of recognized options, per spec.md §6.
type Config struct {
	DataDir     string `toml:"data_dir"`
	ReplicaName string `toml:"replica_name"`
	ListenAddr  string `toml:"listen_addr"`
	AdminAddr   string `toml:"admin_addr"`
	Peers       []string `toml:"peers"`

	ClusterSize uint16 `toml:"cluster_size"`

	SegmentSize int64 `toml:"segment_size"`

	FsyncPolicy        FsyncPolicy `toml:"fsync_policy"`
	GroupCommitMs      uint32      `toml:"group_commit_ms"`

	HeartbeatIntervalMs  uint32 `toml:"heartbeat_interval_ms"`
	ViewChangeTimeoutMs  uint32 `toml:"view_change_timeout_ms"`

	RepairBudget              uint32 `toml:"repair_budget"`
	RepairMaxInflight         uint32 `toml:"repair_max_inflight"`
	ScrubThroughputOpsPerSec  uint32 `toml:"scrub_throughput_ops_per_sec"`

	ReconfigTimeoutMs  uint32 `toml:"reconfig_timeout_ms"`
	MaxClientSessions  uint32 `toml:"max_client_sessions"`

	MetricsExport         MetricsExportKind `toml:"metrics_export"`
	MetricsExportEndpoint string            `toml:"metrics_export_endpoint"`

	TracingEndpoint string `toml:"tracing_endpoint"`
	TracingInsecure bool   `toml:"tracing_insecure"`
}

// Default returns a Config populated with every spec.md-mandated default.
func Default() *Config {
	return &Config{
		DataDir:                  "./kimberlite-data",
		ListenAddr:               "0.0.0.0:7070",
		AdminAddr:                "127.0.0.1:7071",
		ClusterSize:              3,
		SegmentSize:              1 << 30,
		FsyncPolicy:              FsyncGroupCommit,
		GroupCommitMs:            5,
		HeartbeatIntervalMs:      100,
		ViewChangeTimeoutMs:      1000,
		RepairBudget:             64,
		RepairMaxInflight:        8,
		ScrubThroughputOpsPerSec: 50,
		ReconfigTimeoutMs:        30_000,
		MaxClientSessions:        100_000,
		MetricsExport:            MetricsExportNone,
	}
}

// Load reads and parses a TOML config file, filling any unset field with
// Default's value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks invariants the configuration must satisfy before a
// replica may start.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.AdminAddr == "" {
		return fmt.Errorf("admin_addr is required")
	}
	if c.ClusterSize == 0 || c.ClusterSize%2 == 0 {
		return fmt.Errorf("cluster_size must be odd and >= 1, got %d", c.ClusterSize)
	}
	if c.ClusterSize > maxReplicas {
		return fmt.Errorf("cluster_size %d exceeds the maximum of %d replicas", c.ClusterSize, maxReplicas)
	}
	if c.SegmentSize <= 0 {
		return fmt.Errorf("segment_size must be > 0")
	}
	switch c.FsyncPolicy {
	case FsyncPerRecord, FsyncNever:
	case FsyncGroupCommit:
		if c.GroupCommitMs == 0 {
			return fmt.Errorf("group_commit_ms must be > 0 when fsync_policy is group_commit")
		}
	default:
		return fmt.Errorf("fsync_policy must be one of per_record, group_commit, never, got %q", c.FsyncPolicy)
	}
	if c.HeartbeatIntervalMs == 0 {
		return fmt.Errorf("heartbeat_interval_ms must be > 0")
	}
	if c.ViewChangeTimeoutMs <= c.HeartbeatIntervalMs {
		return fmt.Errorf("view_change_timeout_ms (%d) must exceed heartbeat_interval_ms (%d)", c.ViewChangeTimeoutMs, c.HeartbeatIntervalMs)
	}
	if c.RepairBudget == 0 {
		return fmt.Errorf("repair_budget must be > 0")
	}
	if c.RepairMaxInflight == 0 {
		return fmt.Errorf("repair_max_inflight must be > 0")
	}
	if c.ScrubThroughputOpsPerSec == 0 {
		return fmt.Errorf("scrub_throughput_ops_per_sec must be > 0")
	}
	if c.ReconfigTimeoutMs == 0 {
		return fmt.Errorf("reconfig_timeout_ms must be > 0")
	}
	if c.MaxClientSessions == 0 {
		return fmt.Errorf("max_client_sessions must be > 0")
	}
	switch c.MetricsExport {
	case MetricsExportNone, MetricsExportPrometheus:
	case MetricsExportOTLP, MetricsExportStatsd:
		if c.MetricsExportEndpoint == "" {
			return fmt.Errorf("metrics_export_endpoint is required when metrics_export is %q", c.MetricsExport)
		}
	default:
		return fmt.Errorf("metrics_export must be one of none, prometheus, otlp, statsd, got %q", c.MetricsExport)
	}
	return nil
}
