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

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() must validate cleanly: %v", err)
	}
}

func TestValidateRejectsEvenClusterSize(t *testing.T) {
	c := Default()
	c.ClusterSize = 4
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for even cluster_size")
	}
}

func TestValidateRejectsClusterSizeOverMax(t *testing.T) {
	c := Default()
	c.ClusterSize = 9
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for cluster_size exceeding the replica maximum")
	}
}

func TestValidateRequiresGroupCommitMs(t *testing.T) {
	c := Default()
	c.FsyncPolicy = FsyncGroupCommit
	c.GroupCommitMs = 0
	if err := c.Validate(); err == nil {
		t.Fatal("expected error when group_commit_ms is 0 under group_commit policy")
	}
}

func TestValidateRequiresViewChangeTimeoutExceedHeartbeat(t *testing.T) {
	c := Default()
	c.HeartbeatIntervalMs = 1000
	c.ViewChangeTimeoutMs = 500
	if err := c.Validate(); err == nil {
		t.Fatal("expected error when view_change_timeout_ms <= heartbeat_interval_ms")
	}
}

func TestValidateRequiresEndpointForRemoteExport(t *testing.T) {
	c := Default()
	c.MetricsExport = MetricsExportOTLP
	c.MetricsExportEndpoint = ""
	if err := c.Validate(); err == nil {
		t.Fatal("expected error when otlp export has no endpoint")
	}
}

func TestLoadParsesTOMLOverridingDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kimberlite.toml")
	body := `
data_dir = "/var/lib/kimberlite"
cluster_size = 5
segment_size = 536870912
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/var/lib/kimberlite" {
		t.Fatalf("got data_dir %q", cfg.DataDir)
	}
	if cfg.ClusterSize != 5 {
		t.Fatalf("got cluster_size %d", cfg.ClusterSize)
	}
	if cfg.SegmentSize != 536870912 {
		t.Fatalf("got segment_size %d", cfg.SegmentSize)
	}
	// Untouched fields keep Default()'s value.
	if cfg.HeartbeatIntervalMs != Default().HeartbeatIntervalMs {
		t.Fatalf("expected default heartbeat_interval_ms to survive, got %d", cfg.HeartbeatIntervalMs)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config should validate: %v", err)
	}
}
