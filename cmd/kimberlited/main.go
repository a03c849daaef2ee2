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

// kimberlited is the replica daemon: it loads a cluster configuration,
// opens the durable log and session/checkpoint store, and runs a vsr
// replica under a runtime.Runtime until signaled to stop.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"

	"github.com/kimberlitedb/kimberlite/common"
	"github.com/kimberlitedb/kimberlite/config"
	"github.com/kimberlitedb/kimberlite/kernel"
	"github.com/kimberlitedb/kimberlite/ledger"
	"github.com/kimberlitedb/kimberlite/log"
	"github.com/kimberlitedb/kimberlite/rawdb"
	"github.com/kimberlitedb/kimberlite/runtime"
	"github.com/kimberlitedb/kimberlite/session"
	"github.com/kimberlitedb/kimberlite/vsr"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to a TOML cluster configuration file (overrides --data-dir, --listen-addr and --fsync-policy when set)",
	}
	dataDirFlag = &cli.StringFlag{
		Name:  "data-dir",
		Usage: "Data directory for the log, session table, and checkpoints",
		Value: "./kimberlite-data",
	}
	listenAddrFlag = &cli.StringFlag{
		Name:  "listen-addr",
		Usage: "Address this replica listens on for peer traffic",
		Value: "0.0.0.0:7070",
	}
	replicaIDFlag = &cli.Uint64Flag{
		Name:     "replica-id",
		Usage:    "This replica's id within the cluster",
		Required: true,
	}
	peersFlag = &cli.StringFlag{
		Name:  "peers",
		Usage: "Comma-separated id=host:port pairs for every other voting replica",
	}
	fsyncPolicyFlag = &cli.StringFlag{
		Name:  "fsync-policy",
		Usage: "per_record, group_commit, or never",
		Value: string(config.FsyncGroupCommit),
	}
	auditLogPathFlag = &cli.StringFlag{
		Name:  "audit-log",
		Usage: "Path to the rotating compliance audit log (empty disables the file sink)",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "trace, debug, info, warn, error, crit",
		Value: "info",
	}
)

func main() {
	app := &cli.App{
		Name:   "kimberlited",
		Usage:  "run a Kimberlite replica",
		Flags:  []cli.Flag{configFlag, dataDirFlag, listenAddrFlag, replicaIDFlag, peersFlag, fsyncPolicyFlag, auditLogPathFlag, logLevelFlag},
		Action: runDaemon,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(c *cli.Context) error {
	level, err := log.ParseLevel(c.String(logLevelFlag.Name))
	if err != nil {
		return fmt.Errorf("kimberlited: %w", err)
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandler(os.Stderr), level))

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("kimberlited: invalid configuration: %w", err)
	}

	self := common.ReplicaId(c.Uint64(replicaIDFlag.Name))
	peerAddrs, err := parsePeers(c.String(peersFlag.Name))
	if err != nil {
		return fmt.Errorf("kimberlited: %w", err)
	}
	members := append([]common.ReplicaId{self}, peerIDs(peerAddrs)...)
	memberConfig, err := vsr.NewConfig(members)
	if err != nil {
		return fmt.Errorf("kimberlited: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("kimberlited: create data dir: %w", err)
	}

	ledgerLog, err := ledger.Open(cfg.DataDir+"/log", cfg.SegmentSize, ledger.NewMemIndex())
	if err != nil {
		return fmt.Errorf("kimberlited: open log: %w", err)
	}
	db, err := rawdb.Open(cfg.DataDir + "/db")
	if err != nil {
		return fmt.Errorf("kimberlited: open database: %w", err)
	}

	var auditLog log.Logger
	if path := c.String(auditLogPathFlag.Name); path != "" {
		auditLog = log.NewLogger(log.NewRotatingFileHandler(log.FileHandlerConfig{
			Path: path, MaxSizeMB: 100, MaxBackups: 10, MaxAgeDays: 90, Compress: true,
		}), log.LevelInfo)
	}

	rt, err := runtime.New(runtime.Deps{
		Config:      cfg,
		Log:         ledgerLog,
		DB:          db,
		Sessions:    session.NewTable(int(cfg.MaxClientSessions)),
		KernelState: kernel.NewState(1024),
		Self:        self,
		Members:     memberConfig,
		PeerAddrs:   peerAddrs,
		AuditLog:    auditLog,
	})
	if err != nil {
		return fmt.Errorf("kimberlited: %w", err)
	}
	if err := rt.Start(); err != nil {
		return fmt.Errorf("kimberlited: start: %w", err)
	}
	log.Info("kimberlited: started", "replica_id", self, "listen_addr", cfg.ListenAddr, "data_dir", cfg.DataDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("kimberlited: received signal, shutting down", "signal", sig)
	rt.Stop()
	return nil
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String(configFlag.Name); path != "" {
		return config.Load(path)
	}
	cfg := config.Default()
	cfg.DataDir = c.String(dataDirFlag.Name)
	cfg.ListenAddr = c.String(listenAddrFlag.Name)
	cfg.FsyncPolicy = config.FsyncPolicy(c.String(fsyncPolicyFlag.Name))
	return cfg, nil
}

// parsePeers parses "1=host:port,2=host:port" into a replica->address map.
func parsePeers(spec string) (map[common.ReplicaId]string, error) {
	out := make(map[common.ReplicaId]string)
	if spec == "" {
		return out, nil
	}
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		idStr, addr, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("malformed peer entry %q, expected id=host:port", entry)
		}
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed peer id in %q: %w", entry, err)
		}
		out[common.ReplicaId(id)] = addr
	}
	return out, nil
}

func peerIDs(peers map[common.ReplicaId]string) []common.ReplicaId {
	ids := make([]common.ReplicaId, 0, len(peers))
	for id := range peers {
		ids = append(ids, id)
	}
	return ids
}
