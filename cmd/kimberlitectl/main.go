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

// kimberlitectl is the operator CLI: it issues administrative commands
// (membership changes, checkpoints, compaction) against a running
// kimberlited replica's admin endpoint and exits with a code that names
// the failure class, per spec.md §6.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"
)

// Exit codes. 0 is success; everything else names a distinct failure
// class so a calling script can react without scraping stderr text.
const (
	exitOK         = 0
	exitValidation = 1
	exitTimeout    = 2
	exitRejected   = 3
	exitAborted    = 4
)

var adminAddrFlag = &cli.StringFlag{
	Name:    "admin-addr",
	Usage:   "host:port of the target replica's admin endpoint",
	Value:   "127.0.0.1:7071",
	Aliases: []string{"a"},
}

// adminRequest mirrors runtime.adminRequest's JSON shape; the two types
// are intentionally not shared, since a CLI speaking to a remote daemon
// over HTTP has no business importing that daemon's internal package.
type adminRequest struct {
	ReplicaID      uint64   `json:"replica_id,omitempty"`
	Add            []uint64 `json:"add,omitempty"`
	Remove         []uint64 `json:"remove,omitempty"`
	Threshold      uint64   `json:"threshold,omitempty"`
	Segments       []uint32 `json:"segments,omitempty"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"`
}

type adminResponse struct {
	OK    bool   `json:"ok"`
	Op    uint64 `json:"op,omitempty"`
	Class string `json:"class,omitempty"`
	Error string `json:"error,omitempty"`
}

func main() {
	app := &cli.App{
		Name:  "kimberlitectl",
		Usage: "administer a Kimberlite cluster",
		Flags: []cli.Flag{adminAddrFlag},
		Commands: []*cli.Command{
			{
				Name:      "add-replica",
				Usage:     "add a voting replica to the cluster",
				ArgsUsage: "<replica-id>",
				Action:    cmdAddReplica,
			},
			{
				Name:      "remove-replica",
				Usage:     "remove a voting replica from the cluster",
				ArgsUsage: "<replica-id>",
				Action:    cmdRemoveReplica,
			},
			{
				Name:  "replace",
				Usage: "atomically add and remove voting replicas in one reconfiguration",
				Flags: []cli.Flag{
					&cli.Uint64SliceFlag{Name: "add", Usage: "replica id(s) to add"},
					&cli.Uint64SliceFlag{Name: "remove", Usage: "replica id(s) to remove"},
				},
				Action: cmdReplace,
			},
			{
				Name:      "promote-standby",
				Usage:     "promote a caught-up standby to a voting replica",
				ArgsUsage: "<replica-id>",
				Flags: []cli.Flag{
					&cli.Uint64Flag{Name: "threshold", Usage: "maximum allowed lag in ops (0 = daemon default)"},
				},
				Action: cmdPromoteStandby,
			},
			{
				Name:   "checkpoint",
				Usage:  "force a checkpoint of the current kernel state",
				Action: cmdCheckpoint,
			},
			{
				Name:  "compact",
				Usage: "reclaim obsolete log segments",
				Flags: []cli.Flag{
					&cli.Uint64SliceFlag{Name: "segment", Usage: "segment id(s) to compact"},
				},
				Action: cmdCompact,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitValidation)
	}
}

func replicaIDArg(c *cli.Context) (uint64, error) {
	if c.NArg() != 1 {
		return 0, fmt.Errorf("expected exactly one replica id argument")
	}
	var id uint64
	if _, err := fmt.Sscanf(c.Args().First(), "%d", &id); err != nil {
		return 0, fmt.Errorf("invalid replica id %q: %w", c.Args().First(), err)
	}
	return id, nil
}

func cmdAddReplica(c *cli.Context) error {
	id, err := replicaIDArg(c)
	if err != nil {
		return failValidation(err)
	}
	return post(c, "/admin/add_replica", adminRequest{ReplicaID: id})
}

func cmdRemoveReplica(c *cli.Context) error {
	id, err := replicaIDArg(c)
	if err != nil {
		return failValidation(err)
	}
	return post(c, "/admin/remove_replica", adminRequest{ReplicaID: id})
}

func cmdReplace(c *cli.Context) error {
	return post(c, "/admin/replace", adminRequest{
		Add:    c.Uint64Slice("add"),
		Remove: c.Uint64Slice("remove"),
	})
}

func cmdPromoteStandby(c *cli.Context) error {
	id, err := replicaIDArg(c)
	if err != nil {
		return failValidation(err)
	}
	return post(c, "/admin/promote_standby", adminRequest{ReplicaID: id, Threshold: c.Uint64("threshold")})
}

func cmdCheckpoint(c *cli.Context) error {
	return post(c, "/admin/checkpoint", adminRequest{})
}

func cmdCompact(c *cli.Context) error {
	segments := c.Uint64Slice("segment")
	out := make([]uint32, len(segments))
	for i, s := range segments {
		out[i] = uint32(s)
	}
	return post(c, "/admin/compact", adminRequest{Segments: out})
}

// post sends req to path on the target replica's admin endpoint, prints
// "ok, op=N" on success or the error and its class on failure, and exits
// with a code matching that failure class.
func post(c *cli.Context, path string, req adminRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return failValidation(err)
	}
	url := fmt.Sprintf("http://%s%s", c.String(adminAddrFlag.Name), path)
	httpClient := &http.Client{Timeout: 45 * time.Second}
	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "kimberlitectl: %v\n", err)
		os.Exit(exitAborted)
	}
	defer resp.Body.Close()

	var out adminResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Fprintf(os.Stderr, "kimberlitectl: decoding response: %v\n", err)
		os.Exit(exitAborted)
	}

	if out.OK {
		fmt.Printf("ok, op=%d\n", out.Op)
		return nil
	}
	fmt.Fprintf(os.Stderr, "kimberlitectl: %s (%s)\n", out.Error, out.Class)
	os.Exit(classToExitCode(out.Class))
	return nil
}

func classToExitCode(class string) int {
	switch class {
	case "validation":
		return exitValidation
	case "timeout":
		return exitTimeout
	case "rejected":
		return exitRejected
	default:
		return exitAborted
	}
}

func failValidation(err error) error {
	fmt.Fprintf(os.Stderr, "kimberlitectl: %v\n", err)
	os.Exit(exitValidation)
	return nil
}
