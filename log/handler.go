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

package log

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// terminalHandler writes human-readable, optionally colorized lines, the
// way the teacher's daemons report to stderr during interactive runs.
type terminalHandler struct {
	mu  sync.Mutex
	out io.Writer
}

// NewTerminalHandler returns a Handler writing to w, colorizing output when
// w is a TTY (mirroring the teacher's use of go-colorable/go-isatty).
func NewTerminalHandler(w io.Writer) Handler {
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		w = colorable.NewColorable(f)
	}
	return &terminalHandler{out: w}
}

func (h *terminalHandler) Log(r Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintf(h.out, "%s [%s] %s%s\n",
		r.Time.Format("2006-01-02T15:04:05.000"), r.Level, r.Msg, formatCtx(r.Ctx))
	return err
}

// multiHandler fans a Record out to every child handler, e.g. terminal +
// rotating audit file.
type multiHandler struct {
	children []Handler
}

// MultiHandler combines handlers so every Record reaches all of them.
func MultiHandler(handlers ...Handler) Handler {
	return &multiHandler{children: handlers}
}

func (h *multiHandler) Log(r Record) error {
	var firstErr error
	for _, c := range h.children {
		if err := c.Log(r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// fileHandler writes newline-delimited, machine-parseable log lines to a
// rotating file, for the compliance audit sink that kimberlited opens
// when --audit-log is set, independent of its terminal verbosity.
type fileHandler struct {
	mu  sync.Mutex
	out io.Writer
}

// FileHandlerConfig configures the rotating audit-log sink.
type FileHandlerConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewRotatingFileHandler returns a Handler that writes to a size- and
// age-rotated file via lumberjack, matching the teacher's use of
// gopkg.in/natefinch/lumberjack.v2 for long-running daemon logs.
func NewRotatingFileHandler(cfg FileHandlerConfig) Handler {
	lj := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return &fileHandler{out: lj}
}

func (h *fileHandler) Log(r Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintf(h.out, "%s level=%s msg=%q%s\n",
		r.Time.Format("2006-01-02T15:04:05.000Z07:00"), r.Level, r.Msg, formatCtx(r.Ctx))
	return err
}
