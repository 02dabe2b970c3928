// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package store

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/danos/tsd/errkind"
)

// MaxNotifFileBytes bounds one notification replay file (§6 "bounded
// per-file size (≤ 1024 KiB by default)").
const MaxNotifFileBytes = 1024 * 1024

// NotifWriter appends newline-terminated notification records to
// length-bounded replay files, rolling to a new file (with a fresh
// timestamp range in its name) once the current one would exceed
// MaxNotifFileBytes.
type NotifWriter struct {
	root   Root
	module string
	perm   Perm

	f       *os.File
	written int
	fromTS  int64
	toTS    int64
}

func NewNotifWriter(root Root, module string, perm Perm) *NotifWriter {
	return &NotifWriter{root: root, module: module, perm: perm}
}

// Write appends one record (with ts as its timestamp) to the current
// replay file, rolling to a new one if needed.
func (w *NotifWriter) Write(ts int64, rec []byte) error {
	if w.f == nil || w.written+len(rec)+1 > MaxNotifFileBytes {
		if err := w.roll(ts); err != nil {
			return err
		}
	}
	n, err := w.f.Write(append(rec, '\n'))
	if err != nil {
		return errkind.New(errkind.Sys, "", "writing notif replay file: %v", err)
	}
	w.written += n
	w.toTS = ts
	return nil
}

func (w *NotifWriter) roll(ts int64) error {
	if w.f != nil {
		w.finalize()
	}
	dir := w.root.notifDir()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errkind.New(errkind.Sys, "", "creating %s: %v", dir, err)
	}
	tmpPath := w.root.NotifReplayPath(w.module, ts, ts) + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, w.perm.Mode)
	if err != nil {
		return errkind.New(errkind.Sys, "", "creating %s: %v", tmpPath, err)
	}
	w.f = f
	w.written = 0
	w.fromTS = ts
	w.toTS = ts
	return nil
}

// finalize closes the current file and renames it to its final
// <from_ts>-<to_ts> name now that the range is known.
func (w *NotifWriter) finalize() error {
	if w.f == nil {
		return nil
	}
	tmpPath := w.f.Name()
	w.f.Close()
	final := w.root.NotifReplayPath(w.module, w.fromTS, w.toTS)
	if err := os.Rename(tmpPath, final); err != nil {
		return errkind.New(errkind.Sys, "", "finalizing notif replay file: %v", err)
	}
	w.f = nil
	return nil
}

// Close finalizes the in-progress replay file, if any.
func (w *NotifWriter) Close() error { return w.finalize() }

// ReplayFiles lists a module's replay files overlapping [from, to], in
// ascending from_ts order, for a subscription with a past start_time
// (§4.G "replay is supplied from the persistent store when a
// subscription has a past start_time").
func ReplayFiles(root Root, module string, from, to int64) ([]string, error) {
	entries, err := os.ReadDir(root.notifDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errkind.New(errkind.Sys, "", "listing notif dir: %v", err)
	}
	type ranged struct {
		path           string
		fromTS, toTS   int64
	}
	var matches []ranged
	prefix := module + "."
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rangePart := strings.TrimPrefix(name, prefix)
		parts := strings.SplitN(rangePart, "-", 2)
		if len(parts) != 2 {
			continue
		}
		fts, err1 := strconv.ParseInt(parts[0], 10, 64)
		tts, err2 := strconv.ParseInt(parts[1], 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		if tts < from || fts > to {
			continue
		}
		matches = append(matches, ranged{filepath.Join(root.notifDir(), name), fts, tts})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].fromTS < matches[j].fromTS })
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.path
	}
	return out, nil
}

// ReadRecords reads every newline-terminated record from a replay file.
func ReadRecords(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errkind.New(errkind.Sys, "", "opening %s: %v", path, err)
	}
	defer f.Close()
	var out [][]byte
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), MaxNotifFileBytes)
	for sc.Scan() {
		line := make([]byte, len(sc.Bytes()))
		copy(line, sc.Bytes())
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, errkind.New(errkind.Sys, "", "reading %s: %v", path, err)
	}
	return out, nil
}
