// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package store implements the on-disk file formats of §6: persisted
// startup/running datastore files, the operational overlay, bounded
// notification-replay files, and cached YANG schema text, all rewritten
// atomically (write-temp + rename). It generalizes the teacher's
// session/load.go persisted-config load/rewrite path onto the spec's
// file layout, encoding data trees with github.com/danos/encoding/
// rfc7951 the way the teacher's own config/load path produces RFC 7951
// JSON for northbound consumers.
package store

import (
	"fmt"
	"path/filepath"
)

// Root is one installation's on-disk file tree, rooted at a
// REPOSITORY_PATH-configured directory (§6 "Environment").
type Root struct {
	Path string
}

func NewRoot(path string) Root { return Root{Path: path} }

func (r Root) dataDir() string  { return filepath.Join(r.Path, "data") }
func (r Root) notifDir() string { return filepath.Join(r.Path, "data", "notif") }
func (r Root) yangDir() string  { return filepath.Join(r.Path, "yang") }

// StartupPath is <root>/data/<module>.startup.
func (r Root) StartupPath(module string) string {
	return filepath.Join(r.dataDir(), module+".startup")
}

// RunningPath is <root>/data/<module>.running.
func (r Root) RunningPath(module string) string {
	return filepath.Join(r.dataDir(), module+".running")
}

// OperationalPath is <root>/data/<module>.operational.
func (r Root) OperationalPath(module string) string {
	return filepath.Join(r.dataDir(), module+".operational")
}

// NotifReplayPath is <root>/data/notif/<module>.<from_ts>-<to_ts>.
func (r Root) NotifReplayPath(module string, fromTS, toTS int64) string {
	return filepath.Join(r.notifDir(), fmt.Sprintf("%s.%d-%d", module, fromTS, toTS))
}

// YANGCachePath is <root>/yang/<module>@<revision>.yang.
func (r Root) YANGCachePath(module, revision string) string {
	return filepath.Join(r.yangDir(), fmt.Sprintf("%s@%s.yang", module, revision))
}
