// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package store

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/danos/tsd/errkind"
	"github.com/danos/utils/os/group"
)

// Perm is one file's configured POSIX owner/group/mode (§6
// "Permissions. Each datastore file carries standard POSIX owner/group/
// mode, configurable per module").
type Perm struct {
	Owner string
	Group string
	Mode  os.FileMode
}

// DefaultPerm is used for any module that hasn't been given an explicit
// set_module_access configuration.
func DefaultPerm() Perm { return Perm{Mode: 0o640} }

// WriteAtomic rewrites path by writing to a sibling temp file and
// renaming over it (§6/§4.G "the on-disk file is rewritten atomically
// (write-temp + rename)"), applying perm's mode to the temp file before
// the rename. perm's Owner and Group are not applied to the file.
func WriteAtomic(path string, data []byte, perm Perm) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errkind.New(errkind.Sys, "", "creating %s: %v", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errkind.New(errkind.Sys, "", "creating temp file for %s: %v", path, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errkind.New(errkind.Sys, "", "writing %s: %v", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errkind.New(errkind.Sys, "", "syncing %s: %v", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errkind.New(errkind.Sys, "", "closing %s: %v", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, perm.Mode); err != nil {
		os.Remove(tmpPath)
		return errkind.New(errkind.Sys, "", "chmod %s: %v", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errkind.New(errkind.Sys, "", "renaming %s to %s: %v", tmpPath, path, err)
	}
	return nil
}

// Read reads the raw contents of a datastore file; a missing file is
// reported as NOT_FOUND rather than a bare os.ErrNotExist so callers can
// use errkind.Is uniformly.
func Read(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errkind.New(errkind.NotFound, "", "%s does not exist", path)
		}
		return nil, errkind.New(errkind.Sys, "", "reading %s: %v", path, err)
	}
	return b, nil
}

// CheckAccess enforces §6's permission policy: the caller's uid/gid must
// satisfy perm's owner/group/mode bits for the requested access (read
// for gets, write for sets/subscribe-with-enabled). Root always passes.
// The configured owner uid passes only when perm.Mode has the owner bit
// for the access; otherwise the group and other bits are checked.
func CheckAccess(perm Perm, uid uint32, write bool) error {
	if uid == 0 {
		return nil
	}
	ownerBit, groupBit, otherBit := os.FileMode(0o400), os.FileMode(0o040), os.FileMode(0o004)
	if write {
		ownerBit, groupBit, otherBit = 0o200, 0o020, 0o002
	}

	if perm.Owner != "" {
		if ownerUID, err := strconv.Atoi(perm.Owner); err == nil && uint32(ownerUID) == uid {
			if perm.Mode&ownerBit != 0 {
				return nil
			}
		}
	}
	if perm.Group != "" {
		groups, err := group.LookupUid(strconv.Itoa(int(uid)))
		if err == nil {
			for _, g := range groups {
				if g.Name == perm.Group {
					if perm.Mode&groupBit != 0 {
						return nil
					}
				}
			}
		}
	}
	if perm.Mode&otherBit != 0 {
		return nil
	}
	return errkind.New(errkind.Unauthorized, "", "missing required permission bit")
}
