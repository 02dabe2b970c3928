// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package shm

import (
	"os"
	"syscall"
)

// IsProcessAlive reports whether pid still names a live process, used by
// the recovery sweep (§4.D "Recovery") to decide whether a subscription
// record's owning connection is still around. Signal 0 performs no
// action beyond existence/permission checks, the standard POSIX idiom.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
