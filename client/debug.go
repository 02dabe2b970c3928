// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package client

import "github.com/danos/tsd/logging"

// SetDebug sets the log level for one named logging subsystem (the
// "Debug/log-level admin RPC" SPEC_FULL.md calls out, grounded on the
// teacher's configd "set debug"/"debug level" RPCs over common's log
// registry). name matches what logging.New was called with elsewhere
// in this module ("client", "audit", "ctl" and "daemon").
func (cl *Client) SetDebug(name string, level logging.Level) {
	logging.SetLevel(name, level)
}

// DebugStatus reports the current level of every logging subsystem
// created with logging.New or named in a SetLevel call, one
// tab-separated "name level" line per subsystem under a header.
func (cl *Client) DebugStatus() string {
	return logging.Status()
}
