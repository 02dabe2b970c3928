// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package conn

import (
	"fmt"

	"github.com/danos/tsd/logging"
	"github.com/danos/utils/audit"
)

var auditLog = logging.New("audit")

// LoginUID resolves the audit login uid of the process that owns c,
// the generalization of server/conn.go's getLoginUid: daemons and boot
// processes carry no login uid (audit reports the bitwise complement of
// zero for "unset"), which this reports as ok=false rather than an
// error, since a connecting process with no login session is common
// for this module-library's embedders.
func (c *Connection) LoginUID() (uid uint32, ok bool) {
	u, err := audit.GetPidLoginuid(int32(c.Pid))
	if err != nil {
		return 0, false
	}
	if u == ^uint32(0) {
		return 0, false
	}
	return u, true
}

// LogCommit emits an audit record for one committed (module, datastore)
// transaction (SPEC_FULL.md's "Audit logging of commits", grounded on
// server/aaa.go's per-commit audit.UserLog emission). This module's
// dependency set carries github.com/danos/utils/audit's record types
// and GetPidLoginuid, but not the Auditer sink interface itself (that
// lives in github.com/danos/config/auth, outside this repo's pack), so
// the record is rendered through the ambient logger instead of a
// dedicated audit sink -- see DESIGN.md.
func (c *Connection) LogCommit(module, datastore string, eventID uint64) {
	uid, _ := c.LoginUID()
	rec := audit.UserLog{
		Type:   audit.LOG_TYPE_USER_CFG,
		Msg:    fmt.Sprintf("module %s datastore %s committed by uid %d (event %d)", module, datastore, uid, eventID),
		Result: 1,
	}
	auditLog.Debugf("%s", rec.Msg)
}
