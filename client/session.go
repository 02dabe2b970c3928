// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package client

import (
	"sync"

	"github.com/danos/tsd/conn"
	"github.com/danos/tsd/tree"
)

// Session wraps a conn.Session with the per-module accumulated diffs
// the public API needs between set_item/delete_item/move_item calls and
// the eventual apply_changes (§6 "Data" group).
type Session struct {
	cl *Client
	cs *conn.Session

	mu    sync.Mutex
	diffs map[string]*tree.Node // accumulated, not-yet-applied diff per module
}

// StartSession begins a session targeting datastore (§6 "start(conn, ds) -> sess").
func StartSession(cl *Client, datastore string) (*Session, error) {
	cs, err := cl.conn.StartSession(datastore)
	if err != nil {
		return nil, err
	}
	return &Session{cl: cl, cs: cs, diffs: make(map[string]*tree.Node)}, nil
}

// StopSession ends sess, releasing any DS-locks it held (§6 "stop(sess)").
func StopSession(sess *Session) error {
	return sess.cl.conn.StopSession(sess.cs.ID)
}

// SwitchDS retargets sess to a different datastore, discarding any
// pending (unapplied) edits (§6 "switch_ds(sess, ds)").
func (s *Session) SwitchDS(ds string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cs.SwitchDS(ds)
	s.diffs = make(map[string]*tree.Node)
}

// SetOriginator records the name/opaque-data pair relayed to every
// subscriber this session's commits notify (§6 "set_originator").
func (s *Session) SetOriginator(name string, data []byte) {
	s.cs.SetOriginator(name, data)
}

// PushErrorData attaches an opaque error-data blob a subscriber callback
// wants returned to this session's caller alongside CALLBACK_FAILED
// (§6 "push_error_data").
func (s *Session) PushErrorData(blob []byte) {
	s.cs.PushErrorData(blob)
}

// GetError retrieves the last structured error recorded on sess, and its
// attached error-data blob if any (§7 "get_error").
func (s *Session) GetError() (error, []byte) {
	return s.cs.GetError()
}

// DiscardChanges drops every pending edit without publishing it (§6
// "discard_changes(sess)").
func (s *Session) DiscardChanges() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cs.DiscardChanges()
	s.diffs = make(map[string]*tree.Node)
}

func (s *Session) pendingModulesWithDiff() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.diffs))
	for m, d := range s.diffs {
		if d != nil {
			out = append(out, m)
		}
	}
	return out
}
