// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package conn

import (
	"sync"
	"time"

	"github.com/danos/tsd/errkind"
	"github.com/danos/tsd/event"
	"github.com/danos/tsd/tree"
)

// Session records everything the spec attributes to one session (§4.H):
// target datastore, a pending edit tree per module, originator metadata,
// last error info, and, when acting as an event session, the event-time
// fields and an optional notification-buffer thread.
type Session struct {
	ID     uint64
	ConnID uint64

	mu         sync.Mutex
	datastore  string
	pending    map[string]*tree.Node // keyed by module
	originator event.Originator
	lastErr    error
	errData    []byte

	// Event-session fields, set only when this session is the one a
	// subscription callback runs under.
	isEventSession bool
	eventID        uint64

	notif *NotifBuffer
}

func newSession(id, connID uint64, ds string) *Session {
	return &Session{
		ID:        id,
		ConnID:    connID,
		datastore: ds,
		pending:   make(map[string]*tree.Node),
	}
}

// Datastore returns the session's current target datastore.
func (s *Session) Datastore() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.datastore
}

// SwitchDS retargets the session to a different datastore, dropping any
// pending edits (switching datastores abandons the in-progress edit the
// same way the teacher's session/edit_config.go starts a fresh candidate
// tree per datastore).
func (s *Session) SwitchDS(ds string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datastore = ds
	s.pending = make(map[string]*tree.Node)
}

// SetOriginator records the originator name/opaque data blob relayed
// into every event envelope this session publishes (§4.G "Originator
// relay").
func (s *Session) SetOriginator(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.originator = event.Originator{Name: name, Data: data}
}

func (s *Session) Originator() event.Originator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.originator
}

// PushErrorData lets a subscriber callback attach an opaque error-data
// blob that is returned to the originator alongside CALLBACK_FAILED
// (§7's propagation policy).
func (s *Session) PushErrorData(blob []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errData = blob
}

// SetError records the structured error the public API boundary stores
// on the session for later retrieval (§7 "a structured error record...
// is stored on the session and returned to the caller; subsequent
// get_error retrieves it").
func (s *Session) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
}

// GetError returns the last error recorded on the session, and its
// attached error-data blob if any.
func (s *Session) GetError() (error, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr, s.errData
}

// PendingEdit returns the session's working edit tree for module,
// creating an empty one (rooted at root) the first time it's touched.
func (s *Session) PendingEdit(module string, root *tree.Node) *tree.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.pending[module]
	if !ok {
		n = root
		s.pending[module] = n
	}
	return n
}

// SetPendingEdit replaces the working edit tree for module, as produced
// by a successful edit.Apply.
func (s *Session) SetPendingEdit(module string, n *tree.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[module] = n
}

// DiscardChanges drops every module's pending edit tree (§6
// "discard_changes(sess)").
func (s *Session) DiscardChanges() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[string]*tree.Node)
}

// PendingModules lists every module that has a working tree recorded on
// the session (including one recorded by PendingEdit without any edit
// applied), in no particular order.
func (s *Session) PendingModules() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.pending))
	for m := range s.pending {
		out = append(out, m)
	}
	return out
}

// MarkEventSession flags the session as the one a subscription callback
// is running under, and records the event id to correlate phases.
func (s *Session) MarkEventSession(eventID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isEventSession = true
	s.eventID = eventID
}

func (s *Session) EventInfo() (isEvent bool, eventID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isEventSession, s.eventID
}

// EnableNotifBuffer starts the session's notification-buffer thread
// (§4.H "optional"), coalescing pushed records into disk writes via
// write.
func (s *Session) EnableNotifBuffer(write func(rec []byte) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notif != nil {
		return
	}
	s.notif = NewNotifBuffer(write)
}

// PushNotification enqueues a record on the session's notification
// buffer; it is a no-op (and an error) if no buffer is enabled.
func (s *Session) PushNotification(rec []byte, deadline time.Time) error {
	s.mu.Lock()
	nb := s.notif
	s.mu.Unlock()
	if nb == nil {
		return errkind.New(errkind.OperationFailed, "", "session %d has no notification buffer", s.ID)
	}
	return nb.Push(rec, deadline)
}

func (s *Session) stopNotifBuffer() {
	s.mu.Lock()
	nb := s.notif
	s.notif = nil
	s.mu.Unlock()
	if nb != nil {
		nb.Stop()
	}
}
