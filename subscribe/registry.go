// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package subscribe

import (
	"encoding/binary"
	"time"

	"github.com/danos/tsd/errkind"
	"github.com/danos/tsd/lock"
	"github.com/danos/tsd/shm"
)

// Flag bits carried on a subscription record (§4.F).
type Flag uint32

const (
	FlagDoneOnly Flag = 1 << iota
	FlagPassive
	FlagUpdate
	FlagOperMerge
	FlagSuspended
)

// ProviderType classifies an operational-get subscription by the schema
// atoms its xpath selects (§4.F).
type ProviderType int32

const (
	ProviderNone ProviderType = iota
	ProviderConfig
	ProviderState
	ProviderMixed
)

// Subscription is the decoded view of one subscription record.
type Subscription struct {
	ID           uint64
	Module       string
	Kind         shm.ChannelKind
	ConnID       uint64
	SessionID    uint64
	PipeID       uint64
	Priority     int32
	Flags        Flag
	Filter       string
	NotifStart   time.Time
	NotifStop    time.Time
	ProviderType ProviderType

	offset int64 // position in the ext region; zero value for not-yet-added
}

func (s Subscription) Has(f Flag) bool { return s.Flags&f != 0 }

const fixedRecordSize = 8 + 4 + 8 + 8 + 8 + 8 + 4 + 4 + 8 + 8 + 4 + 4

func encodeSub(s Subscription, next int64) []byte {
	b := make([]byte, fixedRecordSize+len(s.Filter))
	putI64 := binary.LittleEndian.PutUint64
	putI32 := binary.LittleEndian.PutUint32
	off := 0
	putI64(b[off:], uint64(next))
	off += 8
	putI32(b[off:], uint32(s.Kind))
	off += 4
	putI64(b[off:], s.ID)
	off += 8
	putI64(b[off:], s.ConnID)
	off += 8
	putI64(b[off:], s.SessionID)
	off += 8
	putI64(b[off:], s.PipeID)
	off += 8
	putI32(b[off:], uint32(s.Priority))
	off += 4
	putI32(b[off:], uint32(s.Flags))
	off += 4
	putI64(b[off:], notifNano(s.NotifStart))
	off += 8
	putI64(b[off:], notifNano(s.NotifStop))
	off += 8
	putI32(b[off:], uint32(s.ProviderType))
	off += 4
	putI32(b[off:], uint32(len(s.Filter)))
	off += 4
	copy(b[off:], s.Filter)
	return b
}

func notifNano(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano())
}

func timeFromNano(n uint64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(n))
}

func decodeSub(b []byte, module string) (Subscription, int64) {
	getI64 := binary.LittleEndian.Uint64
	getI32 := binary.LittleEndian.Uint32
	off := 0
	next := int64(getI64(b[off:]))
	off += 8
	kind := shm.ChannelKind(getI32(b[off:]))
	off += 4
	id := getI64(b[off:])
	off += 8
	connID := getI64(b[off:])
	off += 8
	sessID := getI64(b[off:])
	off += 8
	pipeID := getI64(b[off:])
	off += 8
	prio := int32(getI32(b[off:]))
	off += 4
	flags := Flag(getI32(b[off:]))
	off += 4
	start := timeFromNano(getI64(b[off:]))
	off += 8
	stop := timeFromNano(getI64(b[off:]))
	off += 8
	provider := ProviderType(int32(getI32(b[off:])))
	off += 4
	flen := int(getI32(b[off:]))
	off += 4
	filter := string(b[off : off+flen])
	return Subscription{
		ID: id, Module: module, Kind: kind, ConnID: connID, SessionID: sessID,
		PipeID: pipeID, Priority: prio, Flags: flags, Filter: filter,
		NotifStart: start, NotifStop: stop, ProviderType: provider,
	}, next
}

// Registry is the per-installation subscription directory: add/remove
// splice records into/out of the owning module's linked list in the
// extended region under the ext-remap write lock, per §4.F.
type Registry struct {
	main *shm.MainRegion
	ext  *shm.ExtRegion
	lm   *lock.Manager

	metaNotify func(module string, kind shm.ChannelKind, subID uint64, meta MetaEvent)
}

func NewRegistry(main *shm.MainRegion, ext *shm.ExtRegion, lm *lock.Manager) *Registry {
	return &Registry{main: main, ext: ext, lm: lm}
}

// MetaEvent is one of the lifecycle notices §4.F says publication
// "synthesizes... to the owner's callback" for a notification
// subscription transitioning suspended state.
type MetaEvent int

const (
	MetaSuspended MetaEvent = iota
	MetaResumed
)

func (m MetaEvent) String() string {
	if m == MetaSuspended {
		return "suspended"
	}
	return "resumed"
}

// SetMetaNotifier installs the callback Suspend/Resume use to deliver a
// suspended/resumed meta-event to a notification subscription's owner
// (package client, which alone knows how to reach a registered
// subscriber's callback or buffer). Unset by default: the registry only
// ever flips the shared-memory flag on its own.
func (r *Registry) SetMetaNotifier(fn func(module string, kind shm.ChannelKind, subID uint64, meta MetaEvent)) {
	r.metaNotify = fn
}

func headField(rec shm.ModuleRecord, kind shm.ChannelKind) int64 {
	switch kind {
	case shm.ChannelChange:
		return rec.ChangeSubHead
	case shm.ChannelOperGet:
		return rec.OperSubHead
	case shm.ChannelRPC:
		return rec.RPCSubHead
	case shm.ChannelNotif:
		return rec.NotifSubHead
	}
	return -1
}

func setHeadField(rec *shm.ModuleRecord, kind shm.ChannelKind, off int64) {
	switch kind {
	case shm.ChannelChange:
		rec.ChangeSubHead = off
	case shm.ChannelOperGet:
		rec.OperSubHead = off
	case shm.ChannelRPC:
		rec.RPCSubHead = off
	case shm.ChannelNotif:
		rec.NotifSubHead = off
	}
}

// Add registers sub, allocating its record in the extended region and
// prepending it to the owning module's channel list.
func (r *Registry) Add(sub Subscription) (Subscription, error) {
	if err := r.lm.ExtRemap.Lock(time.Time{}); err != nil {
		return Subscription{}, err
	}
	defer r.lm.ExtRemap.Unlock()

	modRec, ok := r.main.FindModule(sub.Module)
	if !ok {
		modRec = shm.ModuleRecord{
			Name: sub.Module, ChangeSubHead: -1, OperSubHead: -1, RPCSubHead: -1, NotifSubHead: -1, DataLockHeader: -1,
		}
	}
	head := headField(modRec, sub.Kind)
	buf := encodeSub(sub, head)
	off, err := r.ext.Alloc(len(buf))
	if err != nil {
		return Subscription{}, err
	}
	copy(r.ext.Bytes()[off:], buf)
	setHeadField(&modRec, sub.Kind, off)
	if err := r.main.PutModule(modRec); err != nil {
		r.ext.Free(off, len(buf))
		return Subscription{}, err
	}
	sub.offset = off
	return sub, nil
}

// List returns every subscription of kind registered for module, in
// list order (most-recently-added first, since Add prepends).
func (r *Registry) List(module string, kind shm.ChannelKind) ([]Subscription, error) {
	if err := r.ext.Revalidate(); err != nil {
		return nil, err
	}
	modRec, ok := r.main.FindModule(module)
	if !ok {
		return nil, nil
	}
	var out []Subscription
	off := headField(modRec, kind)
	for off >= 0 {
		sub, next := decodeSub(r.ext.Bytes()[off:], module)
		sub.offset = off
		out = append(out, sub)
		off = next
	}
	return out, nil
}

// Remove unlinks and frees the subscription record matching subID under
// module/kind.
func (r *Registry) Remove(module string, kind shm.ChannelKind, subID uint64) error {
	if err := r.lm.ExtRemap.Lock(time.Time{}); err != nil {
		return err
	}
	defer r.lm.ExtRemap.Unlock()

	modRec, ok := r.main.FindModule(module)
	if !ok {
		return errkind.New(errkind.NotFound, "", "module %q has no subscriptions", module)
	}
	var prevOff int64 = -1
	off := headField(modRec, kind)
	for off >= 0 {
		sub, next := decodeSub(r.ext.Bytes()[off:], module)
		if sub.ID == subID {
			size := fixedRecordSize + len(sub.Filter)
			if prevOff < 0 {
				setHeadField(&modRec, kind, next)
				if err := r.main.PutModule(modRec); err != nil {
					return err
				}
			} else {
				binary.LittleEndian.PutUint64(r.ext.Bytes()[prevOff:prevOff+8], uint64(next))
			}
			r.ext.Free(off, size)
			return nil
		}
		prevOff = off
		off = next
	}
	return errkind.New(errkind.NotFound, "", "subscription %d not found", subID)
}

// setFlags rewrites the flags word of the record in place (suspend,
// resume); no relink is needed since the field is fixed-offset.
func (r *Registry) setFlags(module string, kind shm.ChannelKind, subID uint64, flags Flag) error {
	modRec, ok := r.main.FindModule(module)
	if !ok {
		return errkind.New(errkind.NotFound, "", "module %q has no subscriptions", module)
	}
	off := headField(modRec, kind)
	for off >= 0 {
		sub, next := decodeSub(r.ext.Bytes()[off:], module)
		if sub.ID == subID {
			binary.LittleEndian.PutUint32(r.ext.Bytes()[off+8+4+8+8+8+8+4:], uint32(flags))
			return nil
		}
		off = next
	}
	return errkind.New(errkind.NotFound, "", "subscription %d not found", subID)
}

// Suspend/Resume toggle the suspended flag on the shared-memory record
// and, for notification subscriptions, deliver a suspended/resumed
// meta-event. event.Publish does not read this flag, so setting it
// does not stop delivery through an event.Bus.
func (r *Registry) Suspend(module string, kind shm.ChannelKind, subID uint64) error {
	subs, err := r.List(module, kind)
	if err != nil {
		return err
	}
	for _, s := range subs {
		if s.ID == subID {
			if err := r.setFlags(module, kind, subID, s.Flags|FlagSuspended); err != nil {
				return err
			}
			r.notifyMeta(module, kind, subID, MetaSuspended)
			return nil
		}
	}
	return errkind.New(errkind.NotFound, "", "subscription %d not found", subID)
}

func (r *Registry) Resume(module string, kind shm.ChannelKind, subID uint64) error {
	subs, err := r.List(module, kind)
	if err != nil {
		return err
	}
	for _, s := range subs {
		if s.ID == subID {
			if err := r.setFlags(module, kind, subID, s.Flags&^FlagSuspended); err != nil {
				return err
			}
			r.notifyMeta(module, kind, subID, MetaResumed)
			return nil
		}
	}
	return errkind.New(errkind.NotFound, "", "subscription %d not found", subID)
}

// notifyMeta delivers the suspended/resumed meta-event for notification
// subscriptions only (§4.F names this behavior specifically for
// "notifications"; change/oper-get/RPC subscriptions get no meta-event).
func (r *Registry) notifyMeta(module string, kind shm.ChannelKind, subID uint64, meta MetaEvent) {
	if r.metaNotify == nil || kind != shm.ChannelNotif {
		return
	}
	r.metaNotify(module, kind, subID, meta)
}

// RecoverDeadConnections scans every module's subscription lists and
// removes records whose owning connection is no longer live, per §4.D
// "Recovery": "the newest connection scans subscription records,
// cross-references each recorded owning connection id against the live
// connections set". liveConnPID maps a connection id to the OS pid that
// owns it (package conn keeps this mapping); isAlive is shm.IsProcessAlive
// by default but is a parameter for testability.
func (r *Registry) RecoverDeadConnections(liveConnPID map[uint64]int, isAlive func(pid int) bool) (removed int, err error) {
	for _, modRec := range r.main.Modules() {
		for _, kind := range []shm.ChannelKind{shm.ChannelChange, shm.ChannelOperGet, shm.ChannelRPC, shm.ChannelNotif} {
			subs, lerr := r.List(modRec.Name, kind)
			if lerr != nil {
				return removed, lerr
			}
			for _, s := range subs {
				pid, tracked := liveConnPID[s.ConnID]
				if tracked && isAlive(pid) {
					continue
				}
				if err := r.Remove(modRec.Name, kind, s.ID); err != nil {
					return removed, err
				}
				removed++
			}
		}
	}
	return removed, nil
}
