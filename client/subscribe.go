// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package client

import (
	"time"

	"github.com/danos/tsd/errkind"
	"github.com/danos/tsd/event"
	"github.com/danos/tsd/shm"
	"github.com/danos/tsd/subscribe"
)

// SubscribeOpts carries the flag-ish options common to every subscribe_*
// call (§6's opts parameter): done-only/passive/update delivery and, for
// operational-get, which schema atoms the xpath selects.
type SubscribeOpts struct {
	Update       bool
	DoneOnly     bool
	Passive      bool
	ProviderType subscribe.ProviderType
}

func (o SubscribeOpts) flags() subscribe.Flag {
	var f subscribe.Flag
	if o.DoneOnly {
		f |= subscribe.FlagDoneOnly
	}
	if o.Passive {
		f |= subscribe.FlagPassive
	}
	if o.Update {
		f |= subscribe.FlagUpdate
	}
	return f
}

// RequestFunc answers one operational-get/RPC request payload with a
// response payload, the callback shape subscribe_oper_get/subscribe_rpc
// register (§6 "cb").
type RequestFunc func(payload []byte) ([]byte, error)

// Sub is a handle to one registered subscription, returned by every
// subscribe_* call and consumed by unsubscribe/process_events/
// subscription_suspend/resume (§6).
type Sub struct {
	ID        uint64
	module    string
	path      string
	datastore string
	kind      shm.ChannelKind
	cl        *Client
	pipe      *subscribe.EventPipe
	region    *shm.SubRegion
}

// SubscribeChange registers an in-process change-event callback for
// module (§6 "subscribe_change(sess, module, xpath?, cb, priority,
// opts) -> sub"). Delivery happens through event.Bus; the registry
// record makes the subscription visible to other processes per §4.F,
// even though only this process's Bus actually invokes handler (see
// DESIGN.md's note on package event's cross-process scope).
func (s *Session) SubscribeChange(module, xpath string, handler event.Handler, priority int32, opts SubscribeOpts) (*Sub, error) {
	id := s.cl.conn.Main.NextSubID()
	rec := subscribe.Subscription{
		ID: id, Module: module, Kind: shm.ChannelChange,
		ConnID: s.cl.conn.ID, SessionID: s.cs.ID,
		Priority: priority, Flags: opts.flags(), Filter: xpath,
	}
	if _, err := s.cl.subs.Add(rec); err != nil {
		return nil, err
	}
	ds := s.cs.Datastore()
	s.cl.conn.Bus.Register(module, ds, &event.Subscriber{
		ID: id, Priority: priority, Filter: xpath,
		Update: opts.Update, DoneOnly: opts.DoneOnly, Passive: opts.Passive,
		Handler: handler,
	})
	if !opts.Passive {
		s.cl.deliverEnabled(module, ds, handler)
	}
	return &Sub{ID: id, module: module, datastore: ds, kind: shm.ChannelChange, cl: s.cl}, nil
}

// deliverEnabled sends the one-shot initial-snapshot event (§6 "event
// kind in {update, change, done, abort, enabled}") to a newly registered,
// non-Passive change subscriber, carrying its current view of (module,
// datastore) data. Best effort: an unregistered module has no data tree
// to snapshot yet, so there is nothing to deliver.
func (cl *Client) deliverEnabled(module, datastore string, handler event.Handler) {
	reg, err := cl.moduleByName(module)
	if err != nil {
		return
	}
	root, err := cl.loadRoot(reg, datastore)
	if err != nil {
		return
	}
	handler.OnEnabled(event.Envelope{Module: module, Datastore: datastore, Diff: root})
}

// SubscribeOperGet registers a provider for operational-get requests
// under path (§6 "subscribe_oper_get(sess, module, path, cb, opts)").
// Requests and responses travel through the per-subscription SubRegion;
// process_events is what actually invokes cb (see ProcessEvents).
func (s *Session) SubscribeOperGet(module, path string, cb RequestFunc, opts SubscribeOpts) (*Sub, error) {
	return s.registerRequestChannel(module, path, shm.ChannelOperGet, 0, opts, cb)
}

// SubscribeRPC registers an RPC handler for path (§6 "subscribe_rpc(sess,
// path, cb, priority, opts) -> sub").
func (s *Session) SubscribeRPC(path string, cb RequestFunc, priority int32, opts SubscribeOpts) (*Sub, error) {
	return s.registerRequestChannel("", path, shm.ChannelRPC, priority, opts, cb)
}

// SubscribeNotification registers a notification listener over
// [start, stop) (§6 "subscribe_notification(sess, module, xpath?, start?,
// stop?, cb, opts)").
func (s *Session) SubscribeNotification(module, xpath string, start, stop time.Time, cb RequestFunc, opts SubscribeOpts) (*Sub, error) {
	id := s.cl.conn.Main.NextSubID()
	rec := subscribe.Subscription{
		ID: id, Module: module, Kind: shm.ChannelNotif,
		ConnID: s.cl.conn.ID, SessionID: s.cs.ID,
		Flags: opts.flags(), Filter: xpath, NotifStart: start, NotifStop: stop,
	}
	rec, err := s.cl.subs.Add(rec)
	if err != nil {
		return nil, err
	}
	region, err := shm.OpenSub(s.cl.conn.RepoRoot, module, xpath, shm.ChannelNotif)
	if err != nil {
		return nil, err
	}
	s.cl.registerHandler(id, cb)
	return &Sub{ID: id, module: module, path: xpath, datastore: s.cs.Datastore(), kind: shm.ChannelNotif, cl: s.cl, region: region}, nil
}

func (s *Session) registerRequestChannel(module, path string, kind shm.ChannelKind, priority int32, opts SubscribeOpts, cb RequestFunc) (*Sub, error) {
	id := s.cl.conn.Main.NextSubID()
	rec := subscribe.Subscription{
		ID: id, Module: module, Kind: kind,
		ConnID: s.cl.conn.ID, SessionID: s.cs.ID,
		Priority: priority, Flags: opts.flags(), Filter: path,
		ProviderType: opts.ProviderType,
	}
	if _, err := s.cl.subs.Add(rec); err != nil {
		return nil, err
	}
	region, err := shm.OpenSub(s.cl.conn.RepoRoot, module, path, kind)
	if err != nil {
		return nil, err
	}
	s.cl.registerHandler(id, cb)
	return &Sub{ID: id, module: module, path: path, datastore: s.cs.Datastore(), kind: kind, cl: s.cl, region: region}, nil
}

// deliverMetaEvent is the Registry.SetMetaNotifier callback that actually
// reaches a notification subscriber's registered callback with the
// suspended/resumed meta-event (§4.F). Best effort and fire-and-forget,
// like the done/abort phases elsewhere in this package: a subscriber
// that has already gone away (no registered handler) is not an error.
func (cl *Client) deliverMetaEvent(module string, kind shm.ChannelKind, subID uint64, meta subscribe.MetaEvent) {
	cl.mu.Lock()
	cb, ok := cl.handlers[subID]
	cl.mu.Unlock()
	if !ok {
		return
	}
	_, _ = cb([]byte(meta.String()))
}

func (cl *Client) registerHandler(id uint64, cb RequestFunc) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.handlers == nil {
		cl.handlers = make(map[uint64]RequestFunc)
	}
	cl.handlers[id] = cb
}

// requestPendingFlag marks a SubRegion's header as carrying an
// unanswered request; process_events clears it once cb has run.
const requestPendingFlag uint32 = 1

// ProcessEvents drains at most one pending request on sub's channel,
// invoking its registered callback and writing the response back into
// the SubRegion (§6 "process_events(sub, sess?)"). Change subscriptions
// have nothing to drain here: they're delivered synchronously by
// event.Publish inside apply_changes.
func (sub *Sub) ProcessEvents() error {
	if sub.region == nil {
		return nil
	}
	h := sub.region.Header()
	if h.Flags&requestPendingFlag == 0 {
		return nil
	}
	sub.cl.mu.Lock()
	cb, ok := sub.cl.handlers[sub.ID]
	sub.cl.mu.Unlock()
	if !ok {
		return errkind.New(errkind.NotFound, "", "subscription %d has no registered handler", sub.ID)
	}
	req := append([]byte(nil), sub.region.Payload()...)
	resp, err := cb(req)
	if err != nil {
		return errkind.NewCallbackFailed(err, nil)
	}
	if err := sub.region.SetPayload(resp); err != nil {
		return err
	}
	h.Flags &^= requestPendingFlag
	h.PayloadLen = uint32(len(resp))
	sub.region.SetHeader(h)
	return nil
}

// Unsubscribe removes sub's registry record, in-process bus entry (for
// change subscriptions), and local handler/region state (§6
// "unsubscribe(sub)").
func Unsubscribe(sub *Sub) error {
	if err := sub.cl.subs.Remove(sub.module, sub.kind, sub.ID); err != nil {
		return err
	}
	if sub.kind == shm.ChannelChange {
		sub.cl.conn.Bus.Unregister(sub.module, sub.datastore, sub.ID)
	}
	sub.cl.mu.Lock()
	delete(sub.cl.handlers, sub.ID)
	sub.cl.mu.Unlock()
	if sub.region != nil {
		return sub.region.Close()
	}
	return nil
}

// SubscriptionSuspend/Resume toggle sub's suspended flag in the registry
// (§6 "subscription_suspend/resume(sub, sub_id)"). Only the shared-memory
// record changes: the event.Bus entry of a change subscription keeps
// Suspended false, so event.Publish still delivers to it while it is
// suspended.
func SubscriptionSuspend(sub *Sub) error {
	return sub.cl.subs.Suspend(sub.module, sub.kind, sub.ID)
}

func SubscriptionResume(sub *Sub) error {
	return sub.cl.subs.Resume(sub.module, sub.kind, sub.ID)
}
