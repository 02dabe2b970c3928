// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package client implements the public API surface of §6: the thin
// get/set/delete/move/apply/subscribe boundary every other package in
// this module exists to serve. It plays the role client/client.go plays
// in the teacher, generalized from a JSON-RPC stub over net.Conn onto a
// direct in-process library call over packages conn, edit, diff, event,
// module, store and subscribe -- there is no wire protocol here, since
// those packages already share an address space with their caller.
package client

import (
	"sync"
	"time"

	"github.com/danos/tsd/conn"
	"github.com/danos/tsd/edit"
	"github.com/danos/tsd/errkind"
	"github.com/danos/tsd/logging"
	"github.com/danos/tsd/module"
	"github.com/danos/tsd/schema"
	"github.com/danos/tsd/store"
	"github.com/danos/tsd/subscribe"
	"github.com/danos/tsd/tree"
)

// Options configures Connect (§6 "connect(opts) -> conn").
type Options struct {
	// RepoRoot is the installation's on-disk/shared-memory root;
	// REPOSITORY_PATH in the environment, per §6.
	RepoRoot string
	Pid      int
}

// moduleReg is a registered module's schema root, file permissions, and
// the index of top-level node names it owns -- the bootstrapping
// substitute for a real YANG ModelSet lookup (package schema's doc
// comment explains why compiling .yang text itself is out of scope).
type moduleReg struct {
	name   string
	root   *schema.Node
	perm   store.Perm
	topIdx map[string]bool
}

type dsKey struct {
	module    string
	datastore string
}

// Client is one process's connected view of an installation: the
// underlying conn.Connection plus the module schema/permission registry
// and in-memory datastore cache that package conn, being schema-agnostic,
// doesn't itself keep.
type Client struct {
	conn *conn.Connection
	root store.Root
	log  *logging.Logger

	mu       sync.Mutex
	modules  map[string]*moduleReg
	data     map[dsKey]*tree.Node
	handlers map[uint64]RequestFunc

	mstore  *module.Store
	subs    *subscribe.Registry
	editCtx *edit.Context
}

// Connect opens a connection to the installation at opts.RepoRoot (§6
// "connect(opts) -> conn"), generalizing server/conn.go's accept-loop
// handshake into a plain constructor call since there's no listening
// socket in this library's design.
func Connect(opts Options) (*Client, error) {
	c, err := conn.Connect(opts.RepoRoot, opts.Pid)
	if err != nil {
		return nil, err
	}
	cl := &Client{
		conn:    c,
		root:    store.NewRoot(opts.RepoRoot),
		log:     logging.New("client"),
		modules: make(map[string]*moduleReg),
		data:    make(map[dsKey]*tree.Node),
		mstore:  module.NewStore(c.Main),
		subs:    c.Subs,
		editCtx: &edit.Context{DefaultOrigin: "interface"},
	}
	cl.subs.SetMetaNotifier(cl.deliverMetaEvent)
	return cl, nil
}

// Disconnect tears down cl's connection (§6 "disconnect(conn)").
func Disconnect(cl *Client) error {
	return conn.Disconnect(cl.conn)
}

// GetContentID returns the installation's module-directory version
// stamp (§6 "get_content_id(conn) -> u32").
func (cl *Client) GetContentID() uint32 {
	return cl.conn.GetContentID()
}

// RegisterModule binds name's schema root and default file permissions
// into cl's registry (the supplemented load-path helper SPEC_FULL.md
// calls out: since there's no YANG compiler in this module, a caller
// that has already built a schema.Node tree -- by hand, or from some
// external compiler -- registers it here before the public API can
// address into it by path).
func (cl *Client) RegisterModule(name string, root *schema.Node, perm store.Perm) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if _, exists := cl.modules[name]; exists {
		return errkind.New(errkind.Exists, "", "module %q already registered", name)
	}
	top := make(map[string]bool)
	for _, c := range root.Children() {
		top[c.Name()] = true
	}
	cl.modules[name] = &moduleReg{name: name, root: root, perm: perm, topIdx: top}
	return nil
}

func (cl *Client) moduleByName(name string) (*moduleReg, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	reg, ok := cl.modules[name]
	if !ok {
		return nil, errkind.New(errkind.NotFound, "", "module %q is not registered", name)
	}
	return reg, nil
}

// lookupModule resolves a path's top-level segment to the module that
// owns it (§6 get_subtree/get_data/set_item/... all take a bare path,
// not a module name).
func (cl *Client) lookupModule(topName string) (*moduleReg, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	for _, reg := range cl.modules {
		if reg.topIdx[topName] {
			return reg, nil
		}
	}
	return nil, errkind.New(errkind.NotFound, "", "no registered module owns top-level node %q", topName)
}

// loadRoot returns the cached data tree for (reg, datastore), decoding
// it from disk (or starting empty) the first time it's touched in this
// process, the in-memory analogue of the teacher's session/load.go
// persisted-config load.
func (cl *Client) loadRoot(reg *moduleReg, datastore string) (*tree.Node, error) {
	k := dsKey{reg.name, datastore}
	cl.mu.Lock()
	if n, ok := cl.data[k]; ok {
		cl.mu.Unlock()
		return n, nil
	}
	cl.mu.Unlock()

	path := cl.pathFor(reg, datastore)
	var n *tree.Node
	raw, err := store.Read(path)
	if err != nil {
		if !errkind.Is(err, errkind.NotFound) {
			return nil, err
		}
		n = tree.New(reg.root, "")
	} else {
		n, err = store.Decode(raw, reg.root)
		if err != nil {
			return nil, err
		}
	}

	cl.mu.Lock()
	cl.data[k] = n
	cl.mu.Unlock()
	return n, nil
}

func (cl *Client) storeRoot(reg *moduleReg, datastore string, n *tree.Node) {
	cl.mu.Lock()
	cl.data[dsKey{reg.name, datastore}] = n
	cl.mu.Unlock()
}

// pathFor maps a datastore name to its on-disk file (§6's three
// persisted files per module); "candidate" has no file of its own, it
// starts from and is discarded back to running.
func (cl *Client) pathFor(reg *moduleReg, datastore string) string {
	switch datastore {
	case "startup":
		return cl.root.StartupPath(reg.name)
	case "operational":
		return cl.root.OperationalPath(reg.name)
	default:
		return cl.root.RunningPath(reg.name)
	}
}

// deadlineFrom converts a timeout duration into the absolute deadline
// package lock's acquire calls take, the zero Time meaning "no timeout"
// per lock.RWLock's contract.
func deadlineFrom(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}
