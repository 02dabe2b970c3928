// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package client

import (
	"os"

	"github.com/danos/tsd/errkind"
	"github.com/danos/tsd/module"
)

// InstallModule schedules a module install (§6 "install_module(conn,
// schema_path, features)"). yangText is the module's YANG source, queued
// as raw bytes on the scheduled op; this module doesn't compile it (package
// schema's doc comment), so the caller supplies the already-built
// schema.Node root for the module via RegisterModule once
// ApplyScheduled below has run.
func (cl *Client) InstallModule(name, revision string, yangText, initialData []byte, features []string) error {
	cl.mstore.Schedule(module.ScheduledOp{
		Kind: module.OpInstall, Module: name, Revision: revision,
		YANGText: yangText, InitialData: initialData,
	})
	for _, f := range features {
		cl.mstore.Schedule(module.ScheduledOp{Kind: module.OpEnableFeature, Module: name, Feature: f})
	}
	return cl.applySchedule()
}

// RemoveModule schedules a module removal (§6 "remove_module(conn, name)").
func (cl *Client) RemoveModule(name string) error {
	cl.mstore.Schedule(module.ScheduledOp{Kind: module.OpRemove, Module: name})
	if err := cl.applySchedule(); err != nil {
		return err
	}
	cl.mu.Lock()
	delete(cl.modules, name)
	cl.mu.Unlock()
	return nil
}

// UpdateModule schedules a schema revision update (§6 "update_module(conn,
// schema_path)").
func (cl *Client) UpdateModule(name, revision string, yangText []byte) error {
	cl.mstore.Schedule(module.ScheduledOp{Kind: module.OpUpdate, Module: name, Revision: revision, YANGText: yangText})
	return cl.applySchedule()
}

// EnableFeature schedules a feature toggle (§6 "enable_feature(conn, mod,
// feat)"); on is honored via OpEnableFeature/OpDisableFeature.
func (cl *Client) EnableFeature(mod, feat string, on bool) error {
	kind := module.OpEnableFeature
	if !on {
		kind = module.OpDisableFeature
	}
	cl.mstore.Schedule(module.ScheduledOp{Kind: kind, Module: mod, Feature: feat})
	return cl.applySchedule()
}

// SetReplaySupport toggles a module's notification-replay flag
// immediately, bypassing the schedule (§6 "set_replay_support(conn, mod,
// on)"); module.Store.SetReplaySupport already documents why this one
// operation isn't scheduled.
func (cl *Client) SetReplaySupport(mod string, on bool) error {
	return cl.mstore.SetReplaySupport(mod, on)
}

// SetModuleAccess reconfigures a registered module's file permission
// triple (§6 "set_module_access(conn, mod, owner?, group?, mode?)");
// nil arguments leave the corresponding field unchanged.
func (cl *Client) SetModuleAccess(mod string, owner, group *string, mode *uint32) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	reg, ok := cl.modules[mod]
	if !ok {
		return errkind.New(errkind.NotFound, "", "module %q is not registered", mod)
	}
	if owner != nil {
		reg.perm.Owner = *owner
	}
	if group != nil {
		reg.perm.Group = *group
	}
	if mode != nil {
		reg.perm.Mode = os.FileMode(*mode)
	}
	return nil
}

// applySchedule runs module.Store.ApplyScheduled using cl's already
// registered schemas as both validator and reparser: since this module
// has no live schema compiler, "validate" only checks that a scheduled
// remove/feature-toggle doesn't target an unregistered module, and
// "reparse" is a no-op (there is no persisted-data re-encode step to
// perform without a schema diff engine).
func (cl *Client) applySchedule() error {
	validate := func(ops []module.ScheduledOp) error {
		for _, op := range ops {
			if op.Kind == module.OpRemove || op.Kind == module.OpEnableFeature || op.Kind == module.OpDisableFeature {
				if _, err := cl.moduleByName(op.Module); err != nil {
					return err
				}
			}
		}
		return nil
	}
	reparse := func(ops []module.ScheduledOp) error { return nil }
	return cl.mstore.ApplyScheduled(validate, reparse, func(msg string) { cl.log.Errorf("%s", msg) })
}
