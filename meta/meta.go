// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package meta defines the closed set of per-node metadata keys used by
// the edit and diff algebras (tsd/edit, tsd/diff) and the tree adapter
// (tsd/tree). Keeping this as a small enum, rather than free-form
// strings, keeps the hot paths in the edit/diff engine out of stringly
// typed lookups (see DESIGN.md).
package meta

// Key identifies one metadata slot on a data node. Every key is scoped
// to the module that defines it; built-in keys below are scoped to the
// tsd module itself ("tsd").
type Key int

const (
	// Operation is the edit/diff operation carried by a node.
	Operation Key = iota
	// Insert is the user-ordered insert directive on an edit node.
	Insert
	// MoveKey is the canonical key/value of the preceding sibling after a
	// user-ordered move (empty string means "now first").
	MoveKey
	// MoveValue is the anchor value used for before/after inserts on
	// leaf-lists (canonical value rather than a key tuple).
	MoveValue
	// OrigKey is the preceding sibling's key before a user-ordered move.
	OrigKey
	// OrigValue is either the prior leaf value (leaf replace) or the
	// prior predecessor value (leaf-list replace/move).
	OrigValue
	// OrigDefault records whether the node was defaulted before a
	// leaf replace.
	OrigDefault
	// Origin records provenance of an operational-datastore node
	// (interface, system, learned, ...).
	Origin
	// ConnPtr/Pid/InverseDataDep/EnabledFeature are module-metadata
	// tree bookkeeping keys (component I).
	ConnPtr
	Pid
	InverseDataDep
	EnabledFeature
)

func (k Key) String() string {
	switch k {
	case Operation:
		return "operation"
	case Insert:
		return "insert"
	case MoveKey:
		return "key"
	case MoveValue:
		return "value"
	case OrigKey:
		return "orig-key"
	case OrigValue:
		return "orig-value"
	case OrigDefault:
		return "orig-default"
	case Origin:
		return "origin"
	case ConnPtr:
		return "conn-ptr"
	case Pid:
		return "pid"
	case InverseDataDep:
		return "inverse-data-deps"
	case EnabledFeature:
		return "enabled-feature"
	}
	return "unknown"
}

// Module is the metadata key's defining module. All built-in keys are
// scoped to the implementation itself, mirroring how the source tree
// scopes its "sysrepo" or "ietf-netconf" metadata annotations to a
// well-known module name.
const Module = "tsd"

// Qualified renders the (module, name) pair the way it would appear were
// this metadata encoded on the wire (e.g. "tsd:operation").
func Qualified(k Key) string {
	return Module + ":" + k.String()
}
