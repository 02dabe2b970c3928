// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package edit

import (
	"github.com/danos/tsd/meta"
	"github.com/danos/tsd/tree"
)

// opOf returns n's explicit operation metadatum, if any.
func opOf(n *tree.Node) (Op, bool) {
	s, ok := n.GetMeta(meta.Operation)
	if !ok {
		return OpNone, false
	}
	op, err := ParseOp(s)
	if err != nil {
		return OpNone, false
	}
	return op, true
}

// setOp stamps an explicit operation metadatum on an edit node.
func setOp(n *tree.Node, op Op) { n.SetMeta(meta.Operation, op.String()) }

// effectiveOp resolves an edit node's operation per invariant 3: defined
// on the node, else inherited from the nearest ancestor (here, the
// caller-supplied parentOp already folds in every ancestor above n).
func effectiveOp(n *tree.Node, parentOp Op) Op {
	if op, ok := opOf(n); ok {
		return op
	}
	return parentOp
}

// insertOf returns an edit node's insert directive and, for
// before/after, its anchor predicate (list key tuple or leaf-list
// value).
func insertOf(n *tree.Node) (Insert, string) {
	s, ok := n.GetMeta(meta.Insert)
	if !ok {
		return InsDefault, ""
	}
	ins, err := ParseInsert(s)
	if err != nil {
		return InsDefault, ""
	}
	anchor, ok := n.GetMeta(meta.MoveKey)
	if !ok {
		anchor, _ = n.GetMeta(meta.MoveValue)
	}
	return ins, anchor
}

// setDiffOp stamps a diff node's operation.
func setDiffOp(n *tree.Node, op DiffOp) { n.SetMeta(meta.Operation, op.String()) }

func diffOpOf(n *tree.Node) (DiffOp, bool) {
	s, ok := n.GetMeta(meta.Operation)
	if !ok {
		return DiffNone, false
	}
	op, err := ParseDiffOp(s)
	if err != nil {
		return DiffNone, false
	}
	return op, true
}
