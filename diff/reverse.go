// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package diff

import (
	"github.com/danos/tsd/edit"
	"github.com/danos/tsd/meta"
	"github.com/danos/tsd/schema"
	"github.com/danos/tsd/tree"
)

// Reverse swaps create/delete, value/orig-value (and default/orig-
// default), and key-or-value/orig-key-or-value throughout d, per §4.C.
// Applying Reverse(d) forward to d's post-state tree recovers d's
// pre-state tree (§8 invariant 1).
func Reverse(d *tree.Node) *tree.Node {
	out := tree.New(d.Schema, d.Value)
	for _, c := range d.Children() {
		out.Attach(reverseNode(c), tree.PosLast, nil)
	}
	return out
}

func reverseNode(n *tree.Node) *tree.Node {
	op, _ := opOf(n)
	switch op {
	case edit.DiffCreate:
		r := n.Clone(false)
		setOp(r, edit.DiffDelete)
		return r

	case edit.DiffDelete:
		r := n.Clone(false)
		setOp(r, edit.DiffCreate)
		return r

	case edit.DiffNone:
		r := tree.New(n.Schema, n.Value)
		setOp(r, edit.DiffNone)
		for _, c := range n.Children() {
			r.Attach(reverseNode(c), tree.PosLast, nil)
		}
		return r

	case edit.DiffReplace:
		return reverseReplace(n)
	}
	return n.Clone(false)
}

func reverseReplace(n *tree.Node) *tree.Node {
	switch n.Schema.Type() {
	case schema.Leaf, schema.Anydata, schema.Anyxml:
		orig, _ := n.GetMeta(meta.OrigValue)
		r := tree.New(n.Schema, orig)
		_, wasDefault := n.GetMeta(meta.OrigDefault)
		r.Default = wasDefault
		setOp(r, edit.DiffReplace)
		r.SetMeta(meta.OrigValue, n.Value)
		if n.Default {
			r.SetMeta(meta.OrigDefault, "true")
		}
		return r

	case schema.List, schema.LeafList, schema.Container:
		r := tree.New(n.Schema, n.Value)
		setOp(r, edit.DiffReplace)
		if n.Schema.Type() == schema.List {
			if v, ok := n.GetMeta(meta.MoveKey); ok {
				r.SetMeta(meta.OrigKey, v)
			}
			if v, ok := n.GetMeta(meta.OrigKey); ok {
				r.SetMeta(meta.MoveKey, v)
			}
		} else if n.Schema.Type() == schema.LeafList {
			if v, ok := n.GetMeta(meta.MoveValue); ok {
				r.SetMeta(meta.OrigValue, v)
			}
			if v, ok := n.GetMeta(meta.OrigValue); ok {
				r.SetMeta(meta.MoveValue, v)
			}
		}
		for _, c := range n.Children() {
			r.Attach(reverseNode(c), tree.PosLast, nil)
		}
		return r
	}
	return n.Clone(false)
}
