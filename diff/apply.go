// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package diff

import (
	"github.com/danos/tsd/edit"
	"github.com/danos/tsd/errkind"
	"github.com/danos/tsd/meta"
	"github.com/danos/tsd/schema"
	"github.com/danos/tsd/tree"
)

// ApplyForward walks diff d and applies it to data, per §4.C: create
// duplicates the subtree, delete unlinks, replace changes a leaf value
// or repositions a user-ordered target, none descends. data is left
// untouched; the new tree is returned.
func ApplyForward(data, d *tree.Node) (*tree.Node, error) {
	if data == nil || d == nil {
		return nil, errkind.New(errkind.InvalidArg, "", "apply forward requires non-nil data and diff roots")
	}
	if data.Schema != d.Schema {
		return nil, errkind.New(errkind.InvalidArg, "", "data/diff root schema mismatch")
	}
	working := data.Clone(true)
	if err := applyForwardChildren(working, d); err != nil {
		return nil, err
	}
	return working, nil
}

// ApplyBackward recovers the pre-state by applying reverse(d) forward.
func ApplyBackward(data, d *tree.Node) (*tree.Node, error) {
	return ApplyForward(data, Reverse(d))
}

func applyForwardChildren(wd, diffParent *tree.Node) error {
	for _, c := range diffParent.Children() {
		if err := applyForwardOne(wd, c); err != nil {
			return err
		}
	}
	return nil
}

func applyForwardOne(wd, c *tree.Node) error {
	op, _ := opOf(c)
	switch op {
	case edit.DiffCreate:
		newNode := c.Clone(false)
		pos, anchor := forwardPos(wd, c.Schema, c, nil)
		return wd.Attach(newNode, pos, anchor)

	case edit.DiffDelete:
		match, err := findMatch(wd, c)
		if err != nil {
			return err
		}
		if match == nil {
			return errkind.New(errkind.Internal, pathOf(c), "delete: no matching node to apply against")
		}
		match.Detach()
		return nil

	case edit.DiffReplace:
		return applyForwardReplace(wd, c)

	case edit.DiffNone:
		match, err := findMatch(wd, c)
		if err != nil {
			return err
		}
		if match == nil {
			match = tree.New(c.Schema, c.Value)
			pos, anchor := forwardPos(wd, c.Schema, c, nil)
			if err := wd.Attach(match, pos, anchor); err != nil {
				return err
			}
		}
		return applyForwardChildren(match, c)
	}
	return errkind.New(errkind.Internal, pathOf(c), "unhandled diff operation %v", op)
}

func applyForwardReplace(wd, c *tree.Node) error {
	match, err := findMatch(wd, c)
	if err != nil {
		return err
	}
	if match == nil {
		return errkind.New(errkind.Internal, pathOf(c), "replace: no matching node to apply against")
	}
	switch c.Schema.Type() {
	case schema.Leaf, schema.Anydata, schema.Anyxml:
		match.Value = c.Value
		match.Default = c.Default
		return nil

	case schema.List, schema.Container:
		if err := repositionForward(wd, c, match); err != nil {
			return err
		}
		return applyForwardChildren(match, c)

	case schema.LeafList:
		return repositionForward(wd, c, match)
	}
	return errkind.New(errkind.Internal, pathOf(c), "replace: unhandled schema kind")
}

func repositionForward(wd, c, match *tree.Node) error {
	if !c.Schema.IsOrderedTarget() {
		return nil
	}
	pos, anchor := forwardPos(wd, c.Schema, c, match)
	match.Detach()
	return wd.Attach(match, pos, anchor)
}

// forwardPos locates the attach position implied by diffNode's key/value
// metadata (the canonical predicate of the preceding sibling after the
// move, per §3); empty or absent means "now first".
func forwardPos(wd *tree.Node, sch *schema.Node, diffNode *tree.Node, exclude *tree.Node) (tree.InsertPos, *tree.Node) {
	if !sch.IsOrderedTarget() {
		return tree.PosLast, nil
	}
	var pred string
	var has bool
	if sch.Type() == schema.List {
		pred, has = diffNode.GetMeta(meta.MoveKey)
	} else {
		pred, has = diffNode.GetMeta(meta.MoveValue)
	}
	group := sameSchemaSiblings(wd, sch, exclude)
	if !has || pred == "" {
		if len(group) == 0 {
			return tree.PosLast, nil
		}
		return tree.PosBefore, group[0]
	}
	anchor := findByPredicate(group, pred)
	if anchor == nil {
		return tree.PosLast, nil
	}
	return tree.PosAfter, anchor
}

func pathOf(n *tree.Node) string {
	segs := n.Path(true)
	out := ""
	for _, s := range segs {
		out += "/" + s
	}
	return out
}
