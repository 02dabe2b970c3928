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

// UpdateAgainstData walks d and drops any node whose operation has
// become redundant against the current data tree: a create/delete/move
// already reflected in data, or a leaf replace whose target already
// carries the new value (§4.C).
func UpdateAgainstData(data, d *tree.Node) (*tree.Node, error) {
	out := tree.New(d.Schema, d.Value)
	if err := updateChildren(data, d, out); err != nil {
		return nil, err
	}
	return out, nil
}

func updateChildren(wd, diffParent, outParent *tree.Node) error {
	for _, c := range diffParent.Children() {
		keep, node, err := updateNode(wd, c)
		if err != nil {
			return err
		}
		if keep {
			if err := outParent.Attach(node, tree.PosLast, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func updateNode(wd, c *tree.Node) (bool, *tree.Node, error) {
	op, _ := opOf(c)
	match, err := findMatch(wd, c)
	if err != nil {
		return false, nil, err
	}

	switch op {
	case edit.DiffCreate:
		if match != nil {
			return false, nil, nil
		}
		return true, c.Clone(true), nil

	case edit.DiffDelete:
		if match == nil {
			return false, nil, nil
		}
		return true, c.Clone(true), nil

	case edit.DiffReplace:
		if match == nil {
			return false, nil, nil
		}
		switch c.Schema.Type() {
		case schema.Leaf, schema.Anydata, schema.Anyxml:
			if match.Value == c.Value {
				return false, nil, nil
			}
			return true, c.Clone(true), nil
		default:
			if !movePending(c, match) {
				return descendKeep(wd, c, match)
			}
			return true, c.Clone(true), nil
		}

	case edit.DiffNone:
		if match == nil {
			return false, nil, nil
		}
		return descendKeep(wd, c, match)
	}
	return false, nil, nil
}

// movePending reports whether match still needs repositioning to honor
// c's key/value move metadata.
func movePending(c, match *tree.Node) bool {
	if !c.Schema.IsOrderedTarget() {
		return false
	}
	var want string
	if c.Schema.Type() == schema.List {
		want, _ = c.GetMeta(meta.MoveKey)
	} else {
		want, _ = c.GetMeta(meta.MoveValue)
	}
	return match.PrevSiblingSameSchema().KeyPredicate() != want
}

func descendKeep(wd, c, match *tree.Node) (bool, *tree.Node, error) {
	r := tree.New(c.Schema, c.Value)
	setOp(r, edit.DiffNone)
	if err := updateChildren(match, c, r); err != nil {
		return false, nil, err
	}
	if len(r.Children()) == 0 {
		return false, nil, nil
	}
	return true, r, nil
}
