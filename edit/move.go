// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package edit

import (
	"github.com/danos/tsd/meta"
	"github.com/danos/tsd/schema"
	"github.com/danos/tsd/tree"
)

// movedRelativeTo reports whether ec carries an explicit insert
// directive for a user-ordered target and, if so, whether honoring it
// would actually reposition match. Absent an explicit directive a
// merge/replace never reorders an existing entry (§3 invariant 5 only
// applies when the edit asks for a move).
func movedRelativeTo(wd, ec, match *tree.Node) (moved bool, hadInsert bool) {
	if !ec.Schema.IsOrderedTarget() {
		return false, false
	}
	if _, ok := ec.GetMeta(meta.Insert); !ok {
		return false, false
	}
	pos, anchor, err := resolveInsert(wd, ec, match)
	if err != nil {
		return false, true
	}
	cur := match.PrevSiblingSameSchema()
	switch pos {
	case tree.PosBefore:
		want := anchor.PrevSiblingSameSchema()
		return want != cur, true
	case tree.PosAfter:
		return anchor != cur, true
	case tree.PosFirst:
		return cur != nil, true
	case tree.PosLast:
		group := sameSchemaSiblings(wd, ec.Schema, match)
		if len(group) == 0 {
			return cur != nil, true
		}
		return group[len(group)-1] != cur, true
	}
	return false, true
}

// repositionMatch detaches match and reattaches it per ec's insert
// directive.
func repositionMatch(wd, ec, match *tree.Node) error {
	pos, anchor, err := resolveInsert(wd, ec, match)
	if err != nil {
		return err
	}
	match.Detach()
	return wd.Attach(match, pos, anchor)
}

// setMoveForward/setMoveBackward stamp the key/value (predecessor after
// the move) and orig-key/orig-value (predecessor before the move)
// metadata described in §3, using the key-tuple form for lists and the
// plain-value form for leaf-lists.
func setMoveForward(diffNode *tree.Node, sch *schema.Node, predecessor *tree.Node) {
	pred := predecessor.KeyPredicate()
	if sch.Type() == schema.List {
		diffNode.SetMeta(meta.MoveKey, pred)
	} else {
		diffNode.SetMeta(meta.MoveValue, pred)
	}
}

func setMoveBackward(diffNode *tree.Node, sch *schema.Node, predecessor *tree.Node) {
	pred := predecessor.KeyPredicate()
	if sch.Type() == schema.List {
		diffNode.SetMeta(meta.OrigKey, pred)
	} else {
		diffNode.SetMeta(meta.OrigValue, pred)
	}
}
