// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package edit

import (
	"github.com/danos/tsd/errkind"
	"github.com/danos/tsd/schema"
	"github.com/danos/tsd/tree"
)

// findMatch implements the matching rules of §4.B: locate, among wd's
// current children, the node corresponding to edit node ec.
func findMatch(wd, ec *tree.Node) (*tree.Node, error) {
	switch ec.Schema.Type() {
	case schema.Container, schema.Leaf, schema.Anydata, schema.Anyxml:
		for _, c := range wd.Children() {
			if c.Schema == ec.Schema {
				return c, nil
			}
		}
		return nil, nil

	case schema.List:
		ekeys, err := ec.KeyValues()
		if err != nil {
			return nil, err
		}
		for _, c := range wd.Children() {
			if c.Schema != ec.Schema {
				continue
			}
			ckeys, err := c.KeyValues()
			if err != nil {
				return nil, err
			}
			if equalStrings(ckeys, ekeys) {
				return c, nil
			}
		}
		return nil, nil

	case schema.LeafList:
		for _, c := range wd.Children() {
			if c.Schema == ec.Schema && c.Value == ec.Value {
				return c, nil
			}
		}
		return nil, nil
	}
	return nil, errkind.New(errkind.Internal, "", "unknown schema node kind")
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// sameSchemaSiblings returns wd's children sharing sch, excluding
// exclude if it's already among them (used when repositioning a match
// that is currently attached).
func sameSchemaSiblings(wd *tree.Node, sch *schema.Node, exclude *tree.Node) []*tree.Node {
	var out []*tree.Node
	for _, c := range wd.Children() {
		if c.Schema != sch || c == exclude {
			continue
		}
		out = append(out, c)
	}
	return out
}

func findByPredicate(siblings []*tree.Node, pred string) *tree.Node {
	for _, s := range siblings {
		if s.KeyPredicate() == pred {
			return s
		}
	}
	return nil
}

// resolveInsert computes where a node matching ec's schema should be
// attached among wd's children, honoring an explicit insert directive
// when present and otherwise appending.
func resolveInsert(wd, ec *tree.Node, exclude *tree.Node) (tree.InsertPos, *tree.Node, error) {
	ins, anchorPred := insertOf(ec)
	group := sameSchemaSiblings(wd, ec.Schema, exclude)

	switch ins {
	case InsFirst:
		if len(group) == 0 {
			return tree.PosLast, nil, nil
		}
		return tree.PosBefore, group[0], nil

	case InsLast, InsDefault:
		if len(group) == 0 {
			return tree.PosLast, nil, nil
		}
		return tree.PosAfter, group[len(group)-1], nil

	case InsBefore, InsAfter:
		anchor := findByPredicate(group, anchorPred)
		if anchor == nil {
			return 0, nil, errkind.New(errkind.NotFound, pathOf(ec), "insert anchor %q not found", anchorPred)
		}
		if ins == InsBefore {
			return tree.PosBefore, anchor, nil
		}
		return tree.PosAfter, anchor, nil
	}
	return tree.PosLast, nil, nil
}

// attachAfterSameSchema appends n after the last existing sibling
// sharing sch (or anywhere if none exist), used to re-materialize a
// defaulted leaf in the same slot class its deleted instance occupied.
func attachAfterSameSchema(wd *tree.Node, sch *schema.Node, n *tree.Node) (tree.InsertPos, *tree.Node, error) {
	group := sameSchemaSiblings(wd, sch, nil)
	if len(group) == 0 {
		return tree.PosLast, nil, wd.Attach(n, tree.PosLast, nil)
	}
	anchor := group[len(group)-1]
	return tree.PosAfter, anchor, wd.Attach(n, tree.PosAfter, anchor)
}
