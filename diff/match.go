// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package diff

import (
	"github.com/danos/tsd/errkind"
	"github.com/danos/tsd/schema"
	"github.com/danos/tsd/tree"
)

// findMatch applies the matching rules of §4.B to locate, among wd's
// children, the node corresponding to n -- the same identity test the
// edit algebra uses, since a diff node's schema/value/keys identify the
// same underlying instance in either a data tree or another diff tree.
func findMatch(wd, n *tree.Node) (*tree.Node, error) {
	switch n.Schema.Type() {
	case schema.Container, schema.Leaf, schema.Anydata, schema.Anyxml:
		for _, c := range wd.Children() {
			if c.Schema == n.Schema {
				return c, nil
			}
		}
		return nil, nil

	case schema.List:
		keys, err := n.KeyValues()
		if err != nil {
			return nil, err
		}
		for _, c := range wd.Children() {
			if c.Schema != n.Schema {
				continue
			}
			ckeys, err := c.KeyValues()
			if err != nil {
				return nil, err
			}
			if equalStrings(ckeys, keys) {
				return c, nil
			}
		}
		return nil, nil

	case schema.LeafList:
		for _, c := range wd.Children() {
			if c.Schema == n.Schema && c.Value == n.Value {
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
