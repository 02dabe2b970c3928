// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package diff implements component C: merging two diffs, applying a
// diff forward or backward to a data tree, reversing a diff, updating a
// diff against observed data, and building a canonical diff from a
// structural difference list (§4.C). It speaks the same diff-tree
// vocabulary the edit algebra (package edit, component B) produces.
package diff

import (
	"github.com/danos/tsd/edit"
	"github.com/danos/tsd/meta"
	"github.com/danos/tsd/tree"
)

func opOf(n *tree.Node) (edit.DiffOp, bool) {
	s, ok := n.GetMeta(meta.Operation)
	if !ok {
		return edit.DiffNone, false
	}
	op, err := edit.ParseDiffOp(s)
	if err != nil {
		return edit.DiffNone, false
	}
	return op, true
}

func setOp(n *tree.Node, op edit.DiffOp) { n.SetMeta(meta.Operation, op.String()) }
