// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package client

import (
	"github.com/danos/tsd/edit"
	"github.com/danos/tsd/errkind"
	"github.com/danos/tsd/meta"
	"github.com/danos/tsd/schema"
	"github.com/danos/tsd/tree"
)

// buildEditTree walks segs against sch, auto-vivifying every
// intermediate container/list instance as an implicit "merge" (so a
// set_item on a deep path doesn't require the caller to create every
// ancestor first), and stamps leafOp/value/insert only on the node
// named by the final segment -- the edit tree package edit.Apply
// expects (§4.B).
func buildEditTree(sch *schema.Node, segs []tree.Segment, value string, leafOp edit.Op, insert edit.Insert, anchor string) (*tree.Node, error) {
	if len(segs) == 0 {
		return nil, errkind.New(errkind.InvalidArg, "", "empty path")
	}
	root := tree.New(sch, "")
	cur := root
	curSchema := sch
	for i, seg := range segs {
		childSchema, ok := curSchema.Child(seg.Name)
		if !ok {
			return nil, errkind.New(errkind.InvalidArg, seg.Name, "unknown node %q", seg.Name)
		}
		last := i == len(segs)-1

		child := tree.New(childSchema, "")
		if childSchema.Type() == schema.List {
			for _, keySch := range keyLeaves(childSchema) {
				if v, ok := seg.Keys[keySch.Name()]; ok {
					k := tree.New(keySch, v)
					if err := child.Attach(k, tree.PosLast, nil); err != nil {
						return nil, err
					}
				}
			}
		}

		if last {
			switch childSchema.Type() {
			case schema.Leaf, schema.Anydata, schema.Anyxml:
				child.Value = value
			case schema.LeafList:
				child.Value = value
			}
			child.SetMeta(meta.Operation, leafOp.String())
			if insert != edit.InsDefault {
				child.SetMeta(meta.Insert, insert.String())
				if anchor != "" {
					child.SetMeta(meta.MoveKey, anchor)
					child.SetMeta(meta.MoveValue, anchor)
				}
			}
		} else {
			child.SetMeta(meta.Operation, edit.OpMerge.String())
		}

		if err := cur.Attach(child, tree.PosLast, nil); err != nil {
			return nil, err
		}
		cur = child
		curSchema = childSchema
	}
	return root, nil
}

func keyLeaves(sch *schema.Node) []*schema.Node {
	out := make([]*schema.Node, 0, len(sch.Keys()))
	for _, k := range sch.Keys() {
		if c, ok := sch.Child(k); ok {
			out = append(out, c)
		}
	}
	return out
}
