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

// PathSegment identifies one step from the diff root down to a changed
// node, as an external structural-diff library would report it: a
// schema node plus, for list/leaf-list instances, the identity needed
// to place it (key values or the leaf-list's own value).
type PathSegment struct {
	Schema *schema.Node
	Value  string
	Keys   map[string]string
}

// Record is one entry of an external library's structural difference
// list: a node, reached by Path from the root, that was created,
// deleted, changed, or moved.
type Record struct {
	Path        []PathSegment
	Op          edit.DiffOp
	Value       string
	Default     bool
	OrigValue   string
	OrigDefault bool
	MoveKey     string
	MoveValue   string
	OrigKey     string
	Origin      string
}

// FromRecords builds a single canonical diff from a structural
// difference list using the duplication-with-parents strategy of
// §4.C: each record is cloned with its ancestors (no metadata beyond
// list keys), tagged with its operation and metadata, and merged into
// the accumulating diff; any top-level node still untagged afterward
// is stamped none.
func FromRecords(rootSchema *schema.Node, records []Record) (*tree.Node, error) {
	acc := tree.New(rootSchema, "")
	for _, rec := range records {
		sub, err := buildSkeleton(rootSchema, rec)
		if err != nil {
			return nil, err
		}
		merged, err := Merge(acc, sub)
		if err != nil {
			return nil, err
		}
		acc = merged
	}
	for _, top := range acc.Children() {
		if _, ok := opOf(top); !ok {
			setOp(top, edit.DiffNone)
		}
	}
	return acc, nil
}

func buildSkeleton(rootSchema *schema.Node, rec Record) (*tree.Node, error) {
	if len(rec.Path) == 0 {
		return nil, errkind.New(errkind.InvalidArg, "", "record has empty path")
	}
	root := tree.New(rootSchema, "")
	cur := root
	for i, seg := range rec.Path {
		n := tree.New(seg.Schema, seg.Value)
		for k, v := range seg.Keys {
			keySchema, ok := seg.Schema.Child(k)
			if !ok {
				return nil, errkind.New(errkind.Internal, "", "record: schema %q has no key leaf %q", seg.Schema.Name(), k)
			}
			if err := n.Attach(tree.New(keySchema, v), tree.PosLast, nil); err != nil {
				return nil, err
			}
		}
		if i == len(rec.Path)-1 {
			setOp(n, rec.Op)
			applyRecordMeta(n, rec)
		} else {
			setOp(n, edit.DiffNone)
		}
		if err := cur.Attach(n, tree.PosLast, nil); err != nil {
			return nil, err
		}
		cur = n
	}
	return root, nil
}

func applyRecordMeta(n *tree.Node, rec Record) {
	sch := rec.schema()
	switch rec.Op {
	case edit.DiffReplace:
		n.Value = rec.Value
		n.Default = rec.Default
		switch sch.Type() {
		case schema.Leaf, schema.Anydata, schema.Anyxml:
			n.SetMeta(meta.OrigValue, rec.OrigValue)
			if rec.OrigDefault {
				n.SetMeta(meta.OrigDefault, "true")
			}
		case schema.List:
			n.SetMeta(meta.MoveKey, rec.MoveKey)
			n.SetMeta(meta.OrigKey, rec.OrigKey)
		case schema.LeafList:
			n.SetMeta(meta.MoveValue, rec.MoveValue)
			n.SetMeta(meta.OrigValue, rec.OrigValue)
		}
	case edit.DiffCreate:
		n.Value = rec.Value
		n.Default = rec.Default
	}
	if rec.Origin != "" {
		n.SetMeta(meta.Origin, rec.Origin)
	}
}

func (r Record) schema() *schema.Node {
	return r.Path[len(r.Path)-1].Schema
}
