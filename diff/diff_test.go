// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package diff_test

import (
	"testing"

	"github.com/danos/tsd/diff"
	"github.com/danos/tsd/edit"
	"github.com/danos/tsd/meta"
	"github.com/danos/tsd/schema"
	"github.com/danos/tsd/tree"
)

func leafRoot() (root, l *schema.Node) {
	root = schema.New("", "root", schema.Container)
	l = schema.New("tsd-test", "l", schema.Leaf)
	root.AddChild(l)
	return
}

// Invariant 1: applying D forward then reverse(D) backward recovers the
// original tree.
func TestRoundTripLeafReplace(t *testing.T) {
	root, l := leafRoot()

	pre := tree.New(root, "")
	pre.Attach(tree.New(l, "A"), tree.PosLast, nil)

	editRoot := tree.New(root, "")
	editL := tree.New(l, "B")
	editL.SetMeta(meta.Operation, "replace")
	editRoot.Attach(editL, tree.PosLast, nil)

	post, d, changed, err := edit.Apply(nil, pre, editRoot, edit.OpMerge)
	if err != nil || !changed {
		t.Fatalf("apply: %v changed=%v", err, changed)
	}

	fwd, err := diff.ApplyForward(pre, d)
	if err != nil {
		t.Fatalf("apply forward: %v", err)
	}
	fl, _ := fwd.ChildByName("l")
	pl, _ := post.ChildByName("l")
	if fl.Value != pl.Value {
		t.Fatalf("forward apply mismatch: %s vs %s", fl.Value, pl.Value)
	}

	back, err := diff.ApplyBackward(post, d)
	if err != nil {
		t.Fatalf("apply backward: %v", err)
	}
	bl, _ := back.ChildByName("l")
	origL, _ := pre.ChildByName("l")
	if bl.Value != origL.Value {
		t.Fatalf("backward apply mismatch: got %s want %s", bl.Value, origL.Value)
	}
}

// Merge table: create then replace on the same leaf collapses to a
// create carrying the final value (cur=create, new=replace row).
func TestMergeCreateThenReplace(t *testing.T) {
	root, l := leafRoot()

	base := tree.New(root, "")
	baseL := tree.New(l, "1")
	baseL.SetMeta(meta.Operation, "create")
	base.Attach(baseL, tree.PosLast, nil)

	incoming := tree.New(root, "")
	incL := tree.New(l, "2")
	incL.SetMeta(meta.Operation, "replace")
	incoming.Attach(incL, tree.PosLast, nil)

	merged, err := diff.Merge(base, incoming)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(merged.Children()) != 1 {
		t.Fatalf("expected one merged child, got %d", len(merged.Children()))
	}
	mc := merged.Children()[0]
	op, _ := mc.GetMeta(meta.Operation)
	if op != "create" {
		t.Fatalf("expected op create, got %v", op)
	}
	if mc.Value != "2" {
		t.Fatalf("expected value 2, got %s", mc.Value)
	}
}

// Update-against-data: a replace already reflected in the current data
// is dropped as redundant.
func TestUpdateAgainstDataDropsApplied(t *testing.T) {
	root, l := leafRoot()

	data := tree.New(root, "")
	data.Attach(tree.New(l, "B"), tree.PosLast, nil)

	d := tree.New(root, "")
	dl := tree.New(l, "B")
	dl.SetMeta(meta.Operation, "replace")
	dl.SetMeta(meta.OrigValue, "A")
	d.Attach(dl, tree.PosLast, nil)

	updated, err := diff.UpdateAgainstData(data, d)
	if err != nil {
		t.Fatalf("update against data: %v", err)
	}
	if len(updated.Children()) != 0 {
		t.Fatalf("expected redundant replace dropped, got %d children", len(updated.Children()))
	}
}

func TestFromRecordsBuildsCreateDiff(t *testing.T) {
	root, l := leafRoot()

	records := []diff.Record{
		{
			Path:  []diff.PathSegment{{Schema: l}},
			Op:    edit.DiffCreate,
			Value: "A",
		},
	}

	d, err := diff.FromRecords(root, records)
	if err != nil {
		t.Fatalf("from records: %v", err)
	}
	if len(d.Children()) != 1 {
		t.Fatalf("expected one diff child, got %d", len(d.Children()))
	}

	data := tree.New(root, "")
	applied, err := diff.ApplyForward(data, d)
	if err != nil {
		t.Fatalf("apply forward: %v", err)
	}
	al, ok := applied.ChildByName("l")
	if !ok || al.Value != "A" {
		t.Fatalf("expected l=A, got %+v", al)
	}
}
