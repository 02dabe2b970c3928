// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package edit_test

import (
	"testing"

	"github.com/danos/tsd/edit"
	"github.com/danos/tsd/meta"
	"github.com/danos/tsd/schema"
	"github.com/danos/tsd/tree"
)

func interfacesSchema() (root, interfaces, iface *schema.Node) {
	root = schema.New("", "root", schema.Container)
	interfaces = schema.New("tsd-interfaces", "interfaces", schema.Container)
	iface = schema.New("tsd-interfaces", "interface", schema.List).WithKeys("name")
	iface.AddChild(schema.New("tsd-interfaces", "name", schema.Leaf))
	iface.AddChild(schema.New("tsd-interfaces", "type", schema.Leaf))
	iface.AddChild(schema.New("tsd-interfaces", "enabled", schema.Leaf).WithDefault("true"))
	iface.AddChild(schema.New("tsd-interfaces", "forwarding", schema.Leaf).WithDefault("true"))
	interfaces.AddChild(iface)
	root.AddChild(interfaces)
	return
}

func leafNode(sch *schema.Node, val string) *tree.Node { return tree.New(sch, val) }

// S1 -- create, then delete.
func TestCreateThenDelete(t *testing.T) {
	root, interfaces, iface := interfacesSchema()

	ds := tree.New(root, "")

	editRoot := tree.New(root, "")
	editInterfaces := tree.New(interfaces, "")
	editInterfaces.SetMeta(meta.Operation, "merge")
	if err := editRoot.Attach(editInterfaces, tree.PosLast, nil); err != nil {
		t.Fatal(err)
	}
	editIfaceNode := tree.New(iface, "")
	editIfaceNode.SetMeta(meta.Operation, "create")
	nameSchema, _ := iface.Child("name")
	typeSchema, _ := iface.Child("type")
	editIfaceNode.Attach(leafNode(nameSchema, "eth52"), tree.PosLast, nil)
	editIfaceNode.Attach(leafNode(typeSchema, "ethernetCsmacd"), tree.PosLast, nil)
	if err := editInterfaces.Attach(editIfaceNode, tree.PosLast, nil); err != nil {
		t.Fatal(err)
	}

	newDs, diff, changed, err := edit.Apply(nil, ds, editRoot, edit.OpMerge)
	if err != nil {
		t.Fatalf("apply create: %v", err)
	}
	if !changed {
		t.Fatal("expected change")
	}

	ifacesChild, ok := newDs.ChildByName("interfaces")
	if !ok {
		t.Fatal("interfaces not created")
	}
	created, ok := ifacesChild.ChildByName("interface")
	if !ok {
		t.Fatal("interface entry not created")
	}
	enabled, ok := created.ChildByName("enabled")
	if !ok || enabled.Value != "true" || !enabled.Default {
		t.Fatalf("enabled leaf not defaulted: %+v", enabled)
	}

	if len(diff.Children()) != 1 {
		t.Fatalf("expected single top diff child, got %d", len(diff.Children()))
	}

	// Now delete /interfaces.
	editRoot2 := tree.New(root, "")
	editInterfaces2 := tree.New(interfaces, "")
	editInterfaces2.SetMeta(meta.Operation, "delete")
	if err := editRoot2.Attach(editInterfaces2, tree.PosLast, nil); err != nil {
		t.Fatal(err)
	}

	newDs2, diff2, changed2, err := edit.Apply(nil, newDs, editRoot2, edit.OpMerge)
	if err != nil {
		t.Fatalf("apply delete: %v", err)
	}
	if !changed2 {
		t.Fatal("expected change on delete")
	}
	if len(diff2.Children()) != 1 {
		t.Fatalf("expected single delete diff child, got %d", len(diff2.Children()))
	}
	if _, ok := newDs2.ChildByName("interfaces"); ok {
		t.Fatal("interfaces should be gone")
	}
}

// S2 -- replace leaf value.
func TestReplaceLeafValue(t *testing.T) {
	root := schema.New("", "root", schema.Container)
	l := schema.New("tsd-test", "l", schema.Leaf)
	root.AddChild(l)

	ds := tree.New(root, "")
	ds.Attach(tree.New(l, "A"), tree.PosLast, nil)

	editRoot := tree.New(root, "")
	editL := tree.New(l, "B")
	editL.SetMeta(meta.Operation, "replace")
	editRoot.Attach(editL, tree.PosLast, nil)

	newDs, diff, changed, err := edit.Apply(nil, ds, editRoot, edit.OpMerge)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("expected change")
	}
	lNode, _ := newDs.ChildByName("l")
	if lNode.Value != "B" {
		t.Fatalf("expected B got %s", lNode.Value)
	}
	if len(diff.Children()) != 1 {
		t.Fatalf("expected 1 diff child got %d", len(diff.Children()))
	}
	orig, ok := diff.Children()[0].GetMeta(meta.OrigValue)
	if !ok || orig != "A" {
		t.Fatalf("expected orig-value A got %q", orig)
	}
	if _, ok := diff.Children()[0].GetMeta(meta.OrigDefault); ok {
		t.Fatal("did not expect orig-default")
	}
}

// S3 -- user-ordered move via insert after.
func TestUserOrderedMove(t *testing.T) {
	root := schema.New("", "root", schema.Container)
	l := schema.New("tsd-test", "l", schema.List).WithKeys("k").WithUserOrdered()
	l.AddChild(schema.New("tsd-test", "k", schema.Leaf))
	root.AddChild(l)

	ds := tree.New(root, "")
	for _, k := range []string{"k1", "k2", "k3"} {
		entry := tree.New(l, "")
		kLeaf, _ := l.Child("k")
		entry.Attach(tree.New(kLeaf, k), tree.PosLast, nil)
		ds.Attach(entry, tree.PosLast, nil)
	}

	editRoot := tree.New(root, "")
	kLeaf, _ := l.Child("k")
	editEntry := tree.New(l, "")
	editEntry.Attach(tree.New(kLeaf, "k1"), tree.PosLast, nil)
	editEntry.SetMeta(meta.Operation, "merge")
	editEntry.SetMeta(meta.Insert, "after")
	editEntry.SetMeta(meta.MoveKey, "[k='k2']")
	editRoot.Attach(editEntry, tree.PosLast, nil)

	newDs, diff, changed, err := edit.Apply(nil, ds, editRoot, edit.OpMerge)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("expected change")
	}

	var order []string
	for _, c := range newDs.Children() {
		kc, _ := c.ChildByName("k")
		order = append(order, kc.Value)
	}
	if order[0] != "k2" || order[1] != "k1" || order[2] != "k3" {
		t.Fatalf("unexpected order: %v", order)
	}

	if len(diff.Children()) != 1 {
		t.Fatalf("expected single replace diff, got %d", len(diff.Children()))
	}
	d := diff.Children()[0]
	if origKey, _ := d.GetMeta(meta.OrigKey); origKey != "" {
		t.Fatalf("expected empty orig-key, got %q", origKey)
	}
	if key, _ := d.GetMeta(meta.MoveKey); key != "[k='k2']" {
		t.Fatalf("expected key [k='k2'], got %q", key)
	}
}

// S4 -- default-flag survival across delete.
func TestDefaultFlagSurvival(t *testing.T) {
	root := schema.New("", "root", schema.Container)
	d := schema.New("tsd-test", "d", schema.Leaf).WithDefault("10")
	root.AddChild(d)

	ds := tree.New(root, "")
	ds.Attach(tree.New(d, "10"), tree.PosLast, nil)
	ds.Children()[0].Default = true

	// Set D=5.
	editRoot := tree.New(root, "")
	editD := tree.New(d, "5")
	editD.SetMeta(meta.Operation, "merge")
	editRoot.Attach(editD, tree.PosLast, nil)

	ds2, _, changed, err := edit.Apply(nil, ds, editRoot, edit.OpMerge)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("expected change setting D=5")
	}
	dNode, _ := ds2.ChildByName("d")
	if dNode.Value != "5" || dNode.Default {
		t.Fatalf("expected D=5 non-default, got %+v", dNode)
	}

	// Delete D.
	editRoot2 := tree.New(root, "")
	editD2 := tree.New(d, "")
	editD2.SetMeta(meta.Operation, "delete")
	editRoot2.Attach(editD2, tree.PosLast, nil)

	ds3, diff3, changed3, err := edit.Apply(nil, ds2, editRoot2, edit.OpMerge)
	if err != nil {
		t.Fatal(err)
	}
	if !changed3 {
		t.Fatal("expected change deleting D")
	}
	dNode3, _ := ds3.ChildByName("d")
	if dNode3.Value != "10" || !dNode3.Default {
		t.Fatalf("expected D reverted to default 10, got %+v", dNode3)
	}
	if len(diff3.Children()) != 1 {
		t.Fatalf("expected single replace-to-default diff, got %d", len(diff3.Children()))
	}

	// Re-setting to the default explicitly is then an empty diff.
	editRoot3 := tree.New(root, "")
	editD3 := tree.New(d, "10")
	editD3.SetMeta(meta.Operation, "merge")
	editRoot3.Attach(editD3, tree.PosLast, nil)

	_, diff4, changed4, err := edit.Apply(nil, ds3, editRoot3, edit.OpMerge)
	if err != nil {
		t.Fatal(err)
	}
	if changed4 || diff4 != nil {
		t.Fatalf("expected no-op re-setting default, got changed=%v diff=%v", changed4, diff4)
	}
}
