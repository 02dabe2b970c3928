// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package edit

import (
	"github.com/danos/tsd/meta"
	"github.com/danos/tsd/schema"
	"github.com/danos/tsd/tree"
)

// replaceLeafValue changes match's value to ec's, emitting the
// orig-value/orig-default diff metadata of §3.
func replaceLeafValue(ctx *Context, match, ec *tree.Node) (bool, *tree.Node, error) {
	old := match.Value
	oldDefault := match.Default
	match.Value = ec.Value
	match.Default = false

	d := tree.New(match.Schema, match.Value)
	setDiffOp(d, DiffReplace)
	d.SetMeta(meta.OrigValue, old)
	if oldDefault {
		d.SetMeta(meta.OrigDefault, "true")
	}
	return true, d, nil
}

// anydataEqual performs the "subtree canonicalization" equality check
// for anydata/anyxml the matching rules call for; this implementation
// treats the opaque payload as an already-canonicalized string, which
// is sufficient given anydata is out of scope for structural editing.
func anydataEqual(a, b *tree.Node) bool {
	return a.Value == b.Value
}

func replaceAnydata(match, ec *tree.Node) (bool, *tree.Node, error) {
	old := match.Value
	match.Value = ec.Value
	d := tree.New(match.Schema, match.Value)
	setDiffOp(d, DiffReplace)
	d.SetMeta(meta.OrigValue, old)
	return true, d, nil
}

// stampOrigin writes the operational-datastore origin metadatum onto a
// newly created diff node: the nearest explicit origin on ec or its
// edit-tree ancestors, or the context default if none is present.
func stampOrigin(ctx *Context, diffChild, ec *tree.Node) {
	for e := ec; e != nil; e = e.Parent() {
		if v, ok := e.GetMeta(meta.Origin); ok {
			diffChild.SetMeta(meta.Origin, v)
			return
		}
	}
	if ctx != nil && ctx.DefaultOrigin != "" {
		diffChild.SetMeta(meta.Origin, ctx.DefaultOrigin)
	}
}

// materializeDefaults instantiates schema-defaulted leaf children
// (leaf-list defaults are not materialized) that a freshly created
// container or list entry doesn't
// already have, per invariant 6: a leaf becomes defaulted only when
// implicitly created by the engine.
func materializeDefaults(ctx *Context, parent *tree.Node) []*tree.Node {
	var added []*tree.Node
	for _, sc := range parent.Schema.Children() {
		if sc.Type() != schema.Leaf {
			continue
		}
		def, ok := sc.Default()
		if !ok {
			continue
		}
		if _, exists := parent.ChildByName(sc.Name()); exists {
			continue
		}
		n := tree.New(sc, def)
		n.Default = true
		if err := parent.Attach(n, tree.PosLast, nil); err != nil {
			continue
		}
		added = append(added, n)
	}
	return added
}

// fixupDefaultFlag implements the container default-flag fix-up of
// §4.B: a non-presence container whose children are all defaulted
// becomes defaulted itself.
func fixupDefaultFlag(parent *tree.Node) {
	if parent.Schema == nil || parent.Schema.Type() != schema.Container || parent.Schema.Presence() {
		return
	}
	children := parent.Children()
	if len(children) == 0 {
		return
	}
	for _, c := range children {
		if !c.Default {
			parent.Default = false
			return
		}
	}
	parent.Default = true
}

// pruneAbsentChildren deletes, recursively, any child of match whose
// schema is not represented among ec's children -- the "replace = make
// subtree exactly equal to edit" rule.
func pruneAbsentChildren(ctx *Context, match, ec, diffChild *tree.Node) (bool, error) {
	wanted := make(map[*schema.Node]bool)
	for _, c := range ec.Children() {
		wanted[c.Schema] = true
	}

	changed := false
	for _, mc := range append([]*tree.Node(nil), match.Children()...) {
		if wanted[mc.Schema] {
			continue
		}
		full := mc.Clone(false)
		mc.Detach()
		setDiffOp(full, DiffDelete)
		if err := diffChild.Attach(full, tree.PosLast, nil); err != nil {
			return changed, err
		}
		changed = true
	}
	return changed, nil
}

// pruneRedundant implements invariant 4: drop any interior diff node
// whose subtree carries no real change, recursively, bottom-up.
func pruneRedundant(n *tree.Node) bool {
	hasChange := false
	for _, c := range append([]*tree.Node(nil), n.Children()...) {
		if pruneRedundant(c) {
			hasChange = true
		} else {
			c.Detach()
		}
	}
	op, _ := diffOpOf(n)
	if op != DiffNone {
		hasChange = true
	}
	return hasChange
}
