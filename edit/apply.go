// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package edit implements the edit algebra of §4.B: applying one edit
// tree onto one data tree, producing a new data tree and a canonical
// diff tree. It is grounded on how session/edit_config.go in configd
// drives github.com/danos/config/union's merge/replace walk, adapted
// into a self-contained algebra per the spec (configd delegates the
// algorithm itself to that external package, which this module instead
// implements directly, since the edit/diff engine is this spec's core).
package edit

import (
	"github.com/danos/tsd/errkind"
	"github.com/danos/tsd/meta"
	"github.com/danos/tsd/schema"
	"github.com/danos/tsd/tree"
)

// Context carries per-transaction parameters the algebra needs but that
// aren't part of either tree: the origin to stamp on newly created
// operational-datastore nodes when the edit doesn't specify one.
type Context struct {
	DefaultOrigin string
}

// Apply runs apply_edit(ds_root, edit_root, parent_op) from §4.B. ds and
// edit must share the same schema (typically a per-module root
// container). On success it returns the new data tree (a private copy;
// ds is left untouched either way) and the canonical diff, which is nil
// when changed is false.
func Apply(ctx *Context, ds, editRoot *tree.Node, parentOp Op) (newDs, diff *tree.Node, changed bool, err error) {
	if ds == nil || editRoot == nil {
		return nil, nil, false, errkind.New(errkind.InvalidArg, "", "apply requires non-nil ds and edit roots")
	}
	if ds.Schema != editRoot.Schema {
		return nil, nil, false, errkind.New(errkind.InvalidArg, "", "ds/edit root schema mismatch")
	}

	working := ds.Clone(true)
	diffRoot := tree.New(ds.Schema, ds.Value)

	changed, err = applyChildren(ctx, working, editRoot, diffRoot, parentOp)
	if err != nil {
		// Working copy is discarded; caller's ds is untouched.
		return nil, nil, false, err
	}

	pruneRedundant(diffRoot)
	if !changed {
		return ds, nil, false, nil
	}
	return working, diffRoot, true, nil
}

// applyChildren processes edit's children against wd's children
// in-place (wd is always a private working copy), attaching a diff
// child to diffParent for every edit child that produces one.
func applyChildren(ctx *Context, wd, editParent, diffParent *tree.Node, parentOp Op) (bool, error) {
	changed := false
	for _, ec := range editParent.Children() {
		effOp := effectiveOp(ec, parentOp)

		match, err := findMatch(wd, ec)
		if err != nil {
			return changed, err
		}

		nodeChanged, diffChild, err := applyOne(ctx, wd, ec, match, effOp)
		if err != nil {
			return changed, err
		}
		if diffChild != nil {
			if err := diffParent.Attach(diffChild, tree.PosLast, nil); err != nil {
				return changed, err
			}
		}
		if nodeChanged {
			changed = true
		}
	}
	fixupDefaultFlag(wd)
	return changed, nil
}

// applyOne implements one row/column of the operation table in §4.B for
// a single edit node ec with resolved operation effOp against its
// match (nil if absent) in wd.
func applyOne(ctx *Context, wd, ec, match *tree.Node, effOp Op) (changed bool, diffChild *tree.Node, err error) {
	switch effOp {
	case OpCreate:
		if match != nil {
			return false, nil, errkind.New(errkind.Exists, pathOf(ec), "node already exists")
		}
		return createNode(ctx, wd, ec, DiffCreate)

	case OpMerge:
		if match == nil {
			return createNode(ctx, wd, ec, DiffCreate)
		}
		return mergeIntoMatch(ctx, wd, ec, match)

	case OpReplace:
		if match == nil {
			c, d, e := createNode(ctx, wd, ec, DiffCreate)
			return c, d, e // nothing to prune on a brand new node
		}
		return replaceMatch(ctx, wd, ec, match)

	case OpDelete:
		if match == nil {
			return false, nil, errkind.New(errkind.NotFound, pathOf(ec), "node does not exist")
		}
		return deleteMatch(ctx, wd, ec, match)

	case OpRemove:
		if match == nil {
			// No-op; descend into ec's own children for validation only.
			return validateOnly(ctx, ec)
		}
		return deleteMatch(ctx, wd, ec, match)

	case OpNone:
		return descendNone(ctx, wd, ec, match)

	case OpEther:
		if match == nil {
			return validateOnly(ctx, ec)
		}
		throwaway := match.Clone(true)
		dummyDiff := tree.New(match.Schema, match.Value)
		_, verr := applyChildren(ctx, throwaway, ec, dummyDiff, OpEther)
		return false, nil, verr

	default:
		return false, nil, errkind.New(errkind.Internal, pathOf(ec), "unhandled operation %v", effOp)
	}
}

// createNode instantiates ec's subtree (and schema defaults it implies)
// as a brand-new child of wd, returning a matching create diff subtree.
func createNode(ctx *Context, wd, ec *tree.Node, op DiffOp) (bool, *tree.Node, error) {
	pos, anchor, err := resolveInsert(wd, ec, nil)
	if err != nil {
		return false, nil, err
	}

	newNode := tree.New(ec.Schema, ec.Value)
	if err := wd.Attach(newNode, pos, anchor); err != nil {
		return false, nil, err
	}

	// Non-presence containers are structural scaffolding: per invariant
	// 4's pruning exception, only a presence container's create/delete
	// is itself diff-worthy, so a plain container's own op folds to
	// none and survives pruning only if a descendant really changed.
	if ec.Schema.Type() == schema.Container && !ec.Schema.Presence() {
		op = DiffNone
	}

	diffChild := tree.New(ec.Schema, ec.Value)
	setDiffOp(diffChild, op)
	stampOrigin(ctx, diffChild, ec)

	if ec.Schema.Type() == schema.Container || ec.Schema.Type() == schema.List {
		if _, err := applyChildren(ctx, newNode, ec, diffChild, OpMerge); err != nil {
			return false, nil, err
		}
		for _, added := range materializeDefaults(ctx, newNode) {
			d := tree.New(added.Schema, added.Value)
			d.Default = true
			setDiffOp(d, DiffCreate)
			if err := diffChild.Attach(d, tree.PosLast, nil); err != nil {
				return false, nil, err
			}
		}
	}

	if ec.Schema.IsOrderedTarget() {
		pred := newNode.PrevSiblingSameSchema()
		setMoveForward(diffChild, ec.Schema, pred)
	}

	return true, diffChild, nil
}

// mergeIntoMatch implements the merge row's "match present" columns.
func mergeIntoMatch(ctx *Context, wd, ec, match *tree.Node) (bool, *tree.Node, error) {
	moved, hadInsert := movedRelativeTo(wd, ec, match)

	switch ec.Schema.Type() {
	case schema.Container, schema.List:
		diffChild := tree.New(match.Schema, match.Value)
		setDiffOp(diffChild, DiffNone)
		changed, err := applyChildren(ctx, match, ec, diffChild, OpMerge)
		if err != nil {
			return false, nil, err
		}
		if hadInsert && moved {
			oldPred := match.PrevSiblingSameSchema()
			if err := repositionMatch(wd, ec, match); err != nil {
				return false, nil, err
			}
			newPred := match.PrevSiblingSameSchema()
			setMoveBackward(diffChild, match.Schema, oldPred)
			setMoveForward(diffChild, match.Schema, newPred)
			setDiffOp(diffChild, DiffReplace)
			return true, diffChild, nil
		}
		return changed, diffChild, nil

	case schema.Leaf:
		if match.ValEqual(ec) {
			return false, nil, nil
		}
		return replaceLeafValue(ctx, match, ec)

	case schema.LeafList:
		if !hadInsert || !moved {
			return false, nil, nil
		}
		oldPred := match.PrevSiblingSameSchema()
		if err := repositionMatch(wd, ec, match); err != nil {
			return false, nil, err
		}
		newPred := match.PrevSiblingSameSchema()
		d := tree.New(match.Schema, match.Value)
		setDiffOp(d, DiffReplace)
		setMoveBackward(d, match.Schema, oldPred)
		setMoveForward(d, match.Schema, newPred)
		return true, d, nil

	case schema.Anydata, schema.Anyxml:
		if anydataEqual(match, ec) {
			return false, nil, nil
		}
		return replaceAnydata(match, ec)
	}
	return false, nil, errkind.New(errkind.Internal, pathOf(ec), "merge: unhandled schema kind")
}

// replaceMatch implements the replace row's "match present" columns,
// including the recursive prune of any child of match absent from ec.
func replaceMatch(ctx *Context, wd, ec, match *tree.Node) (bool, *tree.Node, error) {
	switch ec.Schema.Type() {
	case schema.Container, schema.List:
		diffChild := tree.New(match.Schema, match.Value)
		setDiffOp(diffChild, DiffNone)
		changed, err := applyChildren(ctx, match, ec, diffChild, OpReplace)
		if err != nil {
			return false, nil, err
		}
		prunedChanged, err := pruneAbsentChildren(ctx, match, ec, diffChild)
		if err != nil {
			return false, nil, err
		}
		moved, hadInsert := movedRelativeTo(wd, ec, match)
		if hadInsert && moved {
			oldPred := match.PrevSiblingSameSchema()
			if err := repositionMatch(wd, ec, match); err != nil {
				return false, nil, err
			}
			newPred := match.PrevSiblingSameSchema()
			setMoveBackward(diffChild, match.Schema, oldPred)
			setMoveForward(diffChild, match.Schema, newPred)
			setDiffOp(diffChild, DiffReplace)
			changed = true
		}
		return changed || prunedChanged, diffChild, nil

	case schema.Leaf:
		if match.ValEqual(ec) {
			return false, nil, nil
		}
		return replaceLeafValue(ctx, match, ec)

	case schema.LeafList:
		moved, hadInsert := movedRelativeTo(wd, ec, match)
		if !hadInsert || !moved {
			return false, nil, nil
		}
		oldPred := match.PrevSiblingSameSchema()
		if err := repositionMatch(wd, ec, match); err != nil {
			return false, nil, err
		}
		newPred := match.PrevSiblingSameSchema()
		d := tree.New(match.Schema, match.Value)
		setDiffOp(d, DiffReplace)
		setMoveBackward(d, match.Schema, oldPred)
		setMoveForward(d, match.Schema, newPred)
		return true, d, nil

	case schema.Anydata, schema.Anyxml:
		if anydataEqual(match, ec) {
			return false, nil, nil
		}
		return replaceAnydata(match, ec)
	}
	return false, nil, errkind.New(errkind.Internal, pathOf(ec), "replace: unhandled schema kind")
}

// deleteMatch unlinks match (delete/remove semantics are identical once
// a match exists), reverting a defaulted leaf to its default instead of
// leaving an absence, per invariant 6 and scenario S4.
func deleteMatch(ctx *Context, wd, ec, match *tree.Node) (bool, *tree.Node, error) {
	if match.Schema.Type() == schema.Leaf {
		if def, ok := match.Schema.Default(); ok {
			old := match.Value
			oldDefault := match.Default
			match.Detach()
			replacement := tree.New(match.Schema, def)
			replacement.Default = true
			if _, _, err := attachAfterSameSchema(wd, match.Schema, replacement); err != nil {
				return false, nil, err
			}
			if old == def {
				return false, nil, nil
			}
			d := tree.New(match.Schema, def)
			d.Default = true
			setDiffOp(d, DiffReplace)
			d.SetMeta(meta.OrigValue, old)
			if oldDefault {
				d.SetMeta(meta.OrigDefault, "true")
			}
			return true, d, nil
		}
	}

	full := match.Clone(false)
	match.Detach()
	setDiffOp(full, DiffDelete)
	return true, full, nil
}

// validateOnly descends into ec's children purely to surface structural
// errors (unknown operations, malformed inserts) without touching data
// or emitting a diff; used by remove-with-no-match and ether-with-no-match.
func validateOnly(ctx *Context, ec *tree.Node) (bool, *tree.Node, error) {
	dummyParent := tree.New(ec.Schema, ec.Value)
	dummyDiff := tree.New(ec.Schema, ec.Value)
	_, err := applyChildren(ctx, dummyParent, ec, dummyDiff, OpNone)
	return false, nil, err
}

// descendNone implements the "none" row: recurse, keeping an interior
// diff=none node only if a descendant produced a real change.
func descendNone(ctx *Context, wd, ec, match *tree.Node) (bool, *tree.Node, error) {
	target := match
	if target == nil {
		// Auto-vivify a bare structural (non-presence) scaffold -- no
		// recursion, no materialized defaults -- so children with their
		// own operation can still be processed against it below.
		pos, anchor, err := resolveInsert(wd, ec, nil)
		if err != nil {
			return false, nil, err
		}
		target = tree.New(ec.Schema, ec.Value)
		if err := wd.Attach(target, pos, anchor); err != nil {
			return false, nil, err
		}
	}

	diffChild := tree.New(target.Schema, target.Value)
	setDiffOp(diffChild, DiffNone)
	changed, err := applyChildren(ctx, target, ec, diffChild, OpNone)
	return changed, diffChild, err
}

func pathOf(n *tree.Node) string {
	segs := n.Path(true)
	out := ""
	for _, s := range segs {
		out += "/" + s
	}
	return out
}
