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

// Merge combines base with a subsequently produced incoming diff
// (base ⊕ incoming → merged), per the operation table in §4.C. Neither
// argument is mutated.
func Merge(base, incoming *tree.Node) (*tree.Node, error) {
	if base == nil && incoming == nil {
		return nil, nil
	}
	if base == nil {
		return incoming.Clone(true), nil
	}
	if incoming == nil {
		return base.Clone(true), nil
	}
	if base.Schema != incoming.Schema {
		return nil, errkind.New(errkind.InvalidArg, "", "merge: root schema mismatch")
	}
	merged := tree.New(base.Schema, base.Value)
	if err := mergeChildren(merged, base, incoming); err != nil {
		return nil, err
	}
	return merged, nil
}

// mergeChildren merges incoming's children into base's, each incoming
// node located in base by the §4.B matching rules; unmatched incoming
// nodes are new diff subtrees, unmatched base nodes pass through
// unchanged.
func mergeChildren(out, base, incoming *tree.Node) error {
	consumed := make(map[*tree.Node]bool)
	for _, ic := range incoming.Children() {
		bc, err := findMatch(base, ic)
		if err != nil {
			return err
		}
		if bc == nil {
			if err := out.Attach(ic.Clone(true), tree.PosLast, nil); err != nil {
				return err
			}
			continue
		}
		consumed[bc] = true
		merged, err := mergeNode(bc, ic)
		if err != nil {
			return err
		}
		if merged != nil {
			if err := out.Attach(merged, tree.PosLast, nil); err != nil {
				return err
			}
		}
	}
	for _, bc := range base.Children() {
		if consumed[bc] {
			continue
		}
		if err := out.Attach(bc.Clone(true), tree.PosLast, nil); err != nil {
			return err
		}
	}
	return nil
}

func mergeNode(base, incoming *tree.Node) (*tree.Node, error) {
	bop, _ := opOf(base)
	iop, _ := opOf(incoming)

	switch bop {
	case edit.DiffNone:
		return mergeFromNone(base, incoming, iop)
	case edit.DiffCreate:
		return mergeFromCreate(base, incoming, iop)
	case edit.DiffReplace:
		return mergeFromReplace(base, incoming, iop)
	case edit.DiffDelete:
		return nil, errkind.New(errkind.Internal, pathOf(base), "merge: base already deletes this node")
	}
	return nil, errkind.New(errkind.Internal, pathOf(base), "merge: unhandled base operation %v", bop)
}

func mergeFromNone(base, incoming *tree.Node, iop edit.DiffOp) (*tree.Node, error) {
	switch iop {
	case edit.DiffNone:
		r := tree.New(base.Schema, base.Value)
		setOp(r, edit.DiffNone)
		if err := mergeChildren(r, base, incoming); err != nil {
			return nil, err
		}
		return r, nil

	case edit.DiffCreate, edit.DiffDelete:
		return incoming.Clone(true), nil

	case edit.DiffReplace:
		r := tree.New(incoming.Schema, incoming.Value)
		setOp(r, edit.DiffReplace)
		copyReplaceMeta(r, incoming)
		if err := mergeChildren(r, base, incoming); err != nil {
			return nil, err
		}
		return r, nil
	}
	return nil, errkind.New(errkind.Internal, pathOf(base), "merge: unhandled incoming operation %v", iop)
}

func mergeFromCreate(base, incoming *tree.Node, iop edit.DiffOp) (*tree.Node, error) {
	switch iop {
	case edit.DiffNone:
		return base.Clone(true), nil

	case edit.DiffCreate:
		if base.Schema.Type() == schema.Leaf {
			r := base.Clone(true)
			r.Value = incoming.Value
			r.Default = incoming.Default
			return r, nil
		}
		return nil, errkind.New(errkind.Internal, pathOf(base), "merge: duplicate create of %s", pathOf(base))

	case edit.DiffReplace:
		r := base.Clone(true)
		switch base.Schema.Type() {
		case schema.Leaf, schema.Anydata, schema.Anyxml:
			r.Value = incoming.Value
			r.Default = incoming.Default
		case schema.List, schema.LeafList:
			if v, ok := incoming.GetMeta(meta.MoveKey); ok {
				r.SetMeta(meta.MoveKey, v)
			}
			if v, ok := incoming.GetMeta(meta.MoveValue); ok {
				r.SetMeta(meta.MoveValue, v)
			}
		}
		if base.Schema.Type() == schema.Container || base.Schema.Type() == schema.List {
			nr := tree.New(base.Schema, r.Value)
			setOp(nr, edit.DiffCreate)
			for k, v := range exportMeta(r) {
				nr.SetMeta(k, v)
			}
			if err := mergeChildren(nr, base, incoming); err != nil {
				return nil, err
			}
			return nr, nil
		}
		return r, nil

	case edit.DiffDelete:
		if base.Schema.Type() == schema.Leaf && base.Value != incoming.Value {
			r := tree.New(base.Schema, incoming.Value)
			setOp(r, edit.DiffReplace)
			r.SetMeta(meta.OrigValue, base.Value)
			return r, nil
		}
		r := tree.New(base.Schema, base.Value)
		setOp(r, edit.DiffNone)
		for _, c := range base.Children() {
			r.Attach(c.Clone(true), tree.PosLast, nil)
		}
		return r, nil
	}
	return nil, errkind.New(errkind.Internal, pathOf(base), "merge: unhandled incoming operation %v", iop)
}

func mergeFromReplace(base, incoming *tree.Node, iop edit.DiffOp) (*tree.Node, error) {
	switch iop {
	case edit.DiffNone:
		return base.Clone(true), nil

	case edit.DiffCreate:
		return nil, errkind.New(errkind.Internal, pathOf(base), "merge: create over an already-replaced node")

	case edit.DiffReplace:
		r := tree.New(base.Schema, incoming.Value)
		setOp(r, edit.DiffReplace)
		switch base.Schema.Type() {
		case schema.Leaf, schema.Anydata, schema.Anyxml:
			if orig, ok := base.GetMeta(meta.OrigValue); ok {
				r.SetMeta(meta.OrigValue, orig)
			}
			if _, ok := base.GetMeta(meta.OrigDefault); ok {
				r.SetMeta(meta.OrigDefault, "true")
			}
			r.Default = incoming.Default
		case schema.List:
			if v, ok := base.GetMeta(meta.OrigKey); ok {
				r.SetMeta(meta.OrigKey, v)
			}
			if v, ok := incoming.GetMeta(meta.MoveKey); ok {
				r.SetMeta(meta.MoveKey, v)
			}
			if err := mergeChildren(r, base, incoming); err != nil {
				return nil, err
			}
		case schema.LeafList:
			if v, ok := base.GetMeta(meta.OrigValue); ok {
				r.SetMeta(meta.OrigValue, v)
			}
			if v, ok := incoming.GetMeta(meta.MoveValue); ok {
				r.SetMeta(meta.MoveValue, v)
			}
		case schema.Container:
			if err := mergeChildren(r, base, incoming); err != nil {
				return nil, err
			}
		}
		return r, nil

	case edit.DiffDelete:
		return incoming.Clone(true), nil
	}
	return nil, errkind.New(errkind.Internal, pathOf(base), "merge: unhandled incoming operation %v", iop)
}

func copyReplaceMeta(dst, src *tree.Node) {
	for _, k := range []meta.Key{meta.OrigValue, meta.OrigDefault, meta.OrigKey, meta.MoveKey, meta.MoveValue, meta.Origin} {
		if v, ok := src.GetMeta(k); ok {
			dst.SetMeta(k, v)
		}
	}
	dst.Default = src.Default
}

func exportMeta(n *tree.Node) map[meta.Key]string {
	out := make(map[meta.Key]string)
	for _, k := range []meta.Key{meta.OrigValue, meta.OrigDefault, meta.OrigKey, meta.MoveKey, meta.MoveValue, meta.Origin} {
		if v, ok := n.GetMeta(k); ok {
			out[k] = v
		}
	}
	return out
}
