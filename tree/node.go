// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package tree is the narrow, typed facade over data-tree manipulation
// that the edit and diff algebras build on (component A, §4.A). It plays
// the role that github.com/danos/yang/data/datanode plays for configd:
// everything above this package only ever touches nodes through these
// operations, never the slice/map internals directly.
package tree

import (
	"strings"

	"github.com/danos/tsd/errkind"
	"github.com/danos/tsd/meta"
	"github.com/danos/tsd/schema"
)

// Node is one instance node in a data tree. All mutation goes through
// the methods below so that invariants (order, parent pointers) cannot
// be broken by a caller reaching into the slice directly.
type Node struct {
	Schema   *schema.Node
	Value    string
	Default  bool
	parent   *Node
	children []*Node
	metadata map[meta.Key]string
}

// New constructs a detached node for sch with canonical value val (val
// is ignored for containers/lists).
func New(sch *schema.Node, val string) *Node {
	if sch == nil {
		return nil
	}
	return &Node{Schema: sch, Value: val}
}

// Children returns the live ordered child slice. Callers must not
// mutate it directly; use Attach/Detach.
func (n *Node) Children() []*Node { return n.children }

// Parent returns the owning node, or nil if detached/root.
func (n *Node) Parent() *Node { return n.parent }

// InsertPos is where Attach places a new child among same-schema
// siblings of a user-ordered list/leaf-list, or among all children of a
// container/list for plain appends.
type InsertPos int

const (
	PosLast InsertPos = iota
	PosFirst
	PosBefore
	PosAfter
)

// Attach inserts child as a child of n. For PosBefore/PosAfter, anchor
// must be one of n's current children (typically matched by the same
// schema as child); for PosFirst/PosLast the node is placed at the
// start/end of the full child list so that non-ordered siblings keep a
// stable (schema declaration adjacent) arrangement.
func (n *Node) Attach(child *Node, pos InsertPos, anchor *Node) error {
	if child == nil {
		return errkind.New(errkind.InvalidArg, "", "cannot attach nil node")
	}
	if child.parent != nil {
		return errkind.New(errkind.InvalidArg, "", "node already attached")
	}
	child.parent = n
	switch pos {
	case PosFirst:
		n.children = append([]*Node{child}, n.children...)
	case PosLast:
		n.children = append(n.children, child)
	case PosBefore, PosAfter:
		idx := n.indexOf(anchor)
		if idx < 0 {
			child.parent = nil
			return errkind.New(errkind.InvalidArg, "", "insert anchor not found among children")
		}
		if pos == PosAfter {
			idx++
		}
		n.children = append(n.children, nil)
		copy(n.children[idx+1:], n.children[idx:])
		n.children[idx] = child
	default:
		child.parent = nil
		return errkind.New(errkind.Internal, "", "unknown insert position %d", pos)
	}
	return nil
}

func (n *Node) indexOf(target *Node) int {
	for i, c := range n.children {
		if c == target {
			return i
		}
	}
	return -1
}

// Detach removes n from its parent's child list; n becomes a standalone
// subtree root. It is a no-op if n has no parent.
func (n *Node) Detach() {
	if n.parent == nil {
		return
	}
	p := n.parent
	idx := p.indexOf(n)
	if idx >= 0 {
		p.children = append(p.children[:idx], p.children[idx+1:]...)
	}
	n.parent = nil
}

// Clone deep-copies the subtree rooted at n. When withMeta is false the
// clone carries no metadata (used when duplicating an edit subtree into
// a diff, where only the explicit diff metadata keys should survive).
func (n *Node) Clone(withMeta bool) *Node {
	if n == nil {
		return nil
	}
	c := &Node{Schema: n.Schema, Value: n.Value, Default: n.Default}
	if withMeta && len(n.metadata) > 0 {
		c.metadata = make(map[meta.Key]string, len(n.metadata))
		for k, v := range n.metadata {
			c.metadata[k] = v
		}
	}
	for _, ch := range n.children {
		cc := ch.Clone(withMeta)
		cc.parent = c
		c.children = append(c.children, cc)
	}
	return c
}

// SetMeta/GetMeta/DeleteMeta manage the per-node metadata map (§9:
// typed map keyed by a closed enum, never free-form strings).
func (n *Node) SetMeta(k meta.Key, v string) {
	if n.metadata == nil {
		n.metadata = make(map[meta.Key]string)
	}
	n.metadata[k] = v
}

func (n *Node) GetMeta(k meta.Key) (string, bool) {
	v, ok := n.metadata[k]
	return v, ok
}

func (n *Node) DeleteMeta(k meta.Key) {
	delete(n.metadata, k)
}

// ValEqual reports canonical-value equality used for matching (§4.B).
// Containers and lists are always "value equal" (matching is by key/
// schema identity, handled by the caller); leaves, leaf-lists and
// anydata compare canonical strings.
func (n *Node) ValEqual(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	switch n.Schema.Type() {
	case schema.Container, schema.List:
		return true
	default:
		return n.Value == other.Value
	}
}

// PrevSiblingSameSchema/NextSiblingSameSchema return the nearest sibling
// sharing n's schema node, or nil if n is first/last among them. These
// back the user-ordered move bookkeeping of §3 invariant 5.
func (n *Node) PrevSiblingSameSchema() *Node {
	if n.parent == nil {
		return nil
	}
	idx := n.parent.indexOf(n)
	for i := idx - 1; i >= 0; i-- {
		if n.parent.children[i].Schema == n.Schema {
			return n.parent.children[i]
		}
	}
	return nil
}

func (n *Node) NextSiblingSameSchema() *Node {
	if n.parent == nil {
		return nil
	}
	idx := n.parent.indexOf(n)
	for i := idx + 1; i < len(n.parent.children); i++ {
		if n.parent.children[i].Schema == n.Schema {
			return n.parent.children[i]
		}
	}
	return nil
}

// KeyPredicate renders the canonical key tuple of a list node ("[name='eth0'][unit='0']")
// or the canonical value of a leaf-list node, as used in diff move
// metadata (empty string means "no predecessor", i.e. now first).
func (n *Node) KeyPredicate() string {
	if n == nil {
		return ""
	}
	switch n.Schema.Type() {
	case schema.List:
		var b strings.Builder
		for _, k := range n.Schema.Keys() {
			child, ok := n.ChildByName(k)
			if !ok {
				continue
			}
			b.WriteByte('[')
			b.WriteString(k)
			b.WriteString("='")
			b.WriteString(child.Value)
			b.WriteString("']")
		}
		return b.String()
	case schema.LeafList:
		return n.Value
	default:
		return ""
	}
}

// ChildByName finds an immediate child whose schema name matches name.
func (n *Node) ChildByName(name string) (*Node, bool) {
	for _, c := range n.children {
		if c.Schema.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// KeyValues returns the key-leaf values of a list node in schema key
// order, used by the edit algebra's list-matching rule.
func (n *Node) KeyValues() ([]string, error) {
	keys := n.Schema.Keys()
	vals := make([]string, 0, len(keys))
	for _, k := range keys {
		child, ok := n.ChildByName(k)
		if !ok {
			return nil, errkind.New(errkind.ValidationFailed, "",
				"list %q missing key leaf %q", n.Schema.Name(), k)
		}
		vals = append(vals, child.Value)
	}
	return vals, nil
}

// Path renders the absolute path to n as schema-name segments, with an
// optional trailing list/leaf-list predicate on the last element.
func (n *Node) Path(withPredicate bool) []string {
	var segs []string
	for cur := n; cur != nil; cur = cur.parent {
		seg := cur.Schema.Name()
		if withPredicate || cur != n {
			if pred := cur.KeyPredicate(); pred != "" {
				seg += pred
			}
		}
		segs = append([]string{seg}, segs...)
	}
	return segs
}
