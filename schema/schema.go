// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package schema is the minimal schema-node model the rest of tsd builds
// on. A real deployment would source this from a YANG compiler (as
// configd sources github.com/danos/yang/schema); parsing .yang text is
// out of scope here, so this package exposes only the shape that the
// edit/diff engine and tree adapter need: node kind, key leaves, default
// values and ordering.
package schema

// NodeType enumerates the schema node kinds a data tree can instantiate.
type NodeType int

const (
	Container NodeType = iota
	List
	Leaf
	LeafList
	Anydata
	Anyxml
)

func (t NodeType) String() string {
	switch t {
	case Container:
		return "container"
	case List:
		return "list"
	case Leaf:
		return "leaf"
	case LeafList:
		return "leaf-list"
	case Anydata:
		return "anydata"
	case Anyxml:
		return "anyxml"
	}
	return "unknown"
}

// Node is one node in a compiled schema tree. Containers and lists carry
// children; leaves and leaf-lists carry a Default.
type Node struct {
	name        string
	module      string
	ntype       NodeType
	presence    bool
	userOrdered bool
	keys        []string
	def         string
	hasDefault  bool
	children    map[string]*Node
	order       []string
}

// New constructs a schema node. Every node, terminal or not, starts
// with an empty children map.
func New(module, name string, ntype NodeType) *Node {
	return &Node{
		name:     name,
		module:   module,
		ntype:    ntype,
		children: make(map[string]*Node),
	}
}

func (n *Node) Name() string     { return n.name }
func (n *Node) Module() string   { return n.module }
func (n *Node) Type() NodeType   { return n.ntype }
func (n *Node) Presence() bool   { return n.presence }
func (n *Node) UserOrdered() bool { return n.userOrdered }
func (n *Node) Keys() []string   { return n.keys }

// Default returns the leaf/leaf-list default value and whether one is
// defined in the schema.
func (n *Node) Default() (string, bool) { return n.def, n.hasDefault }

// IsOrderedTarget reports whether matches of this schema may carry
// user-ordered move metadata (user-ordered list or leaf-list).
func (n *Node) IsOrderedTarget() bool {
	return n.userOrdered && (n.ntype == List || n.ntype == LeafList)
}

// Child looks up an immediate child schema node by name.
func (n *Node) Child(name string) (*Node, bool) {
	c, ok := n.children[name]
	return c, ok
}

// Children returns children in schema declaration order.
func (n *Node) Children() []*Node {
	out := make([]*Node, 0, len(n.order))
	for _, name := range n.order {
		out = append(out, n.children[name])
	}
	return out
}

func (n *Node) WithPresence() *Node {
	n.presence = true
	return n
}

func (n *Node) WithUserOrdered() *Node {
	n.userOrdered = true
	return n
}

func (n *Node) WithKeys(keys ...string) *Node {
	n.keys = keys
	return n
}

func (n *Node) WithDefault(val string) *Node {
	n.def = val
	n.hasDefault = true
	return n
}

// AddChild installs a child schema node, preserving declaration order.
func (n *Node) AddChild(c *Node) *Node {
	if _, exists := n.children[c.name]; !exists {
		n.order = append(n.order, c.name)
	}
	n.children[c.name] = c
	return n
}
