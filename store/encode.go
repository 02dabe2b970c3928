// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package store

import (
	"sort"
	"strconv"

	"github.com/danos/encoding/rfc7951"
	"github.com/danos/tsd/errkind"
	"github.com/danos/tsd/schema"
	"github.com/danos/tsd/tree"
	"github.com/danos/utils/natsort"
)

// Encode renders root's subtree as canonical RFC 7951 JSON (§6 "encoded
// as a schema-bound data tree in the implementation's binary format"),
// first collapsing it into the plain map/slice shape rfc7951.Marshal
// expects (the same map-of-module-qualified-names shape the teacher's
// own northbound encoders produce from a datanode tree).
func Encode(root *tree.Node) ([]byte, error) {
	v, err := nodeToValue(root)
	if err != nil {
		return nil, err
	}
	b, err := rfc7951.Marshal(v)
	if err != nil {
		return nil, errkind.New(errkind.Sys, "", "encoding rfc7951: %v", err)
	}
	return b, nil
}

// Decode parses RFC 7951 JSON back into a data tree rooted at sch.
func Decode(data []byte, sch *schema.Node) (*tree.Node, error) {
	var v map[string]interface{}
	if err := rfc7951.Unmarshal(data, &v); err != nil {
		return nil, errkind.New(errkind.Sys, "", "decoding rfc7951: %v", err)
	}
	root := tree.New(sch, "")
	if err := populateChildren(root, sch, v); err != nil {
		return nil, err
	}
	return root, nil
}

// nodeToValue walks n's children, grouping same-schema siblings
// (list/leaf-list entries) into JSON arrays the way RFC 7951 requires.
func nodeToValue(n *tree.Node) (interface{}, error) {
	switch n.Schema.Type() {
	case schema.Leaf, schema.Anydata, schema.Anyxml:
		return n.Value, nil
	case schema.LeafList:
		return n.Value, nil
	}

	out := map[string]interface{}{}
	order := []string{}
	grouped := map[string][]*tree.Node{}
	for _, c := range n.Children() {
		name := c.Schema.Name()
		if _, seen := grouped[name]; !seen {
			order = append(order, name)
		}
		grouped[name] = append(grouped[name], c)
	}
	for _, name := range order {
		siblings := grouped[name]
		sch := siblings[0].Schema
		if sch.Type() == schema.List || sch.Type() == schema.LeafList {
			if !sch.UserOrdered() {
				// Non-user-ordered siblings carry no significant order
				// (§3): sort them into a canonical natural-sort order so
				// two in-memory trees with identical content always
				// produce byte-identical persisted files, independent of
				// insertion order. github.com/danos/utils/natsort is the
				// same comparator the teacher's CLI uses to present
				// interface-style names ("eth2" before "eth10") in the
				// order a human expects rather than plain lexical order.
				siblings = append([]*tree.Node(nil), siblings...)
				sort.SliceStable(siblings, func(i, j int) bool {
					return natsort.Compare(canonicalSortKey(siblings[i]), canonicalSortKey(siblings[j]))
				})
			}
			arr := make([]interface{}, 0, len(siblings))
			for _, s := range siblings {
				v, err := nodeToValue(s)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			out[name] = arr
			continue
		}
		v, err := nodeToValue(siblings[0])
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// canonicalSortKey is the string a non-user-ordered sibling sorts by:
// its key-tuple predicate for lists, its canonical value for leaf-lists.
func canonicalSortKey(n *tree.Node) string {
	if n.Schema.Type() == schema.LeafList {
		return n.Value
	}
	return n.KeyPredicate()
}

// populateChildren is nodeToValue's inverse: attach decoded children
// under parent according to sch, turning JSON arrays back into repeated
// list/leaf-list siblings.
func populateChildren(parent *tree.Node, sch *schema.Node, v map[string]interface{}) error {
	for _, childSch := range sch.Children() {
		raw, ok := v[childSch.Name()]
		if !ok {
			continue
		}
		switch childSch.Type() {
		case schema.List:
			arr, ok := raw.([]interface{})
			if !ok {
				return errkind.New(errkind.InvalidArg, "", "expected array for list %q", childSch.Name())
			}
			for _, elem := range arr {
				m, ok := elem.(map[string]interface{})
				if !ok {
					return errkind.New(errkind.InvalidArg, "", "expected object for list entry %q", childSch.Name())
				}
				child := tree.New(childSch, "")
				if err := populateChildren(child, childSch, m); err != nil {
					return err
				}
				if err := parent.Attach(child, tree.PosLast, nil); err != nil {
					return err
				}
			}
		case schema.LeafList:
			arr, ok := raw.([]interface{})
			if !ok {
				return errkind.New(errkind.InvalidArg, "", "expected array for leaf-list %q", childSch.Name())
			}
			for _, elem := range arr {
				child := tree.New(childSch, scalarToString(elem))
				if err := parent.Attach(child, tree.PosLast, nil); err != nil {
					return err
				}
			}
		case schema.Leaf, schema.Anydata, schema.Anyxml:
			child := tree.New(childSch, scalarToString(raw))
			if err := parent.Attach(child, tree.PosLast, nil); err != nil {
				return err
			}
		case schema.Container:
			m, ok := raw.(map[string]interface{})
			if !ok {
				return errkind.New(errkind.InvalidArg, "", "expected object for container %q", childSch.Name())
			}
			child := tree.New(childSch, "")
			if err := populateChildren(child, childSch, m); err != nil {
				return err
			}
			if err := parent.Attach(child, tree.PosLast, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func scalarToString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case nil:
		return ""
	default:
		return ""
	}
}
