// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package tree

import (
	"strings"

	"github.com/danos/tsd/errkind"
	"github.com/danos/tsd/schema"
	"github.com/danos/utils/pathutil"
)

// Segment is one parsed path step: a schema node name plus, for list
// instances, the key-leaf predicate values keyed by leaf name (e.g.
// "interface[name='eth0']" parses to {Name: "interface", Keys:
// {"name": "eth0"}}), or for leaf-list instances the literal value
// predicate. A segment with no predicate matches any instance (used by
// get_subtree/get_data to select a whole list, not one entry).
type Segment struct {
	Name         string
	Keys         map[string]string
	Value        string
	HasPredicate bool
}

// ParsePath splits a "/"-separated path with bracket key predicates
// (the server/load_keys.go-style path syntax this module's public API
// accepts) into Segments. A leading "/" is optional; empty segments are
// skipped so "/a/b" and "a/b" parse identically.
func ParsePath(path string) ([]Segment, error) {
	var segs []Segment
	var cur strings.Builder
	depth := 0
	flush := func() error {
		if cur.Len() == 0 {
			return nil
		}
		seg, err := parseSegment(cur.String())
		if err != nil {
			return err
		}
		segs = append(segs, seg)
		cur.Reset()
		return nil
	}
	for _, r := range path {
		switch r {
		case '[':
			depth++
			cur.WriteRune(r)
		case ']':
			depth--
			if depth < 0 {
				return nil, errkind.New(errkind.InvalidArg, path, "unbalanced ']' in path")
			}
			cur.WriteRune(r)
		case '/':
			if depth > 0 {
				cur.WriteRune(r)
				continue
			}
			if err := flush(); err != nil {
				return nil, err
			}
		default:
			cur.WriteRune(r)
		}
	}
	if depth != 0 {
		return nil, errkind.New(errkind.InvalidArg, path, "unbalanced '[' in path")
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return segs, nil
}

func parseSegment(s string) (Segment, error) {
	br := strings.IndexByte(s, '[')
	if br < 0 {
		return Segment{Name: s}, nil
	}
	if !strings.HasSuffix(s, "]") {
		return Segment{}, errkind.New(errkind.InvalidArg, s, "malformed predicate")
	}
	name := s[:br]
	pred := s[br+1 : len(s)-1]

	seg := Segment{Name: name, HasPredicate: true}
	// Leaf-list value predicate: "[.='value']"; list key predicate(s):
	// "[key='value'][key2='value2']" folded into one bracket group by
	// the caller above (depth tracking keeps them together).
	if strings.HasPrefix(pred, ".=") {
		seg.Value = unquote(pred[2:])
		return seg, nil
	}
	seg.Keys = make(map[string]string)
	for _, kv := range splitPredicateGroups(pred) {
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			return Segment{}, errkind.New(errkind.InvalidArg, s, "malformed key predicate %q", kv)
		}
		seg.Keys[kv[:eq]] = unquote(kv[eq+1:])
	}
	return seg, nil
}

// splitPredicateGroups splits "k1='v1'][k2='v2'" style joined
// predicates (produced when the caller concatenated multiple bracket
// groups without separators) back into individual "k='v'" clauses.
func splitPredicateGroups(s string) []string {
	return strings.Split(s, "][")
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// ResolvePath walks root's descendants per segs, matching each step by
// schema name and, when the segment carries key/value predicates, by
// that predicate too. It stops and returns false the first time a step
// has no match (§6's get_subtree/get_data accept a path that may
// legitimately select nothing, which is not itself an error).
func ResolvePath(root *Node, segs []Segment) (*Node, bool) {
	cur := root
	for _, seg := range segs {
		if cur.Schema.Name() == seg.Name && cur == root {
			// Allow the caller to include the root's own name as segs[0].
			continue
		}
		next, ok := stepInto(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func stepInto(cur *Node, seg Segment) (*Node, bool) {
	candidates := make([]*Node, 0, 1)
	for _, c := range cur.Children() {
		if c.Schema.Name() == seg.Name {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	if !seg.HasPredicate {
		return candidates[0], true
	}
	for _, c := range candidates {
		if matchesPredicate(c, seg) {
			return c, true
		}
	}
	return nil, false
}

func matchesPredicate(n *Node, seg Segment) bool {
	switch n.Schema.Type() {
	case schema.List:
		for k, v := range seg.Keys {
			child, ok := n.ChildByName(k)
			if !ok || child.Value != v {
				return false
			}
		}
		return true
	case schema.LeafList:
		return n.Value == seg.Value
	default:
		return true
	}
}

// PathString renders n's absolute path as a single string using the
// same segment-join convention the teacher's error paths use
// (pathutil.Pathstr), e.g. for populating a structured error's Path
// field.
func PathString(n *Node, withPredicate bool) string {
	return "/" + pathutil.Pathstr(n.Path(withPredicate))
}
