// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package edit

import "github.com/danos/tsd/errkind"

// Op is the closed set of edit operations from §3: a sum type, not a
// string convention, per the DESIGN NOTES in §9.
type Op int

const (
	OpNone Op = iota
	OpMerge
	OpReplace
	OpCreate
	OpDelete
	OpRemove
	OpEther
)

func (o Op) String() string {
	switch o {
	case OpNone:
		return "none"
	case OpMerge:
		return "merge"
	case OpReplace:
		return "replace"
	case OpCreate:
		return "create"
	case OpDelete:
		return "delete"
	case OpRemove:
		return "remove"
	case OpEther:
		return "ether"
	}
	return "unknown"
}

// ParseOp decodes the wire/metadata spelling of an operation.
func ParseOp(s string) (Op, error) {
	switch s {
	case "none", "":
		return OpNone, nil
	case "merge":
		return OpMerge, nil
	case "replace":
		return OpReplace, nil
	case "create":
		return OpCreate, nil
	case "delete":
		return OpDelete, nil
	case "remove":
		return OpRemove, nil
	case "ether":
		return OpEther, nil
	}
	return OpNone, errkind.New(errkind.ValidationFailed, "", "unknown operation %q", s)
}

// Insert is the closed set of user-ordered insert directives from §3.
type Insert int

const (
	InsDefault Insert = iota
	InsFirst
	InsLast
	InsBefore
	InsAfter
)

func (i Insert) String() string {
	switch i {
	case InsDefault:
		return "default"
	case InsFirst:
		return "first"
	case InsLast:
		return "last"
	case InsBefore:
		return "before"
	case InsAfter:
		return "after"
	}
	return "unknown"
}

func ParseInsert(s string) (Insert, error) {
	switch s {
	case "", "default":
		return InsDefault, nil
	case "first":
		return InsFirst, nil
	case "last":
		return InsLast, nil
	case "before":
		return InsBefore, nil
	case "after":
		return InsAfter, nil
	}
	return InsDefault, errkind.New(errkind.ValidationFailed, "", "unknown insert directive %q", s)
}

// DiffOp is the closed set of operations a diff tree node carries (§3):
// a strict subset of Op, since diffs never encode merge/remove/ether/none-as-edit.
type DiffOp int

const (
	DiffCreate DiffOp = iota
	DiffDelete
	DiffReplace
	DiffNone
)

func (o DiffOp) String() string {
	switch o {
	case DiffCreate:
		return "create"
	case DiffDelete:
		return "delete"
	case DiffReplace:
		return "replace"
	case DiffNone:
		return "none"
	}
	return "unknown"
}

func ParseDiffOp(s string) (DiffOp, error) {
	switch s {
	case "create":
		return DiffCreate, nil
	case "delete":
		return DiffDelete, nil
	case "replace":
		return DiffReplace, nil
	case "none", "":
		return DiffNone, nil
	}
	return DiffNone, errkind.New(errkind.Internal, "", "unknown diff operation %q", s)
}
