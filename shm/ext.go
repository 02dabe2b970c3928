// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package shm

import (
	"encoding/binary"
	"path/filepath"

	"github.com/danos/tsd/errkind"
)

const (
	extMagic       = 0x74736465 // "tsde"
	extHeaderSize  = 4 + 4 + 8 + 8 // magic,version,size,firstHole
	extInitialSize = 1 << 20       // 1 MiB, grown on demand
	extGrowFactor  = 2
	holeHeaderSize = 16 // size(8) + next(8), stored at the hole's own offset
)

// ExtRegionPath returns the canonical path of the extended region file.
func ExtRegionPath(repoRoot string) string {
	return filepath.Join(repoRoot, "shm", "tsd.ext")
}

// ExtRegion is the variable-length region holding subscription records,
// their xpath/originator string storage, and the free-space hole list
// (§4.D.2). Allocation is first-fit from the hole list; frees coalesce
// with adjacent holes.
type ExtRegion struct {
	r *Region
}

// OpenExt opens or creates the extended region under repoRoot.
func OpenExt(repoRoot string) (*ExtRegion, error) {
	r, err := Open(ExtRegionPath(repoRoot), extInitialSize)
	if err != nil {
		return nil, err
	}
	e := &ExtRegion{r: r}
	if binary.LittleEndian.Uint32(r.Bytes()[0:4]) != extMagic {
		e.init()
	}
	return e, nil
}

func (e *ExtRegion) init() {
	b := e.r.Bytes()
	binary.LittleEndian.PutUint32(b[0:4], extMagic)
	binary.LittleEndian.PutUint32(b[4:8], 1)
	e.setSize(uint64(len(b)))
	e.setFirstHole(int64(extHeaderSize))
	e.writeHole(int64(extHeaderSize), int64(len(b)-extHeaderSize), -1)
}

func (e *ExtRegion) setSize(v uint64) {
	binary.LittleEndian.PutUint64(e.r.Bytes()[8:16], v)
}

func (e *ExtRegion) sharedSize() uint64 {
	return binary.LittleEndian.Uint64(e.r.Bytes()[8:16])
}

func (e *ExtRegion) setFirstHole(off int64) {
	putInt64(e.r.Bytes()[16:24], off)
}

func (e *ExtRegion) firstHole() int64 {
	return getInt64(e.r.Bytes()[16:24])
}

func (e *ExtRegion) writeHole(off, size, next int64) {
	b := e.r.Bytes()
	putInt64(b[off:off+8], size)
	putInt64(b[off+8:off+16], next)
}

func (e *ExtRegion) readHole(off int64) (size, next int64) {
	b := e.r.Bytes()
	return getInt64(b[off : off+8]), getInt64(b[off+8 : off+16])
}

// Revalidate re-maps to the shared size word if a writer has grown the
// region since our last acquire (§4.D remap discipline).
func (e *ExtRegion) Revalidate() error {
	want := int(e.sharedSize())
	if want > e.r.Size() {
		return e.r.Grow(want)
	}
	return nil
}

// Bytes exposes the raw region for record encode/decode by package
// subscribe. Offsets into it are stable across Grow (Grow only extends).
func (e *ExtRegion) Bytes() []byte { return e.r.Bytes() }

// Alloc reserves a run of n bytes, first-fit from the hole list, growing
// and remapping the region if no hole is large enough. Callers must hold
// the ext-remap write lock (package lock).
func (e *ExtRegion) Alloc(n int) (int64, error) {
	if n <= 0 {
		return 0, errkind.New(errkind.InvalidArg, "", "alloc size must be positive")
	}
	need := int64(n)
	var prevOff int64 = -1
	off := e.firstHole()
	for off >= 0 {
		size, next := e.readHole(off)
		if size >= need {
			if size-need >= holeHeaderSize {
				// split: hand back the head, the tail stays a hole.
				remain := off + need
				e.writeHole(remain, size-need, next)
				if prevOff < 0 {
					e.setFirstHole(remain)
				} else {
					_, pnext := e.readHole(prevOff)
					_ = pnext
					e.relink(prevOff, remain)
				}
			} else {
				// consume whole hole.
				if prevOff < 0 {
					e.setFirstHole(next)
				} else {
					e.relink(prevOff, next)
				}
			}
			return off, nil
		}
		prevOff = off
		off = next
	}
	// No hole fits: grow and retry once.
	grown := e.r.Size() * extGrowFactor
	for grown < e.r.Size()+n {
		grown *= extGrowFactor
	}
	oldSize := e.r.Size()
	if err := e.r.Grow(grown); err != nil {
		return 0, err
	}
	e.setSize(uint64(grown))
	e.appendHole(int64(oldSize), int64(grown-oldSize))
	return e.Alloc(n)
}

func (e *ExtRegion) relink(prevOff, next int64) {
	size, _ := e.readHole(prevOff)
	e.writeHole(prevOff, size, next)
}

func (e *ExtRegion) appendHole(off, size int64) {
	// Tail-insert a new hole (created by Grow) at the end of the list.
	if e.firstHole() < 0 {
		e.setFirstHole(off)
		e.writeHole(off, size, -1)
		return
	}
	cur := e.firstHole()
	for {
		holeSize, next := e.readHole(cur)
		if next < 0 {
			// Coalesce if the new hole is adjacent to cur's end.
			if cur+holeSize == off {
				e.writeHole(cur, holeSize+size, -1)
			} else {
				e.writeHole(cur, holeSize, off)
				e.writeHole(off, size, -1)
			}
			return
		}
		cur = next
	}
}

// Free returns the run starting at off (previously returned by Alloc,
// with length n) to the hole list, coalescing with the immediately
// following hole if adjacent. Callers must hold the ext-remap write
// lock.
func (e *ExtRegion) Free(off int64, n int) {
	size := int64(n)
	var prevOff int64 = -1
	cur := e.firstHole()
	for cur >= 0 && cur < off {
		prevOff = cur
		_, next := e.readHole(cur)
		cur = next
	}
	// cur is now the first hole at or after off (or -1).
	next := cur
	if next >= 0 && off+size == next {
		holeSize, holeNext := e.readHole(next)
		size += holeSize
		next = holeNext
	}
	if prevOff >= 0 {
		prevSize, _ := e.readHole(prevOff)
		if prevOff+prevSize == off {
			e.writeHole(prevOff, prevSize+size, next)
			return
		}
		e.writeHole(prevOff, prevSize, off)
	} else {
		e.setFirstHole(off)
	}
	e.writeHole(off, size, next)
}

// Close releases the underlying mapping.
func (e *ExtRegion) Close() error { return e.r.Close() }
