// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package shm implements the shared-memory coordination layer (component
// D, §4.D): the main region (module directory, global counters), the
// extended region (variable-length subscription/string storage with a
// first-fit hole-list allocator), and per-subscription regions. Regions
// are backed by real mmap'd files under the repository path, the way a
// multi-process daemon would share them, rather than by in-process maps
// — any number of unrelated tsd processes on the same host open the same
// files and see the same bytes.
package shm

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// Region is one mmap'd, growable shared-memory segment backed by a file
// under the repository path. All cross-region references are byte
// offsets relative to Bytes()'s base, never pointers (§9 DESIGN NOTES).
type Region struct {
	mu   sync.Mutex
	path string
	file *os.File
	data []byte
}

// Open maps path, creating it (and truncating to minSize) if absent.
func Open(path string, minSize int) (*Region, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := int(fi.Size())
	if size < minSize {
		if err := f.Truncate(int64(minSize)); err != nil {
			f.Close()
			return nil, err
		}
		size = minSize
	}
	r := &Region{path: path, file: f}
	if err := r.mmap(size); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Region) mmap(size int) error {
	if size == 0 {
		r.data = nil
		return nil
	}
	data, err := unix.Mmap(int(r.file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("shm: mmap %s: %w", r.path, err)
	}
	r.data = data
	return nil
}

// Bytes returns the current mapped view. Callers must hold the region's
// own synchronization (a Region is not safe to read/write concurrently
// without an external lock; see package lock) but the slice itself is
// valid until the next Grow.
func (r *Region) Bytes() []byte { return r.data }

// Size is the current mapped length in bytes.
func (r *Region) Size() int { return len(r.data) }

// Grow remaps the region to at least newSize bytes, per §4.D "any
// allocation that would exceed current mapping triggers a grow-and-remap
// guarded by a write lock". Callers are expected to already hold the
// extended region's remap write lock (package lock) before calling this.
func (r *Region) Grow(newSize int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if newSize <= len(r.data) {
		return nil
	}
	if err := r.file.Truncate(int64(newSize)); err != nil {
		return err
	}
	if len(r.data) > 0 {
		if err := unix.Munmap(r.data); err != nil {
			return err
		}
	}
	return r.mmap(newSize)
}

// Revalidate re-maps if the on-disk file has grown past our current
// mapping. Readers call this on each acquire per §4.D's remap
// discipline ("clients compare local mapped size with shared size").
func (r *Region) Revalidate() error {
	fi, err := r.file.Stat()
	if err != nil {
		return err
	}
	if int(fi.Size()) > len(r.data) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if len(r.data) > 0 {
			if err := unix.Munmap(r.data); err != nil {
				return err
			}
		}
		return r.mmap(int(fi.Size()))
	}
	return nil
}

// Close unmaps and closes the backing file. The mapping stays valid for
// other processes that still hold it open.
func (r *Region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if len(r.data) > 0 {
		err = unix.Munmap(r.data)
		r.data = nil
	}
	if cerr := r.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Path returns the backing file path, used to derive the create-lock
// path and per-installation naming (§4.D "Naming").
func (r *Region) Path() string { return r.path }
