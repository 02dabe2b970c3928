// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package subscribe implements the subscription registry (component F,
// §4.F): change/operational-get/RPC/notification subscription records
// spliced into the module's linked list in the extended region
// (package shm), plus the event-pipe wake-up each subscription uses to
// signal its owning listener thread.
package subscribe

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// EventPipe is the per-subscription wake-up mechanism of §4.F/§9: a
// named FIFO under the repository path that a publisher opens
// write-only and writes one byte to on event delivery, and the owning
// listener thread opens read-only and blocks reading from. A named FIFO
// (rather than an in-process channel) is used deliberately so that the
// wake-up crosses process boundaries the way real shared-memory
// subscribers require (§1: "Multiple processes on one host share one or
// more datastores").
type EventPipe struct {
	ID   uint64
	path string
	mu   sync.Mutex
	rd   *os.File
	wr   *os.File
}

func pipePath(repoRoot string, id uint64) string {
	return filepath.Join(repoRoot, "shm", "pipes", fmt.Sprintf("%d.pipe", id))
}

// CreateEventPipe makes the backing FIFO for a freshly allocated
// subscription id. The owning connection calls Reader to obtain its
// blocking read end; publishers call Wake to write to it.
func CreateEventPipe(repoRoot string, id uint64) (*EventPipe, error) {
	p := pipePath(repoRoot, id)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}
	if err := syscall.Mkfifo(p, 0o600); err != nil && !os.IsExist(err) {
		return nil, err
	}
	return &EventPipe{ID: id, path: p}, nil
}

// Reader opens (if not already open) the read end in non-blocking mode
// and returns it; the listener thread can then use select/poll/read.
func (e *EventPipe) Reader() (*os.File, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rd != nil {
		return e.rd, nil
	}
	f, err := os.OpenFile(e.path, os.O_RDONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	e.rd = f
	return f, nil
}

// Wake writes a single byte to the pipe, rousing any blocked reader.
// Per §4.F this never blocks the publisher on a slow/absent subscriber:
// the FIFO is opened non-blocking and a full or absent reader is
// silently dropped (the event's content lives in the per-subscription
// SubRegion, not the pipe payload — the pipe is a wake-up only).
func (e *EventPipe) Wake() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.wr == nil {
		f, err := os.OpenFile(e.path, os.O_WRONLY|syscall.O_NONBLOCK, 0)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return nil // no reader yet (ENXIO): nothing to wake
		}
		e.wr = f
	}
	_, err := e.wr.Write([]byte{1})
	return err
}

// Close releases both ends and removes the backing FIFO. Called on
// unsubscribe/connection close.
func (e *EventPipe) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rd != nil {
		e.rd.Close()
	}
	if e.wr != nil {
		e.wr.Close()
	}
	return os.Remove(e.path)
}
