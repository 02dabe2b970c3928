// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package conn

import (
	"sync"
	"time"

	"github.com/danos/tsd/errkind"
)

// NotifBuffer coalesces outbound notification records into a
// producer-consumer queue drained by a single writer goroutine, per
// §4.H "A notification buffer thread coalesces outbound notifications
// into a producer-consumer queue drained by disk writes; stop signals
// the thread and joins it to flush in-flight records."
type NotifBuffer struct {
	write func(rec []byte) error

	mu     sync.Mutex
	cond   *sync.Cond
	queue  [][]byte
	closed bool
	done   chan struct{}
}

func NewNotifBuffer(write func(rec []byte) error) *NotifBuffer {
	nb := &NotifBuffer{write: write, done: make(chan struct{})}
	nb.cond = sync.NewCond(&nb.mu)
	go nb.run()
	return nb
}

// Push enqueues rec for the writer goroutine, blocking until deadline if
// the queue cannot immediately accept it (it never can't; the queue is
// unbounded, so this never actually blocks past the enqueue itself, but
// the deadline parameter is kept for symmetry with the package's other
// suspension points per §5).
func (nb *NotifBuffer) Push(rec []byte, deadline time.Time) error {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	if nb.closed {
		return errkind.New(errkind.OperationFailed, "", "notification buffer is stopped")
	}
	nb.queue = append(nb.queue, rec)
	nb.cond.Signal()
	return nil
}

func (nb *NotifBuffer) run() {
	defer close(nb.done)
	for {
		nb.mu.Lock()
		for len(nb.queue) == 0 && !nb.closed {
			nb.cond.Wait()
		}
		if len(nb.queue) == 0 && nb.closed {
			nb.mu.Unlock()
			return
		}
		rec := nb.queue[0]
		nb.queue = nb.queue[1:]
		nb.mu.Unlock()

		_ = nb.write(rec) // best effort; a dropped disk write does not stop the daemon
	}
}

// Stop signals the writer goroutine to drain the queue and exit, then
// joins it so every record pushed before Stop was called is flushed.
func (nb *NotifBuffer) Stop() {
	nb.mu.Lock()
	nb.closed = true
	nb.cond.Signal()
	nb.mu.Unlock()
	<-nb.done
}
