package tui

import (
	"fmt"
	"io"
	"sync"
)

// lineQueue writes submitted lines to w one at a time, in submission
// order. push never blocks, so the screen stays live while the session
// is busy with a turn and not reading.
type lineQueue struct {
	w    io.Writer
	wake chan struct{}
	done chan struct{}

	mu      sync.Mutex
	pending []string
	closed  bool
}

func newLineQueue(w io.Writer) *lineQueue {
	q := &lineQueue{
		w:    w,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *lineQueue) push(line string) {
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.pending = append(q.pending, line)
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// close stops accepting lines and waits until the queued ones are written
// or the writer fails.
func (q *lineQueue) close() {
	if q == nil {
		return
	}
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.wake)
	}
	q.mu.Unlock()
	<-q.done
}

func (q *lineQueue) run() {
	defer close(q.done)
	for range q.wake {
		if !q.drain() {
			return
		}
	}
	q.drain()
}

func (q *lineQueue) drain() bool {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return true
		}
		line := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		if _, err := fmt.Fprintln(q.w, line); err != nil {
			return false
		}
	}
}
