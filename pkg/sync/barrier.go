package sync

import (
	"sync"
)

// Barrier releases its waiters once a fixed number of readiness signals
// have been received. It's released at most once, and is never reset.
type Barrier struct {
	quorum int

	lock  sync.Mutex
	count int
	done  chan struct{}
}

// NewBarrier creates a barrier that's released after `quorum` signals. A
// barrier with a non-positive quorum starts out released.
func NewBarrier(quorum int) *Barrier {
	b := &Barrier{quorum: quorum, done: make(chan struct{})}
	if quorum <= 0 {
		close(b.done)
	}
	return b
}

// Signal records a readiness signal. It returns true for the signal that
// released the barrier. Signals after the release are ignored.
func (b *Barrier) Signal() bool {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.count >= b.quorum {
		return false
	}

	b.count++
	if b.count == b.quorum {
		close(b.done)
		return true
	}
	return false
}

// Wait blocks until the barrier is released. There's no timeout.
func (b *Barrier) Wait() {
	<-b.done
}

// Done returns a channel that's closed when the barrier is released.
func (b *Barrier) Done() <-chan struct{} {
	return b.done
}

// Resolved returns whether the barrier has been released.
func (b *Barrier) Resolved() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Count returns the number of signals counted so far.
func (b *Barrier) Count() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.count
}
