package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Limiter is a counting permit pool bounding how many transfers do file I/O
// at the same time.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int64
	inUse    atomic.Int64
}

// NewLimiter creates a Limiter with capacity permits. A non-positive
// capacity falls back to DefaultConcurrency.
func NewLimiter(capacity int64) *Limiter {
	if capacity <= 0 {
		capacity = DefaultConcurrency
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(capacity),
		capacity: capacity,
	}
}

// Acquire blocks until a permit is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) (*Permit, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	l.inUse.Add(1)
	return &Permit{l: l}, nil
}

// Capacity returns the fixed number of permits.
func (l *Limiter) Capacity() int64 {
	return l.capacity
}

// InUse returns the number of permits currently held.
func (l *Limiter) InUse() int64 {
	return l.inUse.Load()
}

// Permit is one acquired slot. Release it with defer.
type Permit struct {
	l    *Limiter
	once sync.Once
}

// Release returns the permit to the pool. Extra calls are no-ops.
func (p *Permit) Release() {
	p.once.Do(func() {
		p.l.inUse.Add(-1)
		p.l.sem.Release(1)
	})
}
