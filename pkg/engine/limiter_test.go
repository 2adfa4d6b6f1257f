package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter(t *testing.T) {
	l := NewLimiter(2)
	assert.Equal(t, int64(2), l.Capacity())

	// 1. Take every permit
	p1, err := l.Acquire(context.Background())
	require.NoError(t, err)
	p2, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), l.InUse())

	// 2. A third caller waits until its context gives up
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(2), l.InUse())

	// 3. Releasing twice frees only one permit
	p1.Release()
	p1.Release()
	assert.Equal(t, int64(1), l.InUse())

	// 4. The freed permit is handed to a waiter
	got := make(chan struct{})
	go func() {
		p, err := l.Acquire(context.Background())
		if err == nil {
			defer p.Release()
		}
		close(got)
	}()
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("waiter did not get the released permit")
	}

	p2.Release()
}

func TestLimiter_DefaultCapacity(t *testing.T) {
	assert.Equal(t, int64(DefaultConcurrency), NewLimiter(0).Capacity())
	assert.Equal(t, int64(DefaultConcurrency), NewLimiter(-3).Capacity())
}
