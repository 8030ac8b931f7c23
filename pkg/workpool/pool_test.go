package workpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPositiveWidth(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)
}

func TestGroupBoundsConcurrency(t *testing.T) {
	p, err := New(3)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Width())

	var running, peak, done int32
	g := p.Group(context.Background())
	for i := 0; i < 20; i++ {
		g.Go(func(context.Context) error {
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			atomic.AddInt32(&done, 1)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(20), done)
	assert.LessOrEqual(t, peak, int32(3))
}

func TestGroupReportsFirstError(t *testing.T) {
	p, err := New(2)
	require.NoError(t, err)

	boom := errors.New("boom")
	g := p.Group(context.Background())
	g.Go(func(context.Context) error { return boom })
	g.Go(func(context.Context) error { return nil })

	assert.ErrorIs(t, g.Wait(), boom)
}

func TestPoolSharedAcrossGroups(t *testing.T) {
	p, err := New(1)
	require.NoError(t, err)

	var running, peak int32
	task := func(context.Context) error {
		n := atomic.AddInt32(&running, 1)
		if n > atomic.LoadInt32(&peak) {
			atomic.StoreInt32(&peak, n)
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	}

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			g := p.Group(context.Background())
			for j := 0; j < 5; j++ {
				g.Go(task)
			}
			errs <- g.Wait()
		}()
	}
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}
