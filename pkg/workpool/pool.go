// Package workpool bounds how many tasks run at once across every caller
// sharing a Pool.
package workpool

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

type Pool struct {
	sem   *semaphore.Weighted
	width int
}

func New(width int) (*Pool, error) {
	if width < 1 {
		return nil, fmt.Errorf("pool width must be positive, got %d", width)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(width)), width: width}, nil
}

func (p *Pool) Width() int {
	return p.width
}

// Group returns a task group whose tasks each hold a pool slot while running.
func (p *Pool) Group(ctx context.Context) *Group {
	g, gctx := errgroup.WithContext(ctx)
	return &Group{pool: p, g: g, ctx: gctx}
}

// Group runs tasks on a Pool and waits for all of them.
type Group struct {
	pool *Pool
	g    *errgroup.Group
	ctx  context.Context
}

// Go schedules task. It blocks until a slot is free. If ctx is cancelled
// before a slot frees up, the task is not run and Wait reports ctx.Err().
func (g *Group) Go(task func(ctx context.Context) error) {
	if err := g.pool.sem.Acquire(g.ctx, 1); err != nil {
		g.g.Go(func() error { return err })
		return
	}

	g.g.Go(func() error {
		defer g.pool.sem.Release(1)
		return task(g.ctx)
	})
}

// Wait blocks until every scheduled task returned and reports the first error.
func (g *Group) Wait() error {
	return g.g.Wait()
}
