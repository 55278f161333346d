package watch

import (
	"context"
	"errors"
	"sync"
)

var ErrDependencyGone = errors.New("dependency stopped before completing its initial list")

// Gate is closed once its handler applied its first full list, or released when the handler stops without ever
// getting there. Dependent handlers wait on it before connecting.
type Gate struct {
	once      sync.Once
	done      chan struct{}
	mu        sync.Mutex
	completed bool
}

func NewGate() *Gate {
	return &Gate{done: make(chan struct{})}
}

func (g *Gate) Complete() {
	g.mu.Lock()
	g.completed = true
	g.mu.Unlock()
	g.once.Do(func() { close(g.done) })
}

// Release unblocks waiters without marking the gate completed. It is a no-op after Complete.
func (g *Gate) Release() {
	g.once.Do(func() { close(g.done) })
}

func (g *Gate) Completed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.completed
}

func (g *Gate) Done() <-chan struct{} {
	return g.done
}

// Wait blocks until the gate is completed or released, or ctx is done. A released gate yields ErrDependencyGone.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-g.done:
	}
	if !g.Completed() {
		return ErrDependencyGone
	}
	return nil
}
