package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

var ErrDependencyCycle = errors.New("dependency cycle")

// Engine runs a set of handlers concurrently, one goroutine each.
type Engine struct {
	log      logrus.FieldLogger
	handlers []*Handler
	byName   map[string]*Handler
	failFast bool
}

type EngineOption func(*Engine)

// WithFailFast makes a fatal error in any handler stop the whole engine. By default only the failing handler stops.
func WithFailFast(failFast bool) EngineOption {
	return func(e *Engine) {
		e.failFast = failFast
	}
}

// WithObserver registers o with every handler of the engine.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		for _, h := range e.handlers {
			h.observer = o
		}
	}
}

func NewEngine(log logrus.FieldLogger, handlers []*Handler, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		log:    log,
		byName: map[string]*Handler{},
	}

	for _, h := range handlers {
		if _, ok := e.byName[h.Name()]; ok {
			return nil, fmt.Errorf("%w: duplicate handler %q", ErrInvalidConfig, h.Name())
		}
		e.byName[h.Name()] = h
	}
	for _, h := range handlers {
		if dep := h.Dependency(); dep != nil && e.byName[dep.Name()] != dep {
			return nil, fmt.Errorf("%w: %q depends on %q which is not part of the engine", ErrInvalidConfig, h.Name(), dep.Name())
		}
	}

	ordered, err := SortByDependency(handlers)
	if err != nil {
		return nil, err
	}
	e.handlers = ordered

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// SortByDependency orders handlers so that every handler comes after its dependency.
func SortByDependency(handlers []*Handler) ([]*Handler, error) {
	const (
		visiting = 1
		visited  = 2
	)
	marks := map[*Handler]int{}
	out := make([]*Handler, 0, len(handlers))

	var visit func(h *Handler, path []string) error
	visit = func(h *Handler, path []string) error {
		switch marks[h] {
		case visited:
			return nil
		case visiting:
			return fmt.Errorf("%w: %v", ErrDependencyCycle, append(path, h.Name()))
		}
		marks[h] = visiting
		if dep := h.Dependency(); dep != nil {
			if err := visit(dep, append(path, h.Name())); err != nil {
				return err
			}
		}
		marks[h] = visited
		if !slices.Contains(out, h) {
			out = append(out, h)
		}
		return nil
	}

	for _, h := range handlers {
		if err := visit(h, nil); err != nil {
			return nil, err
		}
	}
	return lo.Filter(out, func(h *Handler, _ int) bool {
		return slices.Contains(handlers, h)
	}), nil
}

func (e *Engine) Handlers() []*Handler {
	return e.handlers
}

func (e *Engine) Handler(name string) (*Handler, error) {
	h, ok := e.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHandler, name)
	}
	return h, nil
}

// Synced reports whether every handler applied its initial list.
func (e *Engine) Synced() bool {
	return lo.EveryBy(e.handlers, func(h *Handler) bool {
		return h.Synced()
	})
}

// Unsynced returns the names of handlers that did not apply their initial list yet.
func (e *Engine) Unsynced() []string {
	return lo.FilterMap(e.handlers, func(h *Handler, _ int) (string, bool) {
		return h.Name(), !h.Synced()
	})
}

// Run starts all handlers and blocks until ctx is cancelled, or until the first fatal handler error when fail fast
// is enabled.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	var failedMu sync.Mutex
	var failed []string

	for _, h := range e.handlers {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("handler %q panicked: %v", h.Name(), r)
					h.gate.Release()
				}
				if err != nil {
					e.log.WithField("handler", h.Name()).Errorf("handler stopped: %v", err)
					failedMu.Lock()
					failed = append(failed, h.Name())
					failedMu.Unlock()
					if !e.failFast {
						err = nil
					}
				}
			}()
			return h.Run(ctx)
		})
	}

	err := g.Wait()
	if len(failed) > 0 {
		e.log.Warnf("handlers stopped with errors: %v", failed)
	}
	return err
}

// ListOnce applies one full list per handler in dependency order, without watching.
func (e *Engine) ListOnce(ctx context.Context) error {
	for _, h := range e.handlers {
		if err := h.ListOnce(ctx); err != nil {
			return fmt.Errorf("listing %s: %w", h.Name(), err)
		}
	}
	return nil
}
