package watch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGate(t *testing.T) {
	t.Run("complete unblocks waiters", func(t *testing.T) {
		r := require.New(t)
		g := NewGate()

		errc := make(chan error, 1)
		go func() { errc <- g.Wait(context.Background()) }()

		g.Complete()
		r.NoError(<-errc)
		r.True(g.Completed())

		g.Release()
		r.True(g.Completed(), "release after complete is a no-op")
		r.NoError(g.Wait(context.Background()))
	})

	t.Run("release without completion reports the dependency gone", func(t *testing.T) {
		r := require.New(t)
		g := NewGate()

		g.Release()
		r.False(g.Completed())
		r.ErrorIs(g.Wait(context.Background()), ErrDependencyGone)
		g.Release()
	})

	t.Run("wait honours context", func(t *testing.T) {
		r := require.New(t)
		g := NewGate()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		r.ErrorIs(g.Wait(ctx), context.DeadlineExceeded)
	})
}
