package shutdown

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// ErrShutdown is the cancellation cause when a component stopped cleanly.
var ErrShutdown = errors.New("shutdown")

// Context derives a context that is cancelled by the first trigger of the returned controller. context.Cause of the
// derived context names the component that triggered the shutdown.
func Context(parent context.Context, logger logrus.FieldLogger) (context.Context, Controller) {
	ctx, cancel := context.WithCancelCause(parent)
	return ctx, &controller{
		cancelFn: cancel,
		logger:   logger,
	}
}
