package shutdown

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

type Trigger func(error)

type Controller interface {
	For(component string) Trigger
	// Err returns the error of the component that triggered the shutdown, if it stopped uncleanly.
	Err() error
}

type controller struct {
	m         sync.Mutex
	cancelFn  context.CancelCauseFunc
	triggered bool
	err       error
	logger    logrus.FieldLogger
}

func (c *controller) For(component string) Trigger {
	if component == "" {
		component = "unknown"
	}
	return func(err error) {
		c.m.Lock()
		defer c.m.Unlock()
		if c.triggered {
			if err != nil {
				c.logger.WithError(err).Infof("shutdown already triggered, but %q reported an error", component)
			}
			return
		}
		cause := fmt.Errorf("%w triggered by %q", ErrShutdown, component)
		if err == nil {
			c.logger.Infof("shutdown triggered by %q (no error)", component)
		} else {
			c.logger.WithError(err).Infof("shutdown triggered by %q", component)
			cause = fmt.Errorf("%q stopped: %w", component, err)
		}
		c.triggered = true
		c.err = err
		c.cancelFn(cause)
	}
}

func (c *controller) Err() error {
	c.m.Lock()
	defer c.m.Unlock()
	return c.err
}
