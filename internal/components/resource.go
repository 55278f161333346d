package components

import (
	"github.com/sirupsen/logrus"

	"mirror-agent/internal/state"
	"mirror-agent/internal/watch"
)

// resource is the component shared by every kind without special semantics. A is the shape of the kind specific
// attributes the filters add to each item.
type resource[T any, A any] struct {
	log    logrus.FieldLogger
	table  *state.Table[T]
	meta   func(obj *T) *state.Meta
	update func(obj *T, attrs A)
}

func (c *resource[T, A]) Kind() string {
	if c.table == nil {
		return ""
	}
	return c.table.Kind()
}

func (c *resource[T, A]) Handle(reason watch.EventType, item *watch.ResourceDelta) (bool, error) {
	if item == nil {
		return false, ErrNilItem
	}
	if c.table == nil {
		return false, ErrNilStore
	}
	log := itemLogger(c.log, reason, item)

	switch reason {
	case watch.EventAdded, watch.EventModified:
		var attrs A
		if err := item.DecodeExtra(&attrs); err != nil {
			log.Warnf("skipping item: %v", err)
			return false, nil
		}
		c.table.Upsert(item.Name, item.UID, func(obj *T) {
			applyMeta(c.meta(obj), item)
			c.update(obj, attrs)
		})
		return true, nil

	case watch.EventDeleted:
		if !c.table.Delete(item.UID) {
			log.Warnf("%s not found", c.table.Kind())
			return false, nil
		}
		return true, nil

	case watch.EventError:
		return true, nil

	default:
		log.Warn("unsupported event reason")
		return false, nil
	}
}

func (c *resource[T, A]) Reconcile(live map[string]struct{}) []string {
	if c.table == nil {
		return nil
	}
	return c.table.Retain(live)
}

func (c *resource[T, A]) Len() int {
	if c.table == nil {
		return 0
	}
	return c.table.Len()
}
