package components

import (
	"errors"

	"github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"

	"mirror-agent/internal/state"
	"mirror-agent/internal/watch"
)

var _ watch.Component = (*Namespaces)(nil)

// Namespaces mirrors namespaces and derives the cluster id from the uid of the "default" namespace, which exists
// exactly once per cluster.
type Namespaces struct {
	log   logrus.FieldLogger
	store *state.Store
	opts  Options
}

func NewNamespaces(log logrus.FieldLogger, store *state.Store, opts Options) (*Namespaces, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, ErrNilStore
	}
	return &Namespaces{
		log:   log,
		store: store,
		opts:  opts,
	}, nil
}

func (c *Namespaces) Kind() string {
	return state.KindNamespaces
}

func (c *Namespaces) Handle(reason watch.EventType, item *watch.ResourceDelta) (bool, error) {
	if item == nil {
		return false, ErrNilItem
	}
	if c.store == nil {
		return false, ErrNilStore
	}
	log := itemLogger(c.log, reason, item)

	switch reason {
	case watch.EventAdded, watch.EventModified:
		if c.opts.SetClusterID && item.Name == corev1.NamespaceDefault {
			c.setClusterID(log, item.UID)
		}
		if c.opts.ClusterIDOnly {
			return true, nil
		}
		c.store.Namespaces.Upsert(item.Name, item.UID, func(ns *state.Namespace) {
			applyMeta(&ns.Meta, item)
		})
		return true, nil

	case watch.EventDeleted:
		if c.opts.ClusterIDOnly {
			return true, nil
		}
		if !c.store.Namespaces.Delete(item.UID) {
			log.Warn("namespace not found")
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

func (c *Namespaces) setClusterID(log logrus.FieldLogger, uid string) {
	created, err := c.store.SetClusterID(uid)
	switch {
	case errors.Is(err, state.ErrClusterIDConflict):
		log.Warnf("keeping existing cluster id: %v", err)
	case err != nil:
		log.Errorf("setting cluster id: %v", err)
	case created:
		log.Infof("cluster id set to %q", uid)
	}
}

// Reconcile is a no-op in cluster id only mode, the shadow handler must not prune what the primary one owns.
func (c *Namespaces) Reconcile(live map[string]struct{}) []string {
	if c.opts.ClusterIDOnly || c.store == nil {
		return nil
	}
	return c.store.Namespaces.Retain(live)
}

func (c *Namespaces) Len() int {
	if c.store == nil {
		return 0
	}
	return c.store.Namespaces.Len()
}
