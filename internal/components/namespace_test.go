package components

import (
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"mirror-agent/internal/state"
	"mirror-agent/internal/watch"
)

func newNamespaces(t *testing.T, opts Options) (*Namespaces, *state.Store, *logtest.Hook) {
	log, hook := logtest.NewNullLogger()
	store := state.New()
	c, err := NewNamespaces(log, store, opts)
	require.NoError(t, err)
	return c, store, hook
}

func delta(name, uid string, labels map[string]string) *watch.ResourceDelta {
	return &watch.ResourceDelta{Name: name, UID: uid, Timestamp: "2024-01-01T00:00:00Z", Labels: labels}
}

func TestNamespaces_Handle(t *testing.T) {
	t.Run("default namespace sets the cluster id and is stored", func(t *testing.T) {
		r := require.New(t)
		c, store, _ := newNamespaces(t, Options{SetClusterID: true})

		ok, err := c.Handle(watch.EventAdded, delta("default", "abc", map[string]string{"env": "prod"}))
		r.NoError(err)
		r.True(ok)

		ns, found := store.Namespaces.Get("abc")
		r.True(found)
		r.Equal("default", ns.Name)
		r.Equal(map[string]string{"env": "prod"}, ns.Labels)

		id, set := store.ClusterID()
		r.True(set)
		r.Equal("abc", id)
	})

	t.Run("cluster id is left alone without the option", func(t *testing.T) {
		r := require.New(t)
		c, store, _ := newNamespaces(t, Options{})

		ok, err := c.Handle(watch.EventAdded, delta("default", "abc", nil))
		r.NoError(err)
		r.True(ok)

		_, set := store.ClusterID()
		r.False(set)
		r.Equal(1, store.Namespaces.Len())
	})

	t.Run("second default namespace with another uid keeps the first cluster id", func(t *testing.T) {
		r := require.New(t)
		c, store, hook := newNamespaces(t, Options{SetClusterID: true})

		_, err := c.Handle(watch.EventAdded, delta("default", "abc", nil))
		r.NoError(err)
		_, err = c.Handle(watch.EventModified, delta("default", "abc", nil))
		r.NoError(err)
		r.Empty(hook.AllEntries()[1:], "same uid must be a silent no-op")

		_, err = c.Handle(watch.EventAdded, delta("default", "xyz", nil))
		r.NoError(err)

		id, _ := store.ClusterID()
		r.Equal("abc", id)
		r.Equal(logrus.WarnLevel, hook.LastEntry().Level)
		r.Equal("xyz", hook.LastEntry().Data["uid"])
	})

	t.Run("cluster id only mode does not touch the namespaces", func(t *testing.T) {
		r := require.New(t)
		c, store, _ := newNamespaces(t, Options{SetClusterID: true, ClusterIDOnly: true})
		store.Namespaces.Upsert("kube-system", "sys", nil)

		ok, err := c.Handle(watch.EventAdded, delta("default", "abc", map[string]string{"env": "prod"}))
		r.NoError(err)
		r.True(ok)
		ok, err = c.Handle(watch.EventDeleted, delta("kube-system", "sys", nil))
		r.NoError(err)
		r.True(ok)

		id, _ := store.ClusterID()
		r.Equal("abc", id)
		r.Equal(1, store.Namespaces.Len())
		r.Nil(c.Reconcile(map[string]struct{}{}))
		r.Equal(1, store.Namespaces.Len())
	})

	t.Run("deleting an unknown namespace fails softly", func(t *testing.T) {
		r := require.New(t)
		c, store, hook := newNamespaces(t, Options{SetClusterID: true})

		ok, err := c.Handle(watch.EventDeleted, delta("default", "abc", nil))
		r.NoError(err)
		r.False(ok)
		r.Zero(store.Namespaces.Len())
		r.Equal("namespace not found", hook.LastEntry().Message)
	})

	t.Run("error events are ignored", func(t *testing.T) {
		r := require.New(t)
		c, store, hook := newNamespaces(t, Options{})

		ok, err := c.Handle(watch.EventError, delta("x", "1", nil))
		r.NoError(err)
		r.True(ok)
		r.Zero(store.Namespaces.Len())
		r.Empty(hook.AllEntries())
	})

	t.Run("unsupported reasons fail softly", func(t *testing.T) {
		r := require.New(t)
		c, store, hook := newNamespaces(t, Options{})

		ok, err := c.Handle(watch.EventUnknown, delta("x", "1", nil))
		r.NoError(err)
		r.False(ok)
		r.Zero(store.Namespaces.Len())
		r.Equal("unsupported event reason", hook.LastEntry().Message)
		r.Equal(watch.EventUnknown, hook.LastEntry().Data["reason"])
	})

	t.Run("nil item is misuse", func(t *testing.T) {
		r := require.New(t)
		c, _, _ := newNamespaces(t, Options{})

		_, err := c.Handle(watch.EventAdded, nil)
		r.ErrorIs(err, ErrNilItem)
		r.ErrorIs(err, watch.ErrMisuse)
	})

	t.Run("nil store is misuse", func(t *testing.T) {
		r := require.New(t)
		log, _ := logtest.NewNullLogger()
		c := &Namespaces{log: log}

		_, err := c.Handle(watch.EventAdded, delta("x", "1", nil))
		r.ErrorIs(err, ErrNilStore)
		r.ErrorIs(err, watch.ErrMisuse)
	})
}

func TestNamespaces_Lifecycle(t *testing.T) {
	tt := map[string]struct {
		events     []watch.EventType
		labels     []map[string]string
		wantFound  bool
		wantLabels map[string]string
	}{
		"added then modified replaces labels": {
			events:     []watch.EventType{watch.EventAdded, watch.EventModified},
			labels:     []map[string]string{{"a": "1", "b": "2"}, {"c": "3"}},
			wantFound:  true,
			wantLabels: map[string]string{"c": "3"},
		},
		"modified twice is idempotent": {
			events:     []watch.EventType{watch.EventAdded, watch.EventModified, watch.EventModified},
			labels:     []map[string]string{{"a": "1"}, {"b": "2"}, {"b": "2"}},
			wantFound:  true,
			wantLabels: map[string]string{"b": "2"},
		},
		"empty labels keep the previous ones": {
			events:     []watch.EventType{watch.EventAdded, watch.EventModified},
			labels:     []map[string]string{{"a": "1"}, {}},
			wantFound:  true,
			wantLabels: map[string]string{"a": "1"},
		},
		"modified without added creates the entry": {
			events:     []watch.EventType{watch.EventModified},
			labels:     []map[string]string{{"a": "1"}},
			wantFound:  true,
			wantLabels: map[string]string{"a": "1"},
		},
		"added modified deleted leaves nothing": {
			events:    []watch.EventType{watch.EventAdded, watch.EventModified, watch.EventDeleted},
			labels:    []map[string]string{{"a": "1"}, {"b": "2"}, nil},
			wantFound: false,
		},
	}

	for name, test := range tt {
		t.Run(name, func(t *testing.T) {
			r := require.New(t)
			c, store, _ := newNamespaces(t, Options{})

			for i, ev := range test.events {
				ok, err := c.Handle(ev, delta("team-a", "u1", test.labels[i]))
				r.NoError(err)
				r.True(ok)
			}

			ns, found := store.Namespaces.Get("u1")
			r.Equal(test.wantFound, found)
			if test.wantFound {
				r.Equal(test.wantLabels, ns.Labels)
				r.Equal(1, store.Namespaces.Len())
			} else {
				r.Zero(store.Namespaces.Len())
			}
		})
	}
}

func TestNewNamespaces(t *testing.T) {
	tt := map[string]struct {
		opts    Options
		store   *state.Store
		wantErr error
	}{
		"cluster id only requires setting the cluster id": {
			opts:    Options{ClusterIDOnly: true},
			store:   state.New(),
			wantErr: ErrInvalidOptions,
		},
		"nil store": {
			store:   nil,
			wantErr: ErrNilStore,
		},
		"valid": {
			opts:  Options{SetClusterID: true, ClusterIDOnly: true},
			store: state.New(),
		},
	}

	for name, test := range tt {
		t.Run(name, func(t *testing.T) {
			r := require.New(t)
			log, _ := logtest.NewNullLogger()

			_, err := NewNamespaces(log, test.store, test.opts)
			if test.wantErr != nil {
				r.ErrorIs(err, test.wantErr)
				return
			}
			r.NoError(err)
		})
	}
}
