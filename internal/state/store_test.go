package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	t.Run("get or create is idempotent per uid", func(t *testing.T) {
		r := require.New(t)
		s := New()

		ns, created := s.Namespaces.GetOrCreate("kube-system", "uid-1")
		r.True(created)
		r.Equal("kube-system", ns.Name)

		ns, created = s.Namespaces.GetOrCreate("renamed", "uid-1")
		r.False(created)
		r.Equal("kube-system", ns.Name)
		r.Equal(1, s.Namespaces.Len())
	})

	t.Run("upsert mutates stored object", func(t *testing.T) {
		r := require.New(t)
		s := New()

		s.Namespaces.Upsert("a", "uid-a", func(ns *Namespace) {
			ns.Labels = map[string]string{"env": "dev"}
		})
		s.Namespaces.Upsert("a", "uid-a", func(ns *Namespace) {
			ns.Labels = map[string]string{"team": "core"}
		})

		ns, ok := s.Namespaces.Get("uid-a")
		r.True(ok)
		r.Equal(map[string]string{"team": "core"}, ns.Labels)
	})

	t.Run("delete reports absence", func(t *testing.T) {
		r := require.New(t)
		s := New()

		deleted, err := s.Delete(KindNamespaces, "missing")
		r.NoError(err)
		r.False(deleted)
		r.Equal(0, s.Namespaces.Len())

		s.Namespaces.GetOrCreate("a", "uid-a")
		deleted, err = s.Delete(KindNamespaces, "uid-a")
		r.NoError(err)
		r.True(deleted)
		r.Equal(0, s.Namespaces.Len())
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := New().Delete("widgets", "uid")
		require.ErrorIs(t, err, ErrUnknownKind)
	})

	t.Run("retain prunes everything else", func(t *testing.T) {
		r := require.New(t)
		s := New()
		for _, uid := range []string{"a", "b", "c"} {
			s.Pods.GetOrCreate("pod-"+uid, uid)
		}

		removed := s.Pods.Retain(map[string]struct{}{"b": {}})
		r.Equal([]string{"a", "c"}, removed)
		r.Equal(1, s.Pods.Len())
		_, ok := s.Pods.Get("b")
		r.True(ok)
	})

	t.Run("list is ordered by uid", func(t *testing.T) {
		r := require.New(t)
		s := New()
		s.Nodes.GetOrCreate("n2", "2")
		s.Nodes.GetOrCreate("n1", "1")

		nodes := s.Nodes.List()
		r.Len(nodes, 2)
		r.Equal("n1", nodes[0].Name)
		r.Equal("n2", nodes[1].Name)
	})
}

func TestStore_ClusterID(t *testing.T) {
	r := require.New(t)
	s := New()

	var observed []string
	s.OnClusterID(func(id string) {
		observed = append(observed, id)
	})

	_, ok := s.ClusterID()
	r.False(ok)

	changed, err := s.SetClusterID("abc")
	r.NoError(err)
	r.True(changed)

	changed, err = s.SetClusterID("abc")
	r.NoError(err)
	r.False(changed)

	changed, err = s.SetClusterID("def")
	r.ErrorIs(err, ErrClusterIDConflict)
	r.False(changed)

	id, ok := s.ClusterID()
	r.True(ok)
	r.Equal("abc", id)
	r.Equal([]string{"abc"}, observed)

	var late string
	s.OnClusterID(func(id string) {
		late = id
	})
	r.Equal("abc", late)

	_, err = s.SetClusterID("")
	r.ErrorIs(err, ErrEmptyClusterID)
}

func TestStore_ConcurrentWriters(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Namespaces.Upsert("ns", "uid", func(ns *Namespace) {
					ns.Labels = map[string]string{"writer": "x"}
				})
				_ = s.Namespaces.List()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, s.Namespaces.Len())
	snap := s.Snapshot()
	require.Len(t, snap.Namespaces, 1)
	require.Empty(t, snap.ClusterID)
}
