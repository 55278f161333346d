package components

import (
	"context"
	"net/url"
	"testing"

	"github.com/golang/mock/gomock"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"mirror-agent/internal/state"
	"mirror-agent/internal/watch"
	mock_watch "mirror-agent/internal/watch/mock"
)

func handlerNames(handlers []*watch.Handler) []string {
	names := make([]string, 0, len(handlers))
	for _, h := range handlers {
		names = append(names, h.Name())
	}
	return names
}

func TestBuild(t *testing.T) {
	t.Run("orders handlers by dependency", func(t *testing.T) {
		r := require.New(t)
		log, _ := logtest.NewNullLogger()

		handlers, err := Build(log, state.New(), watch.NewStaticSource(), BuildConfig{
			Kinds:    []string{state.KindPods, state.KindServices, state.KindNamespaces},
			Settings: watch.DefaultSettings(),
		})
		r.NoError(err)
		r.Equal([]string{state.KindNamespaces, state.KindPods, state.KindServices}, handlerNames(handlers))
		r.Equal(handlers[0], handlers[1].Dependency())
		r.Nil(handlers[2].Dependency())
	})

	t.Run("pods start without namespaces when those are not mirrored", func(t *testing.T) {
		r := require.New(t)
		log, hook := logtest.NewNullLogger()

		handlers, err := Build(log, state.New(), watch.NewStaticSource(), BuildConfig{
			Kinds:    []string{state.KindPods},
			Settings: watch.DefaultSettings(),
		})
		r.NoError(err)
		r.Len(handlers, 1)
		r.Nil(handlers[0].Dependency())
		r.Contains(hook.LastEntry().Message, "starting without waiting")
	})

	t.Run("adds a cluster id handler when namespaces are not mirrored", func(t *testing.T) {
		r := require.New(t)
		log, _ := logtest.NewNullLogger()

		handlers, err := Build(log, state.New(), watch.NewStaticSource(), BuildConfig{
			Kinds:    []string{state.KindNodes},
			Options:  Options{SetClusterID: true},
			Settings: watch.DefaultSettings(),
		})
		r.NoError(err)
		r.Equal([]string{state.KindNodes, ClusterIDHandler}, handlerNames(handlers))
		r.Equal(state.KindNamespaces, handlers[1].Kind())
	})

	t.Run("rejects cluster id only without setting it", func(t *testing.T) {
		log, _ := logtest.NewNullLogger()

		_, err := Build(log, state.New(), watch.NewStaticSource(), BuildConfig{
			Kinds:    []string{state.KindNamespaces},
			Options:  Options{ClusterIDOnly: true},
			Settings: watch.DefaultSettings(),
		})
		require.ErrorIs(t, err, ErrInvalidOptions)
	})

	t.Run("rejects unknown kinds", func(t *testing.T) {
		log, _ := logtest.NewNullLogger()

		_, err := Build(log, state.New(), watch.NewStaticSource(), BuildConfig{
			Kinds:    []string{"secrets"},
			Settings: watch.DefaultSettings(),
		})
		require.ErrorIs(t, err, state.ErrUnknownKind)
	})

	t.Run("rejects dependency cycles", func(t *testing.T) {
		log, _ := logtest.NewNullLogger()
		specs := map[string]kindSpec{
			state.KindNamespaces: {path: "/a", dependsOn: state.KindPods, newFn: kindSpecs[state.KindNamespaces].newFn},
			state.KindPods:       {path: "/b", dependsOn: state.KindNamespaces, newFn: kindSpecs[state.KindPods].newFn},
		}

		_, err := build(log, state.New(), watch.NewStaticSource(), BuildConfig{
			Kinds:    []string{state.KindNamespaces, state.KindPods},
			Settings: watch.DefaultSettings(),
		}, specs)
		require.ErrorIs(t, err, watch.ErrDependencyCycle)
	})
}

func TestBuild_PodsOfOneNode(t *testing.T) {
	r := require.New(t)
	ctrl := gomock.NewController(t)
	log, _ := logtest.NewNullLogger()
	source := mock_watch.NewMockSource(ctrl)
	store := state.New()

	list := corev1.PodList{
		ListMeta: metav1.ListMeta{ResourceVersion: "7"},
		Items: []corev1.Pod{
			{ObjectMeta: metav1.ObjectMeta{Name: "web-0", Namespace: "team-a", UID: "p1"}, Spec: corev1.PodSpec{NodeName: "node-1"}},
		},
	}
	source.EXPECT().
		List(gomock.Any(), "/api/v1/pods", url.Values{"fieldSelector": []string{"spec.nodeName=node-1"}}).
		Return(mustJSON(t, list), nil)

	handlers, err := Build(log, store, source, BuildConfig{
		Kinds:    []string{state.KindPods},
		NodeName: "node-1",
		Settings: watch.DefaultSettings(),
	})
	r.NoError(err)
	r.Len(handlers, 1)

	r.NoError(handlers[0].ListOnce(context.Background()))
	r.True(handlers[0].Synced())

	pod, ok := store.Pods.Get("p1")
	r.True(ok)
	r.Equal("node-1", pod.NodeName)
	r.Equal("team-a", pod.Namespace)
}

func TestKinds(t *testing.T) {
	require.Equal(t, []string{
		state.KindDaemonSets,
		state.KindDeployments,
		state.KindNamespaces,
		state.KindNodes,
		state.KindPods,
		state.KindReplicaSets,
		state.KindReplicationControllers,
		state.KindServices,
	}, Kinds())
}
