package components

import (
	"fmt"
	"net/url"
	"sort"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/fields"

	"mirror-agent/internal/state"
	"mirror-agent/internal/watch"
)

// ClusterIDHandler is the name of the namespace handler that only derives the cluster id. It runs when the cluster
// id is requested but namespaces are not mirrored.
const ClusterIDHandler = "namespaces-clusterid"

type kindSpec struct {
	path       string
	objectKind string
	projection string
	dependsOn  string
	newFn      func(log logrus.FieldLogger, store *state.Store, opts Options) (watch.Component, error)
}

func plain(fn func(logrus.FieldLogger, *state.Store) (watch.Component, error)) func(logrus.FieldLogger, *state.Store, Options) (watch.Component, error) {
	return func(log logrus.FieldLogger, store *state.Store, _ Options) (watch.Component, error) {
		return fn(log, store)
	}
}

var kindSpecs = map[string]kindSpec{
	state.KindNamespaces: {
		path:       "/api/v1/namespaces",
		objectKind: "Namespace",
		newFn: func(log logrus.FieldLogger, store *state.Store, opts Options) (watch.Component, error) {
			return NewNamespaces(log, store, opts)
		},
	},
	state.KindNodes: {
		path:       "/api/v1/nodes",
		objectKind: "Node",
		projection: nodeProjection,
		newFn:      plain(NewNodes),
	},
	state.KindPods: {
		path:       "/api/v1/pods",
		objectKind: "Pod",
		projection: podProjection,
		dependsOn:  state.KindNamespaces,
		newFn:      plain(NewPods),
	},
	state.KindServices: {
		path:       "/api/v1/services",
		objectKind: "Service",
		projection: serviceProjection,
		newFn:      plain(NewServices),
	},
	state.KindReplicationControllers: {
		path:       "/api/v1/replicationcontrollers",
		objectKind: "ReplicationController",
		projection: replicationControllerProjection,
		newFn:      plain(NewReplicationControllers),
	},
	state.KindReplicaSets: {
		path:       "/apis/apps/v1/replicasets",
		objectKind: "ReplicaSet",
		projection: labelSelectorProjection,
		newFn:      plain(NewReplicaSets),
	},
	state.KindDeployments: {
		path:       "/apis/apps/v1/deployments",
		objectKind: "Deployment",
		projection: labelSelectorProjection,
		newFn:      plain(NewDeployments),
	},
	state.KindDaemonSets: {
		path:       "/apis/apps/v1/daemonsets",
		objectKind: "DaemonSet",
		projection: daemonSetProjection,
		newFn:      plain(NewDaemonSets),
	},
}

// Kinds returns every kind that can be mirrored, sorted.
func Kinds() []string {
	kinds := lo.Keys(kindSpecs)
	sort.Strings(kinds)
	return kinds
}

type BuildConfig struct {
	Kinds []string
	// NodeName restricts mirrored pods to the ones scheduled on this node.
	NodeName string
	Options  Options
	Settings watch.Settings
}

// Build creates one handler per configured kind, ordered so that every handler comes after its dependency.
func Build(log logrus.FieldLogger, store *state.Store, source watch.Source, cfg BuildConfig) ([]*watch.Handler, error) {
	return build(log, store, source, cfg, kindSpecs)
}

func build(log logrus.FieldLogger, store *state.Store, source watch.Source, cfg BuildConfig, specs map[string]kindSpec) ([]*watch.Handler, error) {
	if err := cfg.Options.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, ErrNilStore
	}

	kinds := lo.Uniq(cfg.Kinds)
	for _, kind := range kinds {
		if _, ok := specs[kind]; !ok {
			return nil, fmt.Errorf("%w: %q", state.ErrUnknownKind, kind)
		}
	}

	ordered, err := orderKinds(kinds, specs)
	if err != nil {
		return nil, err
	}

	built := map[string]*watch.Handler{}
	handlers := make([]*watch.Handler, 0, len(ordered)+1)
	for _, kind := range ordered {
		spec := specs[kind]
		opts := Options{}
		if kind == state.KindNamespaces {
			opts = cfg.Options
		}

		var dep *watch.Handler
		if spec.dependsOn != "" {
			dep = built[spec.dependsOn]
			if dep == nil {
				log.Infof("%s depend on %s which are not mirrored, starting without waiting", kind, spec.dependsOn)
			}
		}

		h, err := newHandler(log, store, source, kind, spec, opts, dep, queryFor(kind, cfg.NodeName), cfg.Settings)
		if err != nil {
			return nil, err
		}
		built[kind] = h
		handlers = append(handlers, h)
	}

	if cfg.Options.SetClusterID && built[state.KindNamespaces] == nil {
		spec, ok := specs[state.KindNamespaces]
		if !ok {
			return nil, fmt.Errorf("%w: %q", state.ErrUnknownKind, state.KindNamespaces)
		}
		opts := Options{SetClusterID: true, ClusterIDOnly: true}
		h, err := newHandler(log, store, source, ClusterIDHandler, spec, opts, nil, nil, cfg.Settings)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, h)
	}

	return handlers, nil
}

func newHandler(
	log logrus.FieldLogger,
	store *state.Store,
	source watch.Source,
	name string,
	spec kindSpec,
	opts Options,
	dep *watch.Handler,
	query url.Values,
	settings watch.Settings,
) (*watch.Handler, error) {
	component, err := spec.newFn(log.WithField("handler", name), store, opts)
	if err != nil {
		return nil, fmt.Errorf("creating %s component: %w", name, err)
	}
	return watch.NewHandler(log, watch.Config{
		Name:        name,
		Path:        spec.path,
		Query:       query,
		StateFilter: StateFilter(spec.objectKind, spec.projection),
		EventFilter: EventFilter(spec.projection),
		Dependency:  dep,
		Settings:    settings,
	}, source, component)
}

func queryFor(kind, nodeName string) url.Values {
	if kind != state.KindPods || nodeName == "" {
		return nil
	}
	return url.Values{
		"fieldSelector": []string{fields.OneTermEqualSelector("spec.nodeName", nodeName).String()},
	}
}

// orderKinds sorts kinds so that dependencies come first. Dependencies on kinds that are not enabled are ignored,
// cycles are reported with ErrDependencyCycle.
func orderKinds(kinds []string, specs map[string]kindSpec) ([]string, error) {
	enabled := lo.SliceToMap(kinds, func(k string) (string, struct{}) {
		return k, struct{}{}
	})

	const (
		visiting = 1
		visited  = 2
	)
	marks := map[string]int{}
	out := make([]string, 0, len(kinds))

	var visit func(kind string, path []string) error
	visit = func(kind string, path []string) error {
		switch marks[kind] {
		case visited:
			return nil
		case visiting:
			return fmt.Errorf("%w: %v", watch.ErrDependencyCycle, append(path, kind))
		}
		marks[kind] = visiting
		if dep := specs[kind].dependsOn; dep != "" {
			if _, ok := enabled[dep]; ok {
				if err := visit(dep, append(path, kind)); err != nil {
					return err
				}
			}
		}
		marks[kind] = visited
		out = append(out, kind)
		return nil
	}

	sorted := append([]string(nil), kinds...)
	sort.Strings(sorted)
	for _, kind := range sorted {
		if err := visit(kind, nil); err != nil {
			return nil, err
		}
	}
	return out, nil
}
