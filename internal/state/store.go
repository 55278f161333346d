package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"
)

var (
	ErrUnknownKind       = errors.New("unknown resource kind")
	ErrClusterIDConflict = errors.New("cluster id already set to a different value")
	ErrEmptyClusterID    = errors.New("cluster id is empty")
)

// Store is the local replica of cluster state shared by every watch handler. It is created once per process and
// outlives the handlers writing to it.
type Store struct {
	Namespaces             *Table[Namespace]
	Nodes                  *Table[Node]
	Pods                   *Table[Pod]
	Services               *Table[Service]
	ReplicationControllers *Table[Controller]
	ReplicaSets            *Table[Controller]
	Deployments            *Table[Controller]
	DaemonSets             *Table[DaemonSet]

	tables map[string]Registry

	clusterMu        sync.RWMutex
	clusterID        string
	clusterObservers []func(clusterID string)
}

func New() *Store {
	s := &Store{
		Namespaces: NewTable(KindNamespaces, func(name, uid string) Namespace {
			return Namespace{Meta: Meta{Name: name, UID: uid}}
		}),
		Nodes: NewTable(KindNodes, func(name, uid string) Node {
			return Node{Meta: Meta{Name: name, UID: uid}}
		}),
		Pods: NewTable(KindPods, func(name, uid string) Pod {
			return Pod{Meta: Meta{Name: name, UID: uid}}
		}),
		Services: NewTable(KindServices, func(name, uid string) Service {
			return Service{Meta: Meta{Name: name, UID: uid}}
		}),
		ReplicationControllers: NewTable(KindReplicationControllers, newController),
		ReplicaSets:            NewTable(KindReplicaSets, newController),
		Deployments:            NewTable(KindDeployments, newController),
		DaemonSets: NewTable(KindDaemonSets, func(name, uid string) DaemonSet {
			return DaemonSet{Meta: Meta{Name: name, UID: uid}}
		}),
	}

	s.tables = map[string]Registry{}
	for _, t := range []Registry{
		s.Namespaces, s.Nodes, s.Pods, s.Services,
		s.ReplicationControllers, s.ReplicaSets, s.Deployments, s.DaemonSets,
	} {
		s.tables[t.Kind()] = t
	}

	return s
}

func newController(name, uid string) Controller {
	return Controller{Meta: Meta{Name: name, UID: uid}}
}

// Table returns the kind-agnostic view of the table holding kind.
func (s *Store) Table(kind string) (Registry, error) {
	t, ok := s.tables[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return t, nil
}

// Delete removes uid from the table of kind. It returns false when the object was not present.
func (s *Store) Delete(kind, uid string) (bool, error) {
	t, err := s.Table(kind)
	if err != nil {
		return false, err
	}
	return t.Delete(uid), nil
}

// Kinds returns the names of all tables, sorted.
func (s *Store) Kinds() []string {
	kinds := lo.Keys(s.tables)
	sort.Strings(kinds)
	return kinds
}

// SetClusterID records the cluster identifier. The first value wins: assigning the same value again is a no-op,
// assigning a different one returns ErrClusterIDConflict. Observers are notified once, when the value is first set.
func (s *Store) SetClusterID(id string) (bool, error) {
	if id == "" {
		return false, ErrEmptyClusterID
	}

	s.clusterMu.Lock()
	switch s.clusterID {
	case "":
		s.clusterID = id
	case id:
		s.clusterMu.Unlock()
		return false, nil
	default:
		current := s.clusterID
		s.clusterMu.Unlock()
		return false, fmt.Errorf("%w: have %q, got %q", ErrClusterIDConflict, current, id)
	}
	observers := append([]func(string){}, s.clusterObservers...)
	s.clusterMu.Unlock()

	for _, fn := range observers {
		fn(id)
	}
	return true, nil
}

func (s *Store) ClusterID() (string, bool) {
	s.clusterMu.RLock()
	defer s.clusterMu.RUnlock()

	return s.clusterID, s.clusterID != ""
}

// OnClusterID registers fn to be called when the cluster id is first set. If it is already set fn is called
// immediately.
func (s *Store) OnClusterID(fn func(clusterID string)) {
	s.clusterMu.Lock()
	id := s.clusterID
	if id == "" {
		s.clusterObservers = append(s.clusterObservers, fn)
	}
	s.clusterMu.Unlock()

	if id != "" {
		fn(id)
	}
}

// Snapshot is a point-in-time copy of the store. Each table is copied under its own lock, so the snapshot is
// consistent per kind but not across kinds.
type Snapshot struct {
	ClusterID              string       `json:"clusterID,omitempty"`
	Namespaces             []Namespace  `json:"namespaces"`
	Nodes                  []Node       `json:"nodes"`
	Pods                   []Pod        `json:"pods"`
	Services               []Service    `json:"services"`
	ReplicationControllers []Controller `json:"replicationControllers"`
	ReplicaSets            []Controller `json:"replicaSets"`
	Deployments            []Controller `json:"deployments"`
	DaemonSets             []DaemonSet  `json:"daemonSets"`
}

func (s *Store) Snapshot() *Snapshot {
	clusterID, _ := s.ClusterID()
	return &Snapshot{
		ClusterID:              clusterID,
		Namespaces:             s.Namespaces.List(),
		Nodes:                  s.Nodes.List(),
		Pods:                   s.Pods.List(),
		Services:               s.Services.List(),
		ReplicationControllers: s.ReplicationControllers.List(),
		ReplicaSets:            s.ReplicaSets.List(),
		Deployments:            s.Deployments.List(),
		DaemonSets:             s.DaemonSets.List(),
	}
}
