package components

import (
	"github.com/sirupsen/logrus"

	"mirror-agent/internal/state"
	"mirror-agent/internal/watch"
)

type nodeAttrs struct {
	Addresses []string `mapstructure:"addresses"`
}

func NewNodes(log logrus.FieldLogger, store *state.Store) (watch.Component, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	return &resource[state.Node, nodeAttrs]{
		log:   log,
		table: store.Nodes,
		meta:  func(n *state.Node) *state.Meta { return &n.Meta },
		update: func(n *state.Node, a nodeAttrs) {
			n.Addresses = a.Addresses
		},
	}, nil
}

type podAttrs struct {
	Namespace    string   `mapstructure:"namespace"`
	NodeName     string   `mapstructure:"nodeName"`
	HostIP       string   `mapstructure:"hostIP"`
	PodIP        string   `mapstructure:"podIP"`
	Phase        string   `mapstructure:"phase"`
	ContainerIDs []string `mapstructure:"containerIDs"`
}

func NewPods(log logrus.FieldLogger, store *state.Store) (watch.Component, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	return &resource[state.Pod, podAttrs]{
		log:   log,
		table: store.Pods,
		meta:  func(p *state.Pod) *state.Meta { return &p.Meta },
		update: func(p *state.Pod, a podAttrs) {
			p.Namespace = a.Namespace
			p.NodeName = a.NodeName
			p.HostIP = a.HostIP
			p.PodIP = a.PodIP
			p.Phase = a.Phase
			p.ContainerIDs = a.ContainerIDs
		},
	}, nil
}

type servicePortAttrs struct {
	Name       string `mapstructure:"name"`
	Protocol   string `mapstructure:"protocol"`
	Port       int    `mapstructure:"port"`
	TargetPort string `mapstructure:"targetPort"`
	NodePort   int    `mapstructure:"nodePort"`
}

type serviceAttrs struct {
	Namespace string             `mapstructure:"namespace"`
	ClusterIP string             `mapstructure:"clusterIP"`
	Selector  map[string]string  `mapstructure:"selector"`
	Ports     []servicePortAttrs `mapstructure:"ports"`
}

func NewServices(log logrus.FieldLogger, store *state.Store) (watch.Component, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	return &resource[state.Service, serviceAttrs]{
		log:   log,
		table: store.Services,
		meta:  func(s *state.Service) *state.Meta { return &s.Meta },
		update: func(s *state.Service, a serviceAttrs) {
			s.Namespace = a.Namespace
			s.ClusterIP = a.ClusterIP
			s.Selector = a.Selector
			s.Ports = make([]state.ServicePort, 0, len(a.Ports))
			for _, p := range a.Ports {
				s.Ports = append(s.Ports, state.ServicePort(p))
			}
		},
	}, nil
}

type controllerAttrs struct {
	Namespace       string            `mapstructure:"namespace"`
	Selector        map[string]string `mapstructure:"selector"`
	DesiredReplicas int               `mapstructure:"desiredReplicas"`
	CurrentReplicas int               `mapstructure:"currentReplicas"`
}

func newController(log logrus.FieldLogger, table *state.Table[state.Controller]) *resource[state.Controller, controllerAttrs] {
	return &resource[state.Controller, controllerAttrs]{
		log:   log,
		table: table,
		meta:  func(c *state.Controller) *state.Meta { return &c.Meta },
		update: func(c *state.Controller, a controllerAttrs) {
			c.Namespace = a.Namespace
			c.Selector = a.Selector
			c.DesiredReplicas = a.DesiredReplicas
			c.CurrentReplicas = a.CurrentReplicas
		},
	}
}

func NewReplicationControllers(log logrus.FieldLogger, store *state.Store) (watch.Component, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	return newController(log, store.ReplicationControllers), nil
}

func NewReplicaSets(log logrus.FieldLogger, store *state.Store) (watch.Component, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	return newController(log, store.ReplicaSets), nil
}

func NewDeployments(log logrus.FieldLogger, store *state.Store) (watch.Component, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	return newController(log, store.Deployments), nil
}

type daemonSetAttrs struct {
	Namespace        string            `mapstructure:"namespace"`
	Selector         map[string]string `mapstructure:"selector"`
	DesiredScheduled int               `mapstructure:"desiredScheduled"`
	CurrentScheduled int               `mapstructure:"currentScheduled"`
}

func NewDaemonSets(log logrus.FieldLogger, store *state.Store) (watch.Component, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	return &resource[state.DaemonSet, daemonSetAttrs]{
		log:   log,
		table: store.DaemonSets,
		meta:  func(d *state.DaemonSet) *state.Meta { return &d.Meta },
		update: func(d *state.DaemonSet, a daemonSetAttrs) {
			d.Namespace = a.Namespace
			d.Selector = a.Selector
			d.DesiredScheduled = a.DesiredScheduled
			d.CurrentScheduled = a.CurrentScheduled
		},
	}, nil
}
