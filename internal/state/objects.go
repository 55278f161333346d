package state

// Kind names double as the plural resource names used in API paths and in configuration.
const (
	KindNamespaces             = "namespaces"
	KindNodes                  = "nodes"
	KindPods                   = "pods"
	KindServices               = "services"
	KindReplicationControllers = "replicationcontrollers"
	KindReplicaSets            = "replicasets"
	KindDeployments            = "deployments"
	KindDaemonSets             = "daemonsets"
)

// Meta holds the attributes every mirrored object carries. Labels is replaced wholesale and never mutated after it
// has been stored, so copies of an object may share the map.
type Meta struct {
	Name      string            `json:"name"`
	UID       string            `json:"uid"`
	CreatedAt string            `json:"createdAt,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
}

type Namespace struct {
	Meta `json:",inline"`
}

type Node struct {
	Meta      `json:",inline"`
	Addresses []string `json:"addresses,omitempty"`
}

type Pod struct {
	Meta         `json:",inline"`
	Namespace    string   `json:"namespace"`
	NodeName     string   `json:"nodeName,omitempty"`
	HostIP       string   `json:"hostIP,omitempty"`
	PodIP        string   `json:"podIP,omitempty"`
	Phase        string   `json:"phase,omitempty"`
	ContainerIDs []string `json:"containerIDs,omitempty"`
}

type ServicePort struct {
	Name       string `json:"name,omitempty"`
	Protocol   string `json:"protocol,omitempty"`
	Port       int    `json:"port"`
	TargetPort string `json:"targetPort,omitempty"`
	NodePort   int    `json:"nodePort,omitempty"`
}

type Service struct {
	Meta      `json:",inline"`
	Namespace string            `json:"namespace"`
	ClusterIP string            `json:"clusterIP,omitempty"`
	Selector  map[string]string `json:"selector,omitempty"`
	Ports     []ServicePort     `json:"ports,omitempty"`
}

// Controller is shared by replication controllers, replica sets and deployments.
type Controller struct {
	Meta            `json:",inline"`
	Namespace       string            `json:"namespace"`
	Selector        map[string]string `json:"selector,omitempty"`
	DesiredReplicas int               `json:"desiredReplicas"`
	CurrentReplicas int               `json:"currentReplicas"`
}

type DaemonSet struct {
	Meta             `json:",inline"`
	Namespace        string            `json:"namespace"`
	Selector         map[string]string `json:"selector,omitempty"`
	DesiredScheduled int               `json:"desiredScheduled"`
	CurrentScheduled int               `json:"currentScheduled"`
}
