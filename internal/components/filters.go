package components

import (
	"fmt"
)

// The state filter turns a full list into one synthetic ADDED event, the event filter wraps the object of a single
// watch event. Both project objects through the same per-kind projection so list items and deltas look alike.
const (
	stateFilterTemplate = `{
  type: "ADDED",
  apiVersion: .apiVersion,
  kind: %q,
  resourceVersion: .metadata.resourceVersion,
  items: [(.items // [])[] | %s]
}`

	eventFilterTemplate = `{
  type: .type,
  apiVersion: .object.apiVersion,
  kind: .object.kind,
  resourceVersion: .object.metadata.resourceVersion,
  items: [select(.type != "ERROR") | .object | %s]
}`

	metaProjection = `name: .metadata.name, uid: .metadata.uid, timestamp: .metadata.creationTimestamp, labels: .metadata.labels`
)

const (
	namespacedProjection = `namespace: .metadata.namespace`

	nodeProjection = `addresses: [(.status.addresses // [])[] | .address]`

	podProjection = namespacedProjection + `,
    nodeName: .spec.nodeName,
    hostIP: .status.hostIP,
    podIP: .status.podIP,
    phase: .status.phase,
    containerIDs: [((.status.initContainerStatuses // []) + (.status.containerStatuses // []))[] | .containerID | select(. != null and . != "")]`

	serviceProjection = namespacedProjection + `,
    clusterIP: .spec.clusterIP,
    selector: .spec.selector,
    ports: [(.spec.ports // [])[] | {name, protocol, port, targetPort: (.targetPort // "" | tostring), nodePort: (.nodePort // 0)}]`

	replicationControllerProjection = namespacedProjection + `,
    selector: .spec.selector,
    desiredReplicas: (.spec.replicas // 0),
    currentReplicas: (.status.replicas // 0)`

	labelSelectorProjection = namespacedProjection + `,
    selector: .spec.selector.matchLabels,
    desiredReplicas: (.spec.replicas // 0),
    currentReplicas: (.status.replicas // 0)`

	daemonSetProjection = namespacedProjection + `,
    selector: .spec.selector.matchLabels,
    desiredScheduled: (.status.desiredNumberScheduled // 0),
    currentScheduled: (.status.currentNumberScheduled // 0)`
)

func projection(extra string) string {
	if extra == "" {
		return "{" + metaProjection + "}"
	}
	return "{" + metaProjection + ",\n    " + extra + "}"
}

// StateFilter returns the jq expression normalizing a full list of objectKind objects.
func StateFilter(objectKind, extra string) string {
	return fmt.Sprintf(stateFilterTemplate, objectKind, projection(extra))
}

// EventFilter returns the jq expression normalizing one watch event.
func EventFilter(extra string) string {
	return fmt.Sprintf(eventFilterTemplate, projection(extra))
}
