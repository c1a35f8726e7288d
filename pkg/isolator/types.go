// Package isolator implements the per-container network lifecycle state
// machine (prepare, isolate, cleanup) and crash recovery described in
// SPEC_FULL.md §4.5/§4.6, fanning out CNI plugin invocations and
// checkpointing their results so state survives an agent restart.
package isolator

import (
	types100 "github.com/containernetworking/cni/pkg/types/100"
)

// AgentNativeContainerType is the only container type this isolator
// attaches networking to (§1 Non-goals). Prepare rejects a spec of any
// other container type with an error.
const AgentNativeContainerType = "AGENT_NATIVE"

// NamespaceFlag is a bitmask of Linux namespaces prepare asks the caller's
// clone to create for a container's init process.
type NamespaceFlag uint

const (
	NetNamespace NamespaceFlag = 1 << iota
	MountNamespace
	UTSNamespace
)

// Has reports whether flag is set in f.
func (f NamespaceFlag) Has(flag NamespaceFlag) bool {
	return f&flag != 0
}

// ContainerLaunchInfo is returned by prepare when a container has at least
// one named network: it tells the caller which namespaces its clone must
// create before isolate runs (§4.5).
type ContainerLaunchInfo struct {
	Namespaces NamespaceFlag
}

// RequestedNetwork is one entry of a container spec's network list. Name
// may be empty; per the preserved Open Question in §9, unnamed entries are
// silently dropped rather than rejected.
type RequestedNetwork struct {
	Name string
}

// ContainerSpec is the subset of a container descriptor this isolator
// reads: its container type and its requested networks, in request order.
type ContainerSpec struct {
	ContainerType string
	Networks      []RequestedNetwork
}

// NetworkInfo is the per-container, per-network state: its assigned
// interface name and, after a successful ADD, the parsed plugin result.
// Result is nil until attach succeeds, and may remain nil forever after a
// recovery that found a missing or unparseable checkpoint (§4.6, §8).
type NetworkInfo struct {
	NetworkName string
	IfName      string
	Result      *types100.Result
}

// ContainerInfo is the in-memory record of one managed container: the sole
// authority, per §3, for "this core is managing this container." It maps
// network name to NetworkInfo.
type ContainerInfo struct {
	Networks map[string]*NetworkInfo
}

// ResourceUpdate, ResourceUsage, and ContainerStatus are placeholder types
// for the no-op resource-accounting hooks (§1: out of scope for this
// subsystem, always a no-op).
type ResourceUpdate struct{}
type ResourceUsage struct{}
type ContainerStatus struct{}
