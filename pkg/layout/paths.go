// Package layout maps a container id, network name, and interface name to
// the on-disk paths this core owns under its state root.
//
// Every join goes through filepath-securejoin so that an attacker-controlled
// container id or network name can never walk the result outside the state
// root via ".." or a symlink.
package layout

import (
	"fmt"
	"os"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// NamespaceHandleName is the filename of the bind-mounted network namespace
// handle inside a container directory.
const NamespaceHandleName = "ns"

// NetworksDirName is the subdirectory of a container directory holding one
// subdirectory per joined network.
const NetworksDirName = "networks"

// CheckpointFileName is the filename of the checkpointed ADD result inside
// an interface directory.
const CheckpointFileName = "network.info"

// Paths resolves state-root-relative locations for a single isolator
// instance. The root is fixed at construction; Paths never mutates it.
type Paths struct {
	root string
}

// New returns a Paths rooted at root. root is not created or validated here;
// callers that need the directory to exist should use mount.Mounter's Setup, which
// creates it as a side effect of preparing mount propagation.
func New(root string) *Paths {
	return &Paths{root: root}
}

// Root returns the configured state root, unresolved.
func (p *Paths) Root() string {
	return p.root
}

// ContainerDir returns R/<containerId>/.
func (p *Paths) ContainerDir(containerID string) (string, error) {
	return securejoin.SecureJoin(p.root, containerID)
}

// NamespaceHandle returns R/<containerId>/ns.
func (p *Paths) NamespaceHandle(containerID string) (string, error) {
	dir, err := p.ContainerDir(containerID)
	if err != nil {
		return "", err
	}
	return securejoin.SecureJoin(dir, NamespaceHandleName)
}

// NetworksDir returns R/<containerId>/networks/.
func (p *Paths) NetworksDir(containerID string) (string, error) {
	dir, err := p.ContainerDir(containerID)
	if err != nil {
		return "", err
	}
	return securejoin.SecureJoin(dir, NetworksDirName)
}

// NetworkDir returns R/<containerId>/networks/<networkName>/.
func (p *Paths) NetworkDir(containerID, networkName string) (string, error) {
	dir, err := p.NetworksDir(containerID)
	if err != nil {
		return "", err
	}
	return securejoin.SecureJoin(dir, networkName)
}

// InterfaceDir returns R/<containerId>/networks/<networkName>/<ifName>/.
func (p *Paths) InterfaceDir(containerID, networkName, ifName string) (string, error) {
	dir, err := p.NetworkDir(containerID, networkName)
	if err != nil {
		return "", err
	}
	return securejoin.SecureJoin(dir, ifName)
}

// CheckpointFile returns R/<containerId>/networks/<networkName>/<ifName>/network.info.
func (p *Paths) CheckpointFile(containerID, networkName, ifName string) (string, error) {
	dir, err := p.InterfaceDir(containerID, networkName, ifName)
	if err != nil {
		return "", err
	}
	return securejoin.SecureJoin(dir, CheckpointFileName)
}

// ContainerIDs lists the immediate subdirectories of the state root, i.e.
// every container id this core has (or had) on-disk state for.
func (p *Paths) ContainerIDs() ([]string, error) {
	return listDirs(p.root)
}

// NetworkNames lists the subdirectories of R/<containerId>/networks/.
func (p *Paths) NetworkNames(containerID string) ([]string, error) {
	dir, err := p.NetworksDir(containerID)
	if err != nil {
		return nil, err
	}
	return listDirs(dir)
}

// Interfaces lists the subdirectories of R/<containerId>/networks/<networkName>/.
func (p *Paths) Interfaces(containerID, networkName string) ([]string, error) {
	dir, err := p.NetworkDir(containerID, networkName)
	if err != nil {
		return nil, err
	}
	return listDirs(dir)
}

// listDirs returns the names of the immediate subdirectories of dir,
// filtering out regular files and other non-directory entries. A missing
// dir is reported as an empty list, not an error, since an absent container
// or network directory is a legitimate crash-recovery state (§4.6).
func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
