package isolator

import (
	"context"
	"fmt"
	"os"

	"netisolator/pkg/checkpoint"
)

// Recover reconstructs the in-memory ContainerInfo table from on-disk
// state at startup, reconciling against the containerizer's belief about
// which containers are live (states) or orphaned-but-alive (orphans).
// Every other lifecycle operation must wait for one Recover call to finish
// process-wide (§4.6, §5).
func (iso *Isolator) Recover(ctx context.Context, states []string, orphans []string) error {
	recovered := make(map[string]bool, len(states))
	for _, id := range states {
		if err := iso.recoverOne(id); err != nil {
			return fmt.Errorf("recovering live container %s: %w", id, err)
		}
		recovered[id] = true
	}

	ids, err := iso.paths.ContainerIDs()
	if err != nil {
		return fmt.Errorf("listing state root: %w", err)
	}

	orphanSet := make(map[string]bool, len(orphans))
	for _, id := range orphans {
		orphanSet[id] = true
	}

	for _, id := range ids {
		if recovered[id] {
			continue
		}
		if err := iso.recoverOne(id); err != nil {
			return fmt.Errorf("recovering container %s: %w", id, err)
		}
		recovered[id] = true

		if !orphanSet[id] {
			iso.log.WithField("containerId", id).
				Info("recovered container is neither a known live container nor an orphan, reaping it")
			if err := iso.Cleanup(ctx, id); err != nil {
				return fmt.Errorf("reaping unknown container %s: %w", id, err)
			}
		}
	}

	return nil
}

// recoverOne rebuilds a single ContainerInfo from disk, per §4.6's
// _recover. It is idempotent: calling it again for an id already in the
// table (e.g. a second Recover call) simply rebuilds the same state.
func (iso *Isolator) recoverOne(containerID string) error {
	containerDir, err := iso.paths.ContainerDir(containerID)
	if err != nil {
		return fmt.Errorf("resolving container directory: %w", err)
	}
	if _, err := os.Stat(containerDir); err != nil {
		if os.IsNotExist(err) {
			// Either cleanup already finished, or isolate never started.
			return nil
		}
		return fmt.Errorf("statting container directory %s: %w", containerDir, err)
	}

	names, err := iso.paths.NetworkNames(containerID)
	if err != nil {
		return fmt.Errorf("listing networks: %w", err)
	}

	networks := make(map[string]*NetworkInfo)
	for _, name := range names {
		if _, known := iso.configs[name]; !known {
			return fmt.Errorf("network %q is no longer a known CNI network", name)
		}

		ifaces, err := iso.paths.Interfaces(containerID, name)
		if err != nil {
			return fmt.Errorf("listing interfaces for network %q: %w", name, err)
		}
		if len(ifaces) == 0 {
			// Crash between interface-directory removal and
			// container-directory removal; nothing to recover here.
			continue
		}
		if len(ifaces) > 1 {
			return fmt.Errorf("network %q has %d interfaces on disk, the data model allows at most 1", name, len(ifaces))
		}
		ifName := ifaces[0]

		ckptPath, err := iso.paths.CheckpointFile(containerID, name, ifName)
		if err != nil {
			return fmt.Errorf("resolving checkpoint path for network %q: %w", name, err)
		}
		_, result, err := checkpoint.Read(ckptPath)
		if err != nil {
			return fmt.Errorf("reading checkpoint for network %q: %w", name, err)
		}
		if result == nil {
			iso.log.WithField("containerId", containerID).
				WithField("network", name).
				Warn("checkpoint missing or unparseable for recovered network, continuing with unset result")
		}

		networks[name] = &NetworkInfo{
			NetworkName: name,
			IfName:      ifName,
			Result:      result,
		}
	}

	iso.mu.Lock()
	iso.containers[containerID] = &ContainerInfo{Networks: networks}
	iso.mu.Unlock()

	return nil
}
