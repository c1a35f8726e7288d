package isolator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	types100 "github.com/containernetworking/cni/pkg/types/100"

	"netisolator/pkg/checkpoint"
	"netisolator/pkg/cniplugin"
)

// job is a snapshot of the work one network's ADD or DEL fan-out leg needs;
// it is read under the table lock and then used lock-free while the
// plugin subprocess runs (§4.5's "bounded critical sections").
type job struct {
	networkName string
	ifName      string
	cfg         *cniplugin.NetworkConfig
}

// Prepare validates a container's requested networks and, if it has any,
// reserves a ContainerInfo for it and assigns interface names in request
// order (§4.5 prepare). It has no suspension points, so it runs entirely
// under the table lock.
//
// A nil *ContainerLaunchInfo with a nil error means the container has no
// named networks and should use the host network namespace.
func (iso *Isolator) Prepare(containerID string, spec ContainerSpec) (*ContainerLaunchInfo, error) {
	iso.mu.Lock()
	defer iso.mu.Unlock()

	if _, exists := iso.containers[containerID]; exists {
		return nil, fmt.Errorf("container %s is already prepared", containerID)
	}

	if spec.ContainerType != AgentNativeContainerType {
		return nil, fmt.Errorf("container type %q is not supported by the network isolator", spec.ContainerType)
	}

	networks := make(map[string]*NetworkInfo)
	seen := make(map[string]bool)
	i := 0
	for _, req := range spec.Networks {
		if req.Name == "" {
			// Permissive per the preserved Open Question in §9: entries
			// without a name are silently dropped, not an error.
			continue
		}
		if seen[req.Name] {
			return nil, fmt.Errorf("network %q is requested more than once", req.Name)
		}
		if _, known := iso.configs[req.Name]; !known {
			return nil, fmt.Errorf("unknown CNI network %q", req.Name)
		}
		seen[req.Name] = true

		networks[req.Name] = &NetworkInfo{
			NetworkName: req.Name,
			IfName:      fmt.Sprintf("eth%d", i),
		}
		i++
	}

	if len(networks) == 0 {
		return nil, nil
	}

	iso.containers[containerID] = &ContainerInfo{Networks: networks}

	iso.log.WithField("containerId", containerID).
		WithField("networks", len(networks)).
		Info("prepared container for network isolation")

	return &ContainerLaunchInfo{
		Namespaces: NetNamespace | MountNamespace | UTSNamespace,
	}, nil
}

// Isolate pins a fresh network namespace for pid and runs one ADD per
// requested network concurrently, waiting for all of them before returning
// (§4.5 isolate). If containerID was never prepared (or prepared with zero
// networks), this is a no-op — the container uses the host network.
func (iso *Isolator) Isolate(ctx context.Context, containerID string, pid int) error {
	jobs, ok := iso.snapshotJobs(containerID)
	if !ok {
		return nil
	}

	containerDir, err := iso.paths.ContainerDir(containerID)
	if err != nil {
		return fmt.Errorf("resolving container directory for %s: %w", containerID, err)
	}
	if err := os.MkdirAll(containerDir, 0o755); err != nil {
		return fmt.Errorf("creating container directory %s: %w", containerDir, err)
	}

	nsHandle, err := iso.paths.NamespaceHandle(containerID)
	if err != nil {
		return fmt.Errorf("resolving namespace handle for %s: %w", containerID, err)
	}
	if err := iso.mounter.BindNamespace(pid, nsHandle); err != nil {
		return fmt.Errorf("pinning network namespace for %s: %w", containerID, err)
	}

	errs := fanOut(jobs, func(j job) error {
		return iso.attach(ctx, containerID, nsHandle, j)
	})

	return combine(errs...)
}

// attach is the post-ADD continuation. A non-zero exit or unparseable
// stdout are both failures (§4.4), with the stdout attached to the failure
// message verbatim; only a parsed-good result is checkpointed and recorded
// in the ContainerInfo table (§4.5 _attach).
//
// checkpoint.Read's best-effort parse is for recovery, where a torn or
// missing checkpoint degrades to "no result" instead of failing outright.
// The live ADD path has no such leniency: unparseable stdout fails exactly
// like a non-zero exit.
func (iso *Isolator) attach(ctx context.Context, containerID, nsHandle string, j job) error {
	res, err := iso.invoker.Invoke(ctx, cniplugin.Add, containerID, j.ifName, nsHandle, j.cfg)
	if err != nil {
		return fmt.Errorf("network %s: invoking CNI ADD: %w", j.networkName, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("network %s: CNI ADD exited %d: %s", j.networkName, res.ExitCode, res.Stdout)
	}

	var result types100.Result
	if err := json.Unmarshal(res.Stdout, &result); err != nil {
		return fmt.Errorf("network %s: CNI ADD produced unparseable result: %s", j.networkName, res.Stdout)
	}

	ckptPath, err := iso.paths.CheckpointFile(containerID, j.networkName, j.ifName)
	if err != nil {
		return fmt.Errorf("network %s: resolving checkpoint path: %w", j.networkName, err)
	}
	if err := checkpoint.Write(ckptPath, res.Stdout); err != nil {
		return fmt.Errorf("network %s: %w", j.networkName, err)
	}

	iso.mu.Lock()
	if ci, ok := iso.containers[containerID]; ok {
		if ni, ok := ci.Networks[j.networkName]; ok {
			ni.Result = &result
		}
	}
	iso.mu.Unlock()

	iso.log.WithField("containerId", containerID).
		WithField("network", j.networkName).
		WithField("ifName", j.ifName).
		WithField("result", checkpoint.Summarize(&result)).
		Info("attached network")

	return nil
}

// Cleanup runs one DEL per recorded network concurrently, waiting for all
// of them. On full success it unmounts the namespace handle and removes
// the container directory and its ContainerInfo; a failure leaves the
// ContainerInfo in place so the caller may retry (§4.5 cleanup — treated
// as idempotent per §9's Open Question: CNI plugins tolerate repeat DELs).
func (iso *Isolator) Cleanup(ctx context.Context, containerID string) error {
	jobs, ok := iso.snapshotJobs(containerID)
	if !ok {
		return nil
	}

	nsHandle, err := iso.paths.NamespaceHandle(containerID)
	if err != nil {
		return fmt.Errorf("resolving namespace handle for %s: %w", containerID, err)
	}

	errs := fanOut(jobs, func(j job) error {
		return iso.detach(ctx, containerID, nsHandle, j)
	})
	if err := combine(errs...); err != nil {
		return err
	}

	if err := iso.mounter.Unmount(nsHandle); err != nil {
		return fmt.Errorf("unmounting namespace handle for %s: %w", containerID, err)
	}

	containerDir, err := iso.paths.ContainerDir(containerID)
	if err != nil {
		return fmt.Errorf("resolving container directory for %s: %w", containerID, err)
	}
	if err := os.RemoveAll(containerDir); err != nil {
		return fmt.Errorf("removing container directory %s: %w", containerDir, err)
	}

	iso.mu.Lock()
	delete(iso.containers, containerID)
	iso.mu.Unlock()

	iso.log.WithField("containerId", containerID).Info("cleaned up container network state")
	return nil
}

// detach is the post-DEL continuation: exit code 0 removes the interface
// directory; a non-zero exit fails with the plugin's stdout attached, and
// no cleanup is attempted (§4.5 _detach).
func (iso *Isolator) detach(ctx context.Context, containerID, nsHandle string, j job) error {
	res, err := iso.invoker.Invoke(ctx, cniplugin.Del, containerID, j.ifName, nsHandle, j.cfg)
	if err != nil {
		return fmt.Errorf("network %s: invoking CNI DEL: %w", j.networkName, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("network %s: CNI DEL exited %d: %s", j.networkName, res.ExitCode, res.Stdout)
	}

	ifDir, err := iso.paths.InterfaceDir(containerID, j.networkName, j.ifName)
	if err != nil {
		return fmt.Errorf("network %s: resolving interface directory: %w", j.networkName, err)
	}
	if err := os.RemoveAll(ifDir); err != nil {
		return fmt.Errorf("network %s: removing interface directory: %w", j.networkName, err)
	}

	iso.log.WithField("containerId", containerID).
		WithField("network", j.networkName).
		WithField("ifName", j.ifName).
		Info("detached network")

	return nil
}

// snapshotJobs copies out the network jobs for containerID under the
// table lock and releases it before any caller starts subprocess fan-out.
// ok is false when containerID has no ContainerInfo, meaning the caller
// should treat the operation as a host-network no-op.
func (iso *Isolator) snapshotJobs(containerID string) (jobs []job, ok bool) {
	iso.mu.Lock()
	defer iso.mu.Unlock()

	ci, exists := iso.containers[containerID]
	if !exists {
		return nil, false
	}

	jobs = make([]job, 0, len(ci.Networks))
	for name, ni := range ci.Networks {
		jobs = append(jobs, job{
			networkName: name,
			ifName:      ni.IfName,
			cfg:         iso.configs[name],
		})
	}
	return jobs, true
}

// fanOut runs fn once per job concurrently and waits for every one to
// finish before returning, collecting every non-nil error — never
// short-circuiting on the first failure (§5 Cancellation, §9 Design Note
// on "await all, collect failures"). golang.org/x/sync/errgroup's default
// cancel-on-first-error behavior would violate that, so this barrier is a
// plain WaitGroup over a mutex-guarded error slice instead.
func fanOut(jobs []job, fn func(job) error) []error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	errs := make([]error, 0, len(jobs))

	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			if err := fn(j); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(j)
	}
	wg.Wait()

	return errs
}
