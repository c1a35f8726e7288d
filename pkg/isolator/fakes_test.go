package isolator

import (
	"context"
	"fmt"
	"os"
	"sync"

	"netisolator/pkg/cniplugin"
)

// fakeMounter stands in for mount.Mounter so engine and recovery tests run
// without root or a real Linux mount namespace.
type fakeMounter struct {
	mu sync.Mutex

	setupCalls int
	bound      map[string]int
	unmounted  []string
}

func newFakeMounter() *fakeMounter {
	return &fakeMounter{bound: make(map[string]int)}
}

func (f *fakeMounter) Setup(dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setupCalls++
	return os.MkdirAll(dir, 0o755)
}

func (f *fakeMounter) BindNamespace(pid int, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bound[target] = pid
	return os.WriteFile(target, nil, 0o644)
}

func (f *fakeMounter) Unmount(target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unmounted = append(f.unmounted, target)
	delete(f.bound, target)
	return nil
}

// fakeCall records one Invoke call for assertions.
type fakeCall struct {
	cmd         cniplugin.Command
	containerID string
	ifName      string
	netnsPath   string
	network     string
}

// fakeInvoker stands in for cniplugin.Invoker, returning canned results or
// errors per network name and command, without ever spawning a process.
type fakeInvoker struct {
	mu sync.Mutex

	addResult map[string]*cniplugin.Result
	addErr    map[string]error
	delResult map[string]*cniplugin.Result
	delErr    map[string]error

	calls []fakeCall
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{
		addResult: make(map[string]*cniplugin.Result),
		addErr:    make(map[string]error),
		delResult: make(map[string]*cniplugin.Result),
		delErr:    make(map[string]error),
	}
}

func (f *fakeInvoker) Invoke(ctx context.Context, cmd cniplugin.Command, containerID, ifName, netnsPath string, cfg *cniplugin.NetworkConfig) (*cniplugin.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{cmd: cmd, containerID: containerID, ifName: ifName, netnsPath: netnsPath, network: cfg.Name()})
	f.mu.Unlock()

	switch cmd {
	case cniplugin.Add:
		if err, ok := f.addErr[cfg.Name()]; ok {
			return nil, err
		}
		if res, ok := f.addResult[cfg.Name()]; ok {
			return res, nil
		}
		return &cniplugin.Result{ExitCode: 0, Stdout: []byte(`{"cniVersion":"1.0.0"}`)}, nil
	case cniplugin.Del:
		if err, ok := f.delErr[cfg.Name()]; ok {
			return nil, err
		}
		if res, ok := f.delResult[cfg.Name()]; ok {
			return res, nil
		}
		return &cniplugin.Result{ExitCode: 0}, nil
	default:
		return nil, fmt.Errorf("fakeInvoker: unknown command %s", cmd)
	}
}

func (f *fakeInvoker) callCount(cmd cniplugin.Command, network string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.cmd == cmd && c.network == network {
			n++
		}
	}
	return n
}
