//go:build !linux

package mount

import "fmt"

func newPlatformMounter() Mounter {
	return stubMounter{}
}

// stubMounter satisfies Mounter on platforms without Linux mount
// propagation, so the rest of the module builds everywhere; every method
// fails, the same contract the teacher's native/adapter_unsupported.go
// gives its stub NativeAdapter.
type stubMounter struct{}

func (stubMounter) Setup(dir string) error {
	return fmt.Errorf("mount propagation setup is not supported on this OS")
}

func (stubMounter) BindNamespace(pid int, target string) error {
	return fmt.Errorf("network namespace bind-mounting is not supported on this OS")
}

func (stubMounter) Unmount(target string) error {
	return fmt.Errorf("unmounting is not supported on this OS")
}
