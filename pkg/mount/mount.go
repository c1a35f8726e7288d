// Package mount prepares the isolator's state root as a shared mount in its
// own peer group and pins container network namespaces under it by
// bind-mounting /proc/<pid>/ns/net onto regular files.
//
// The propagation procedure (§4.2) only makes sense on Linux; callers on
// other platforms get a Mounter whose methods return an error, the same
// split the teacher uses between native/adapter.go and
// native/adapter_unsupported.go.
package mount

// Mounter is the seam between the propagation algorithm and the kernel.
// Tests inject a fake Mounter so the Lifecycle Engine and Recovery can be
// exercised without root or a Linux host.
type Mounter interface {
	// Setup makes dir a shared mount in its own peer group, creating it
	// first if absent. Idempotent: calling it twice leaves dir shared and
	// in its own peer group either way.
	Setup(dir string) error

	// BindNamespace creates target (a regular file) if absent and
	// bind-mounts /proc/<pid>/ns/net onto it, pinning the namespace
	// independently of the process that owns pid.
	BindNamespace(pid int, target string) error

	// Unmount unmounts target if it exists and is a mount point. Unmounting
	// a target that does not exist is a no-op, not an error.
	Unmount(target string) error
}

// New returns the platform Mounter: a real one backed by mount(2)/unmount(2)
// on Linux, a stub that fails every call elsewhere.
func New() Mounter {
	return newPlatformMounter()
}
