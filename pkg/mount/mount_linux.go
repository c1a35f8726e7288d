//go:build linux

package mount

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/moby/sys/mountinfo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

func newPlatformMounter() Mounter {
	return &linuxMounter{}
}

type linuxMounter struct{}

// Setup implements the two-step slave/shared propagation procedure from
// §4.2. It is idempotent: re-running it against an already-shared,
// already-own-peer-group mount is a no-op beyond the mkdir.
func (linuxMounter) Setup(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state root %s: %w", dir, err)
	}

	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return fmt.Errorf("resolving state root %s: %w", dir, err)
	}

	mounts, err := mountinfo.GetMounts(nil)
	if err != nil {
		return fmt.Errorf("reading mount table: %w", err)
	}

	entry := findByMountpoint(mounts, resolved)
	if entry == nil {
		logrus.WithField("dir", resolved).Info("state root is not a mount point, bind-mounting it onto itself")
		if err := unix.Mount(resolved, resolved, "", unix.MS_BIND, ""); err != nil {
			return fmt.Errorf("bind-mounting %s onto itself: %w", resolved, err)
		}
		return makeSlaveThenShared(resolved)
	}

	_, isShared := parsePeerGroup(entry.Optional)
	if !isShared {
		logrus.WithField("dir", resolved).Info("state root is a mount point but not shared, marking it shared")
		return makeSlaveThenShared(resolved)
	}

	// Already shared. Split it into its own peer group if it is currently
	// sharing one with its parent mount.
	parent := findByID(mounts, entry.Parent)
	if parent == nil {
		return nil
	}
	parentID, parentShared := parsePeerGroup(parent.Optional)
	entryID, _ := parsePeerGroup(entry.Optional)
	if parentShared && parentID == entryID {
		logrus.WithField("dir", resolved).Info("state root shares its parent's peer group, splitting it into its own")
		return makeSlaveThenShared(resolved)
	}

	return nil
}

// makeSlaveThenShared performs the slave-then-shared idiom documented in
// §9: collapsing this to a single "make shared" breaks the invariant that
// the state root ends up in a fresh peer group, because a direct
// private-or-shared -> shared transition keeps (or never drops) membership
// in whatever peer group the mount already belonged to.
func makeSlaveThenShared(dir string) error {
	if err := unix.Mount("", dir, "", unix.MS_SLAVE, ""); err != nil {
		return fmt.Errorf("marking %s slave: %w", dir, err)
	}
	if err := unix.Mount("", dir, "", unix.MS_SHARED, ""); err != nil {
		return fmt.Errorf("marking %s shared: %w", dir, err)
	}
	return nil
}

func (linuxMounter) BindNamespace(pid int, target string) error {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return fmt.Errorf("creating namespace handle %s: %w", target, err)
	}
	f.Close()

	source := fmt.Sprintf("/proc/%d/ns/net", pid)
	if err := unix.Mount(source, target, "", unix.MS_BIND, ""); err != nil {
		return fmt.Errorf("bind-mounting %s onto %s: %w", source, target, err)
	}
	return nil
}

func (linuxMounter) Unmount(target string) error {
	if _, err := os.Stat(target); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("statting namespace handle %s: %w", target, err)
	}

	mounted, err := mountinfo.Mounted(target)
	if err != nil {
		return fmt.Errorf("checking whether %s is mounted: %w", target, err)
	}
	if !mounted {
		return nil
	}

	if err := unix.Unmount(target, 0); err != nil {
		return fmt.Errorf("unmounting %s: %w", target, err)
	}
	return nil
}

func findByMountpoint(mounts []*mountinfo.Info, mountpoint string) *mountinfo.Info {
	for _, m := range mounts {
		if m.Mountpoint == mountpoint {
			return m
		}
	}
	return nil
}

func findByID(mounts []*mountinfo.Info, id int) *mountinfo.Info {
	for _, m := range mounts {
		if m.ID == id {
			return m
		}
	}
	return nil
}
