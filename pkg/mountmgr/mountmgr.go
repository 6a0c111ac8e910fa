/*
Copyright © 2022 - 2024 SUSE LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package mountmgr is the bind-mount lifecycle manager (C2): it mounts the
// root and EFI partitions under the install target, binds the kernel
// pseudo-filesystems the chroot needs, and unwinds all of it in strict
// reverse order.
package mountmgr

import (
	"path/filepath"

	mountutils "k8s.io/mount-utils"

	"github.com/aosc-dev/deploykit/pkg/constants"
	"github.com/aosc-dev/deploykit/pkg/types"
)

// kernelFSMounts is the fixed bind-mount order spec.md §4.2 calls out. Order
// matters: /dev must exist before /dev/pts and /dev/shm are bound under it.
var kernelFSMounts = []struct {
	source string
	target string
	fstype string
	opts   []string
}{
	{"proc", constants.MountProc, "proc", []string{"nosuid", "noexec", "nodev"}},
	{"sysfs", constants.MountSys, "sysfs", []string{"nosuid", "noexec", "nodev", "ro"}},
	{"efivarfs", constants.MountEfivars, "efivarfs", []string{"nosuid", "noexec", "nodev"}},
	{"/dev", constants.MountDev, "", []string{"bind", "nosuid"}},
	{"devpts", constants.MountDevPts, "devpts", []string{"nosuid", "noexec"}},
	{"shm", constants.MountDevShm, "tmpfs", []string{"nosuid", "noexec", "nodev"}},
	{"/run/udev", constants.MountRunUdev, "", []string{"bind", "nosuid"}},
}

// Ledger records every mount this manager has performed against a given
// root, in the order performed, so Teardown can unwind it symmetrically.
type Ledger struct {
	root    string
	mounted []string // target paths, in mount order
}

// Manager is the concrete implementation of C2, backed by k8s.io/mount-utils
// for the low-level mount(2)/umount(2) calls.
type Manager struct {
	cfg    types.Config
	mount  mountutils.Interface
	ledger *Ledger
}

// New returns a Manager rooted at root (the install target mountpoint).
func New(cfg types.Config, root string) *Manager {
	return &Manager{
		cfg:    cfg,
		mount:  mountutils.New(""),
		ledger: &Ledger{root: root},
	}
}

// MountRoot mounts the root partition's device at m's root.
func (m *Manager) MountRoot(device, fsType string) error {
	if err := m.mount.Mount(device, m.ledger.root, fsType, nil); err != nil {
		return types.NewTaggedError(types.TagSetupMount, "mounting root partition", device, err)
	}
	m.ledger.mounted = append(m.ledger.mounted, m.ledger.root)
	return nil
}

// MountEFI mounts the EFI system partition at root/efi, matching the
// standard ESP mountpoint convention the bootloader installer expects.
func (m *Manager) MountEFI(device string) error {
	target := filepath.Join(m.ledger.root, "efi")
	if err := m.cfg.FS.MkdirAll(target, 0o755); err != nil {
		return types.NewTaggedError(types.TagSetupMount, "creating efi mountpoint", target, err)
	}
	if err := m.mount.Mount(device, target, constants.FsVfat, nil); err != nil {
		return types.NewTaggedError(types.TagSetupMount, "mounting efi partition", device, err)
	}
	m.ledger.mounted = append(m.ledger.mounted, target)
	return nil
}

// SetupKernelFS binds proc/sysfs/efivarfs/dev/devpts/devshm/run-udev under
// root, in the fixed order kernelFSMounts documents.
func (m *Manager) SetupKernelFS() error {
	for _, km := range kernelFSMounts {
		target := filepath.Join(m.ledger.root, km.target)
		if err := m.cfg.FS.MkdirAll(target, 0o755); err != nil {
			return types.NewTaggedError(types.TagMountInner, "creating mountpoint "+target, km.target, err)
		}

		opts := km.opts
		if err := m.mount.Mount(km.source, target, km.fstype, opts); err != nil {
			return types.NewTaggedError(types.TagMountInner, "mounting "+km.target, km.source, err)
		}
		m.ledger.mounted = append(m.ledger.mounted, target)
	}
	return nil
}

// Teardown unmounts everything this manager has mounted, in strict reverse
// order, accumulating (rather than stopping on) individual failures so one
// stuck mount doesn't strand the rest.
func (m *Manager) Teardown() error {
	var errs []error
	for i := len(m.ledger.mounted) - 1; i >= 0; i-- {
		target := m.ledger.mounted[i]
		if err := m.unmountWithFallback(target); err != nil {
			errs = append(errs, types.NewTaggedError(types.TagMountUmount, "unmounting "+target, target, err))
			continue
		}
		m.ledger.mounted = append(m.ledger.mounted[:i], m.ledger.mounted[i+1:]...)
	}
	if len(errs) == 0 {
		return nil
	}
	return joinErrors(errs)
}

// unmountWithFallback tries a clean unmount first, then a recursive
// unmount via `umount -R` (spec.md §9's documented retry-stage fallback) if
// the target is still busy.
func (m *Manager) unmountWithFallback(target string) error {
	if err := m.mount.Unmount(target); err == nil {
		return nil
	}
	_, err := m.cfg.Runner.Run("umount", "-R", target)
	return err
}

// IsMountPoint reports whether path is currently a mountpoint.
func (m *Manager) IsMountPoint(path string) (bool, error) {
	return m.mount.IsMountPoint(path)
}

// Mounted returns the current ledger contents, in mount order, for
// diagnostics.
func (m *Manager) Mounted() []string {
	out := make([]string, len(m.ledger.mounted))
	copy(out, m.ledger.mounted)
	return out
}
