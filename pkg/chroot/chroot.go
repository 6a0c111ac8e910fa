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

// Package chroot is the chroot gate (C3): it records a file descriptor to
// the host's root directory before entering the install root, so Escape can
// always return the process to the host root, even across panics.
package chroot

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/aosc-dev/deploykit/pkg/types"
)

// Sentinel holds the open file descriptor pointing at the host's root
// directory, taken before Enter was called.
type Sentinel struct {
	root   string
	origFd int
	active bool
}

// Acquire opens a file descriptor on the host root "/" so Escape can return
// there regardless of what Enter does to the process's root.
func Acquire() (*Sentinel, error) {
	fd, err := unix.Open("/", unix.O_RDONLY|unix.O_DIRECTORY, 0)
	if err != nil {
		return nil, types.NewTaggedError(types.TagChrootChdir, "opening host root directory", "/", err)
	}
	return &Sentinel{origFd: fd}, nil
}

// Enter chroots the process into root and chdirs to "/" inside it.
func (s *Sentinel) Enter(root string) error {
	if err := unix.Chroot(root); err != nil {
		return types.NewTaggedError(types.TagChrootChroot, fmt.Sprintf("chroot(%s)", root), root, err)
	}
	if err := unix.Chdir("/"); err != nil {
		return types.NewTaggedError(types.TagChrootSetCurrentDir, "chdir after chroot", root, err)
	}
	s.root = root
	s.active = true
	return nil
}

// Escape uses the sentinel fd to fchdir back out of the chroot, then
// chroots to "." to restore the original root. Safe to call once per
// Acquire/Enter pair; a second call is a no-op.
func (s *Sentinel) Escape() error {
	if !s.active {
		return nil
	}
	if err := unix.Fchdir(s.origFd); err != nil {
		return types.NewTaggedError(types.TagChrootSetCurrentDir, "fchdir to sentinel", s.root, err)
	}
	if err := unix.Chroot("."); err != nil {
		return types.NewTaggedError(types.TagChrootChroot, "restoring original root", s.root, err)
	}
	s.active = false
	return nil
}

// Close releases the sentinel file descriptor. Call after the final Escape.
func (s *Sentinel) Close() error {
	if s.origFd == 0 {
		return nil
	}
	err := unix.Close(s.origFd)
	s.origFd = 0
	return err
}

// RunIn runs fn with the process chrooted into root, guaranteeing Escape and
// Close run even if fn panics.
func RunIn(root string, fn func() error) (err error) {
	sentinel, aerr := Acquire()
	if aerr != nil {
		return aerr
	}
	defer func() {
		if cerr := sentinel.Escape(); cerr != nil && err == nil {
			err = cerr
		}
		_ = sentinel.Close()
	}()

	if err = sentinel.Enter(root); err != nil {
		return err
	}
	return fn()
}
