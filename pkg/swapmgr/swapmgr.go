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

// Package swapmgr is the swap manager (C8): recommends a swapfile size from
// installed memory, then creates, activates and tears down the swapfile.
package swapmgr

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jaypipes/ghw"
	"github.com/phayes/permbits"

	"github.com/aosc-dev/deploykit/pkg/constants"
	"github.com/aosc-dev/deploykit/pkg/types"
)

// Manager is the concrete implementation of C8.
type Manager struct {
	cfg  types.Config
	path string
}

// New returns a Manager that will place its swapfile at path (relative to
// the install root, already joined by the caller).
func New(cfg types.Config, path string) *Manager {
	return &Manager{cfg: cfg, path: path}
}

// RecommendSize implements the sizing curve spec.md §4.3 documents: for a
// host with m GiB of RAM, recommend 2*m GiB if m<=1, otherwise m+sqrt(m)
// GiB, capped at 32 GiB.
func RecommendSize() (uint64, error) {
	mem, err := ghw.Memory()
	if err != nil {
		return 0, types.NewTaggedError(types.TagSetupSwapFile, "querying total memory", nil, err)
	}
	gib := float64(mem.TotalPhysicalBytes) / float64(constants.MiB) / 1024

	var recGiB float64
	if gib <= 1 {
		recGiB = gib * 2
	} else {
		recGiB = gib + math.Sqrt(gib)
	}
	if recGiB > constants.SwapMaxRecommendedGiB {
		recGiB = constants.SwapMaxRecommendedGiB
	}

	return uint64(recGiB * float64(constants.MiB) * 1024), nil
}

// Create allocates a swapfile of size bytes at m.path, sets 0600 permissions,
// formats it with mkswap and activates it with swapon, per policy's Kind.
func (m *Manager) Create(policy types.SwapPolicy) error {
	if policy.Disabled() {
		return nil
	}

	size := policy.Bytes
	if policy.Kind == types.SwapAutomatic {
		rec, err := RecommendSize()
		if err != nil {
			return err
		}
		size = rec
	}

	if err := m.fallocate(size); err != nil {
		return types.NewTaggedError(types.TagSetupSwapFile, "allocating swapfile", m.path, err)
	}

	if err := setSwapfileMode(m.path); err != nil {
		return types.NewTaggedError(types.TagSetupSwapFile, "setting swapfile permissions", m.path, err)
	}

	if _, err := m.cfg.Runner.Run("mkswap", m.path); err != nil {
		return types.NewTaggedError(types.TagSetupSwapFile, "mkswap", m.path, err)
	}
	// swapon is best-effort: the install still benefits from the
	// formatted, fstab-referenced swapfile even if activating it here
	// fails, so a failure is logged rather than aborting the install.
	if _, err := m.cfg.Runner.Run("swapon", m.path); err != nil {
		if m.cfg.Logger != nil {
			m.cfg.Logger.Warnf("swapon %s failed, continuing: %v", m.path, err)
		}
	}
	return nil
}

// setSwapfileMode forces the swapfile's mode to 0600 using permbits, since
// mkswap/kernel both refuse a world-readable swap device.
func setSwapfileMode(path string) error {
	return permbits.Chmod(path, permbits.FileMode(constants.SwapfileMode))
}

// Disable runs swapoff against m.path, retrying per spec.md §4.3's
// documented backoff (up to 5 retries after the first attempt, 500ms
// apart) since a swapfile can be
// transiently busy right after heavy I/O.
func (m *Manager) Disable() error {
	op := func() error {
		_, err := m.cfg.Runner.Run("swapoff", m.path)
		return err
	}

	bo := backoff.WithMaxRetries(
		backoff.NewConstantBackOff(time.Duration(constants.SwapoffRetryWait)*time.Millisecond),
		constants.SwapoffRetries,
	)

	if err := backoff.Retry(op, bo); err != nil {
		return types.NewTaggedError(types.TagSetupSwapFile, "swapoff", m.path, err)
	}
	return m.cfg.FS.Remove(m.path)
}

// fallocate reserves size bytes for the swapfile without writing each byte,
// going through the Runner's fallocate(1) rather than the raw syscall so
// the same code path works whether the target filesystem implements
// FALLOC_FL_* natively or the fallback shell command does its own zero-fill.
func (m *Manager) fallocate(size uint64) error {
	_, err := m.cfg.Runner.Run("fallocate", "-l", itoa(size), m.path)
	return err
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
