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

package partitioner

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// SectorSize returns device's logical block size, read from sysfs rather
// than assumed, since 4Kn drives exist alongside the usual 512-byte sector
// disks.
func SectorSize(device string) (uint64, error) {
	sysPath := filepath.Join("/sys/class/block", filepath.Base(device), "queue", "logical_block_size")
	raw, err := os.ReadFile(sysPath)
	if err != nil {
		// Fall back to the traditional BLKSSZGET ioctl when sysfs isn't
		// mounted or the node isn't a registered block device.
		return sectorSizeIoctl(device)
	}
	size, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", sysPath, err)
	}
	return size, nil
}

func sectorSizeIoctl(device string) (uint64, error) {
	f, err := os.Open(device)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	size, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKSSZGET)
	if err != nil {
		return 0, fmt.Errorf("BLKSSZGET %s: %w", device, err)
	}
	return uint64(size), nil
}

// DeviceSize returns the total addressable byte size of a block device via
// the BLKGETSIZE64 ioctl.
func DeviceSize(device string) (uint64, error) {
	f, err := os.Open(device)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	size, err := unix.IoctlGetUint64(int(f.Fd()), unix.BLKGETSIZE64)
	if err != nil {
		return 0, fmt.Errorf("BLKGETSIZE64 %s: %w", device, err)
	}
	return size, nil
}

// ZeroFirstSector overwrites the disk's first sector with zeroes so no stale
// MBR or GPT protective signature survives a table-type switch.
func ZeroFirstSector(device string, sectorSize uint64) error {
	f, err := os.OpenFile(device, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	zeroes := make([]byte, sectorSize)
	if _, err := f.WriteAt(zeroes, 0); err != nil {
		return err
	}
	return f.Sync()
}

// RereadPartitionTable asks the kernel to reread device's partition table
// (BLKRRPART) and then waits for udev to materialize the resulting device
// nodes.
func RereadPartitionTable(device string) error {
	f, err := os.Open(device)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := unix.IoctlSetInt(int(f.Fd()), unix.BLKRRPART, 0); err != nil {
		return fmt.Errorf("BLKRRPART %s: %w", device, err)
	}
	udevSettle()
	return nil
}
