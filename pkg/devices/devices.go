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

// Package devices enumerates whole-disk block devices (C4) and detects the
// live-media device so it can be excluded from installation targets.
package devices

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/jaypipes/ghw"
	"github.com/moby/sys/mountinfo"

	"github.com/aosc-dev/deploykit/pkg/constants"
)

// Disk describes one whole-disk block device candidate for installation.
type Disk struct {
	Name       string // e.g. "sda", "nvme0n1"
	DevicePath string // e.g. "/dev/sda"
	SizeBytes  uint64
	Model      string
}

// diskNamePattern matches the device-name patterns spec.md §2/C4 calls out:
// SATA (sdX), NVMe (nvmeXnY) and SD/MMC (mmcblkX) disks.
var diskNamePattern = regexp.MustCompile(`^(sd[a-z]+|nvme\d+n\d+|mmcblk\d+)$`)

// List enumerates candidate whole-disk devices, excluding the live-media
// device the installer itself is running from.
func List() ([]Disk, error) {
	block, err := ghw.Block()
	if err != nil {
		return nil, fmt.Errorf("enumerating block devices: %w", err)
	}

	liveDev, err := LiveMediaDevice()
	if err != nil {
		liveDev = ""
	}

	var out []Disk
	for _, d := range block.Disks {
		if !diskNamePattern.MatchString(d.Name) {
			continue
		}
		path := "/dev/" + d.Name
		if path == liveDev {
			continue
		}
		out = append(out, Disk{
			Name:       d.Name,
			DevicePath: path,
			SizeBytes:  d.SizeBytes,
			Model:      d.Model,
		})
	}
	return out, nil
}

// LiveMediaDevice returns the block device backing the running live medium,
// per spec.md §6: read the mount table via moby/sys/mountinfo (parsing
// /proc/mounts only if that fails), prefer the source mounted at
// /run/livekit/livemnt, otherwise fall back to the source mounted at /.
func LiveMediaDevice() (string, error) {
	mounts, err := mountinfo.GetMounts(nil)
	if err != nil {
		return fallbackParseProcMounts()
	}

	var rootSource string
	for _, m := range mounts {
		if m.Mountpoint == constants.LiveMediaMount {
			return m.Source, nil
		}
		if m.Mountpoint == "/" {
			rootSource = m.Source
		}
	}
	if rootSource == "" {
		return "", fmt.Errorf("could not determine live media device")
	}
	return rootSource, nil
}

// fallbackParseProcMounts is used when mountinfo.GetMounts fails (e.g. when
// /proc/self/mountinfo is unavailable but /proc/mounts still is).
func fallbackParseProcMounts() (string, error) {
	f, err := os.Open(constants.ProcMounts)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", constants.ProcMounts, err)
	}
	defer f.Close()

	var rootSource string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		source, mountpoint := fields[0], fields[1]
		if mountpoint == constants.LiveMediaMount {
			return source, nil
		}
		if mountpoint == "/" {
			rootSource = source
		}
	}
	if rootSource == "" {
		return "", fmt.Errorf("could not determine live media device from %s", constants.ProcMounts)
	}
	return rootSource, nil
}

// IsEFIHost reports whether the running host was booted via EFI, by
// checking for the /sys/firmware/efi directory (or its mips64 lefi
// equivalent).
func IsEFIHost() bool {
	if _, err := os.Stat(constants.EfiSysFsPath); err == nil {
		return true
	}
	_, err := os.Stat(constants.EfiSysFsPathMips)
	return err == nil
}
