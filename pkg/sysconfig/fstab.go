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

// Package sysconfig is the system configurator (C9): fstab, timezone,
// hwclock, hostname, locale, and user account setup inside the freshly
// installed root.
package sysconfig

import (
	"fmt"
	"strings"

	"github.com/aosc-dev/deploykit/pkg/constants"
	"github.com/aosc-dev/deploykit/pkg/types"
)

// fstabEntry is one line of the generated /etc/fstab.
type fstabEntry struct {
	source  string
	target  string
	fstype  string
	options string
	dump    int
	pass    int
}

func (e fstabEntry) String() string {
	return fmt.Sprintf("%s\t%s\t%s\t%s\t%d\t%d", e.source, e.target, e.fstype, e.options, e.dump, e.pass)
}

// GenerateFstab builds the fstab contents for root, an optional EFI
// partition, and an optional swapfile, using PARTUUID= sourcing for FAT
// partitions and UUID= for everything else, with the standard pass-number
// convention: root is pass 1, everything else (including the ESP, by fstab
// convention) is pass 2, and swap is pass 0.
func (c *Configurator) GenerateFstab(root, efi *types.Partition, swapPath string) (string, error) {
	var lines []string

	rootSrc, err := c.partitionSource(*root)
	if err != nil {
		return "", types.NewTaggedError(types.TagConfigureFstab, "resolving root source", root.DevicePath, err)
	}
	lines = append(lines, fstabEntry{
		source:  rootSrc,
		target:  "/",
		fstype:  root.FSType,
		options: fsOptions(root.FSType),
		dump:    0,
		pass:    1,
	}.String())

	if efi != nil {
		efiSrc, err := c.partitionSource(*efi)
		if err != nil {
			return "", types.NewTaggedError(types.TagConfigureFstab, "resolving efi source", efi.DevicePath, err)
		}
		lines = append(lines, fstabEntry{
			source:  efiSrc,
			target:  "/efi",
			fstype:  efi.FSType,
			options: fsOptions(efi.FSType),
			dump:    0,
			pass:    2,
		}.String())
	}

	if swapPath != "" {
		lines = append(lines, fstabEntry{
			source:  swapPath,
			target:  "none",
			fstype:  "swap",
			options: "sw",
			dump:    0,
			pass:    0,
		}.String())
	}

	return strings.Join(lines, "\n") + "\n", nil
}

// partitionSource resolves a partition to its UUID= or PARTUUID= fstab
// source, reading the identifier via blkid rather than assuming a path the
// block device might not have. FAT partitions use PARTUUID= because FAT's
// own volume-id "UUID" can collide across partitions; every other
// filesystem uses its real UUID.
func (c *Configurator) partitionSource(part types.Partition) (string, error) {
	if isFAT(part.FSType) {
		out, err := c.cfg.Runner.Run("blkid", "-s", "PARTUUID", "-o", "value", part.DevicePath)
		if err != nil {
			return "", err
		}
		id := strings.TrimSpace(string(out))
		if id == "" {
			return "", fmt.Errorf("no PARTUUID reported for %s", part.DevicePath)
		}
		return "PARTUUID=" + id, nil
	}

	out, err := c.cfg.Runner.Run("blkid", "-s", "UUID", "-o", "value", part.DevicePath)
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		return "", fmt.Errorf("no UUID reported for %s", part.DevicePath)
	}
	return "UUID=" + id, nil
}

func isFAT(fsType string) bool {
	return fsType == constants.FsVfat || fsType == constants.FsFat32
}

// fsOptions returns the mount options fstab should carry for a given
// filesystem type.
func fsOptions(fsType string) string {
	switch fsType {
	case constants.FsVfat, constants.FsFat32:
		return "defaults,nofail"
	default:
		return "defaults"
	}
}

// WriteFstab writes contents to root's /etc/fstab.
func (c *Configurator) WriteFstab(rootPath, contents string) error {
	path := rootPath + constants.FstabPath
	if err := c.cfg.FS.WriteFile(path, []byte(contents), 0o644); err != nil {
		return types.NewTaggedError(types.TagConfigureFstab, "writing fstab", path, err)
	}
	return nil
}
