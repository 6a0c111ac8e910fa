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

// Package bootloader is the bootloader installer (C10): it dispatches
// grub-install per architecture and firmware mode, then regenerates
// grub.cfg.
package bootloader

import (
	"bufio"
	"strings"

	"github.com/aosc-dev/deploykit/pkg/constants"
	"github.com/aosc-dev/deploykit/pkg/types"
)

// Installer is the concrete implementation of C10.
type Installer struct {
	cfg types.Config
}

// New returns an Installer.
func New(cfg types.Config) *Installer {
	return &Installer{cfg: cfg}
}

// Install runs grub-install against device for the given arch and firmware
// mode, then regenerates grub.cfg with grub-mkconfig.
func (b *Installer) Install(device string, isEFIHost bool, arch string) error {
	if arch == constants.ArchPowerPC {
		return b.installOPAL(device)
	}

	args, err := b.grubInstallArgs(device, isEFIHost, arch)
	if err != nil {
		return err
	}

	if _, err := b.cfg.Runner.Run("grub-install", args...); err != nil {
		return types.NewTaggedError(types.TagGrubRunCommand, "grub-install", device, err)
	}

	return b.mkconfig()
}

// grubInstallArgs builds the grub-install argument list per spec.md §4.5's
// per-architecture dispatch table.
func (b *Installer) grubInstallArgs(device string, isEFIHost bool, arch string) ([]string, error) {
	if !isEFIHost {
		return []string{"--target=i386-pc", device}, nil
	}

	switch arch {
	case constants.ArchAmd64:
		return []string{"--target=x86_64-efi", "--efi-directory=/efi", "--bootloader-id=" + constants.GrubBootloaderID}, nil
	case constants.ArchArm64, constants.ArchRiscv64, constants.ArchLoongarch64, constants.ArchLoongson3:
		args := []string{"--target=" + efiTarget(arch), "--efi-directory=/efi", "--bootloader-id=" + constants.GrubBootloaderID}
		if _, force := constants.EFIForceExtraRemovableArches[arch]; force {
			args = append(args, "--force-extra-removable")
		}
		return args, nil
	default:
		return []string{"--target=x86_64-efi", "--efi-directory=/efi", "--bootloader-id=" + constants.GrubBootloaderID}, nil
	}
}

func efiTarget(arch string) string {
	switch arch {
	case constants.ArchArm64:
		return "arm64-efi"
	case constants.ArchRiscv64:
		return "riscv64-efi"
	case constants.ArchLoongarch64, constants.ArchLoongson3:
		return "loongarch64-efi"
	default:
		return "x86_64-efi"
	}
}

func (b *Installer) mkconfig() error {
	if _, err := b.cfg.Runner.Run("grub-mkconfig", "-o", "/boot/grub/grub.cfg"); err != nil {
		return types.NewTaggedError(types.TagGrubRunCommand, "grub-mkconfig", "", err)
	}
	return nil
}

// installOPAL detects whether the PowerPC host firmware is OPAL (as opposed
// to the older IBM PowerVM hypervisor) by reading /proc/cpuinfo's
// "firmware" line. OPAL's petitboot reads grub.cfg directly, so grub-install
// itself is skipped there; every other PowerPC firmware still needs the
// ieee1275 target installed.
func (b *Installer) installOPAL(device string) error {
	f, err := b.cfg.FS.Open(constants.CPUInfoPath)
	if err != nil {
		return types.NewTaggedError(types.TagGrubOpenCPUInfo, "opening cpuinfo", device, err)
	}
	defer f.Close()

	isOPAL := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "firmware") && strings.Contains(line, constants.OPALFirmwareValue) {
			isOPAL = true
			break
		}
	}

	if !isOPAL {
		args := []string{"--target=powerpc-ieee1275", "--bootloader-id=" + constants.GrubBootloaderID, device}
		if _, err := b.cfg.Runner.Run("grub-install", args...); err != nil {
			return types.NewTaggedError(types.TagGrubRunCommand, "grub-install", device, err)
		}
	}

	return b.mkconfig()
}
