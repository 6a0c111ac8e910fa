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

package constants

const (
	// Partition type GUIDs, per the GPT spec.
	EFISystemPartitionGUID = "C12A7328-F81F-11D2-BA4B-00A0C93EC93B"
	LinuxFilesystemGUID    = "0FC63DAF-8483-4772-8E79-3D69D8477DE4"

	// Filesystem identifiers used across the provisioner, the mounter and
	// the system configurator.
	FsExt4     = "ext4"
	FsVfat     = "vfat"
	FsFat32    = "fat32"
	FsSquashfs = "squashfs"
	FsBtrfs    = "btrfs"
	FsXfs      = "xfs"
	FsF2fs     = "f2fs"

	// EFI System Partition defaults.
	ESPSizeBytes = uint64(512 * 1024 * 1024)
	// MiB is the alignment unit used for every partition boundary.
	MiB = uint64(1024 * 1024)
	// MBRMaxSize is the largest disk an MBR target may be written to.
	MBRMaxSize = uint64(2) * 1024 * 1024 * 1024 * 1024 // 2 TiB

	// EfiSysFsPath is used to detect whether the host booted via EFI.
	EfiSysFsPath     = "/sys/firmware/efi"
	EfiSysFsPathMips = "/sys/firmware/lefi"

	// Live media mount points, used to exclude the running medium from the
	// installable device list.
	LiveMediaMount = "/run/livekit/livemnt"
	ProcMounts     = "/proc/mounts"
	LiveBaseLVName = "live-base"
	LiveRWLVName   = "live-rw"

	// Kernel filesystem bind-mount sandbox, in setup order. Teardown walks
	// this list in reverse.
	MountProc    = "proc"
	MountSys     = "sys"
	MountEfivars = "sys/firmware/efi/efivars"
	MountDev     = "dev"
	MountDevPts  = "dev/pts"
	MountDevShm  = "dev/shm"
	MountRunUdev = "run/udev"

	SwapfileName = "swapfile"
	SwapfileMode = 0o600
	// SwapMaxRecommendedGiB is the cap applied to the recommended swap size.
	SwapMaxRecommendedGiB = 32

	FstabPath      = "/etc/fstab"
	LocaltimePath  = "/etc/localtime"
	ZoneinfoDir    = "/usr/share/zoneinfo"
	AdjtimePath    = "/etc/adjtime"
	HostnamePath   = "/etc/hostname"
	LocaleConfPath = "/etc/locale.conf"
	PasswdPath     = "/etc/passwd"

	DefaultShell = "/bin/bash"
	// DefaultGroups are the supplementary groups the new user is added to.
	DefaultGroups = "audio,cdrom,video,wheel,plugdev"

	// UserAgent identifies every HTTP request this program makes.
	UserAgent = "deploykit"

	// GrubBootloaderID is the --bootloader-id grub-install registers in
	// the EFI boot menu.
	GrubBootloaderID = "AOSC OS"

	// Retry policy shared by the orchestrator's stage machine.
	StageRetryAttempts = 3
	StageRetryWait     = 10 // seconds
	SwapoffRetries     = 5
	SwapoffRetryWait   = 500 // milliseconds

	// PowerPC firmware marker read from /proc/cpuinfo.
	CPUInfoPath       = "/proc/cpuinfo"
	OPALFirmwareValue = "OPAL"

	// DBus identifiers for the RPC surface.
	BusName      = "io.aosc.Deploykit1"
	ObjectPath   = "/io/aosc/Deploykit1"
	InterfaceTag = "io.aosc.Deploykit1"
)

// Architectures recognized by the bootloader installer.
const (
	ArchAmd64       = "amd64"
	ArchArm64       = "arm64"
	ArchRiscv64     = "riscv64"
	ArchLoongarch64 = "loongarch64"
	ArchLoongson3   = "loongson3"
	ArchPowerPC     = "ppc64le"
)

// EFIForceExtraRemovableArches lists architectures whose grub-install call
// needs --force-extra-removable in addition to the EFI directory flag.
var EFIForceExtraRemovableArches = map[string]bool{
	ArchArm64:       true,
	ArchRiscv64:     true,
	ArchLoongarch64: true,
	ArchLoongson3:   true,
}

// TimezoneRemap silently redirects a handful of historical zoneinfo names
// to their current locations.
var TimezoneRemap = map[string]string{
	"Asia/Beijing": "Asia/Shanghai",
}
