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

// Package partitioner is the partition provisioning engine (C5): it wipes
// sector 0, writes a fresh GPT or MBR header, lays out the EFI (if any) and
// root partitions with 1 MiB alignment, rereads the kernel partition table,
// and formats the resulting children.
package partitioner

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/diskfs/go-diskfs/partition/mbr"
	"github.com/google/uuid"

	"github.com/aosc-dev/deploykit/pkg/constants"
	"github.com/aosc-dev/deploykit/pkg/types"
)

// Provisioner is the concrete implementation of C5.
type Provisioner struct {
	cfg types.Config
}

// New returns a Provisioner using cfg's Logger/Runner for diagnostics and
// for mkfs/lvs/dmsetup child-process invocations.
func New(cfg types.Config) *Provisioner {
	return &Provisioner{cfg: cfg}
}

// AutoProvisionResult mirrors types.AutoPartitionResult but keeps the raw
// device paths the provisioner itself assigned.
type AutoProvisionResult struct {
	EFI  *types.Partition
	Root types.Partition
}

// AutoProvision tears down any LVM owned by device, then produces a fresh
// GPT (EFI host) or MBR (BIOS host) layout with an EFI system partition (if
// applicable) and a root partition spanning the remaining space.
func (p *Provisioner) AutoProvision(device string, isEFIHost bool, arch string) (*AutoProvisionResult, error) {
	if err := p.teardownLVM(device); err != nil {
		return nil, types.NewTaggedError(types.TagPartitionCreate, "tearing down existing LVM", device, err)
	}

	sectorSize, err := SectorSize(device)
	if err != nil {
		return nil, types.NewTaggedError(types.TagPartitionOpenDevice, "reading logical sector size", device, err)
	}

	diskSize, err := DeviceSize(device)
	if err != nil {
		return nil, types.NewTaggedError(types.TagPartitionOpenDevice, "reading device size", device, err)
	}

	if isEFIHost && efiCapable(arch) {
		return p.layoutGPT(device, sectorSize, diskSize)
	}
	return p.layoutMBR(device, sectorSize, diskSize)
}

func efiCapable(arch string) bool {
	// PowerPC only ever boots via OPAL/IEEE1275 firmware and is never
	// partitioned with an ESP, regardless of host firmware mode.
	return arch != constants.ArchPowerPC
}

// layoutGPT implements the EFI host algorithm from spec.md §4.1: zero
// sector 0, build a fresh GPT with a random disk GUID, place the EFI
// partition first (LBA 34, 1 MiB aligned, 512 MiB), then root spanning the
// rest down to last_usable_lba rounded to a 1 MiB boundary minus one
// sector. The "minus the partition-table tail, or not" ambiguity
// spec.md §9 documents is resolved here by rounding last_usable_lba down to
// the 1 MiB boundary and subtracting one, which already accounts for the
// secondary header's 33-LBA reservation since last_usable_lba itself is
// computed below that reservation.
func (p *Provisioner) layoutGPT(device string, sectorSize uint64, diskSize uint64) (*AutoProvisionResult, error) {
	if err := ZeroFirstSector(device, sectorSize); err != nil {
		return nil, types.NewTaggedError(types.TagPartitionCreate, "zeroing sector 0", device, err)
	}

	alignLBA := constants.MiB / sectorSize
	firstLBA := alignLBA
	totalLBAs := diskSize / sectorSize
	// 33 LBAs reserved for the secondary GPT header + array at the tail.
	lastUsableLBA := totalLBAs - 33 - 1
	lastUsableLBA = (lastUsableLBA / alignLBA) * alignLBA
	lastUsableLBA--

	efiSizeLBA := constants.ESPSizeBytes / sectorSize
	efiStart := firstLBA
	efiEnd := efiStart + efiSizeLBA - 1
	// Round the EFI partition end up to the next alignment boundary so the
	// root partition that follows starts aligned too.
	efiEnd = ((efiEnd / alignLBA) + 1) * alignLBA - 1

	rootStart := efiEnd + 1
	rootEnd := lastUsableLBA

	diskGUID := uuid.New().String()
	efiPartGUID := uuid.New().String()
	rootPartGUID := uuid.New().String()

	table := &gpt.Table{
		ProtectiveMBR:      true,
		GUID:               strings.ToUpper(diskGUID),
		LogicalSectorSize:  int(sectorSize),
		PhysicalSectorSize: int(sectorSize),
		Partitions: []*gpt.Partition{
			{
				Start: efiStart,
				End:   efiEnd,
				Type:  gpt.EFISystemPartition,
				Name:  "",
				GUID:  strings.ToUpper(efiPartGUID),
			},
			{
				Start: rootStart,
				End:   rootEnd,
				Type:  gpt.LinuxFilesystem,
				Name:  "",
				GUID:  strings.ToUpper(rootPartGUID),
			},
		},
	}

	if err := writeTable(device, table); err != nil {
		return nil, types.NewTaggedError(types.TagPartitionCreate, "writing GPT", device, err)
	}

	if err := RereadPartitionTable(device); err != nil {
		return nil, types.NewTaggedError(types.TagPartitionCreate, "rereading partition table", device, err)
	}

	children, err := enumerateChildren(device, 2)
	if err != nil {
		return nil, types.NewTaggedError(types.TagPartitionOpenDevice, "enumerating children", device, err)
	}

	efiPart := &types.Partition{
		DevicePath: children[0],
		ParentPath: device,
		FSType:     constants.FsVfat,
		SizeBytes:  (efiEnd - efiStart + 1) * sectorSize,
	}
	rootPart := types.Partition{
		DevicePath: children[1],
		ParentPath: device,
		FSType:     constants.FsExt4,
		SizeBytes:  (rootEnd - rootStart + 1) * sectorSize,
	}

	if err := p.Format(*efiPart); err != nil {
		return nil, err
	}
	if err := p.Format(rootPart); err != nil {
		return nil, err
	}

	return &AutoProvisionResult{EFI: efiPart, Root: rootPart}, nil
}

// layoutMBR implements the BIOS host algorithm: a fresh MBR disk signature
// and one primary partition, type 0x83, boot flag clear, spanning from the
// optimal starting LBA to one sector before the last 1 MiB boundary that
// leaves the disk's final 34 sectors unused.
func (p *Provisioner) layoutMBR(device string, sectorSize uint64, diskSize uint64) (*AutoProvisionResult, error) {
	if diskSize >= constants.MBRMaxSize {
		return nil, types.NewTaggedError(types.TagPartitionMBRMaxSize, "disk too large for MBR", device, nil)
	}

	if err := ZeroFirstSector(device, sectorSize); err != nil {
		return nil, types.NewTaggedError(types.TagPartitionCreate, "zeroing sector 0", device, err)
	}

	alignLBA := constants.MiB / sectorSize
	totalLBAs := diskSize / sectorSize
	start := alignLBA
	end := ((totalLBAs-33-1)/alignLBA)*alignLBA - 1

	table := &mbr.Table{
		LogicalSectorSize:  int(sectorSize),
		PhysicalSectorSize: int(sectorSize),
		Partitions: []*mbr.Partition{
			{
				Bootable: false,
				Type:     mbr.Linux,
				Start:    uint32(start),
				Size:     uint32(end - start + 1),
			},
		},
	}

	if err := writeTable(device, table); err != nil {
		return nil, types.NewTaggedError(types.TagPartitionCreate, "writing MBR", device, err)
	}

	if err := RereadPartitionTable(device); err != nil {
		return nil, types.NewTaggedError(types.TagPartitionCreate, "rereading partition table", device, err)
	}

	children, err := enumerateChildren(device, 1)
	if err != nil {
		return nil, types.NewTaggedError(types.TagPartitionOpenDevice, "enumerating children", device, err)
	}

	rootPart := types.Partition{
		DevicePath: children[0],
		ParentPath: device,
		FSType:     constants.FsExt4,
		SizeBytes:  (end - start + 1) * sectorSize,
	}

	if err := p.Format(rootPart); err != nil {
		return nil, err
	}

	return &AutoProvisionResult{Root: rootPart}, nil
}

// Format dispatches on partition.FSType to the matching mkfs invocation:
// `mkfs.ext4 -Fq`, `mkfs.vfat -F32` (fat32 is just vfat's alias, so it maps
// to the same real binary), else `mkfs.<fs> -f`. mkfs.* is an external
// collaborator per spec.md §1.
func (p *Provisioner) Format(part types.Partition) error {
	cmd := "mkfs." + part.FSType
	var args []string
	switch part.FSType {
	case constants.FsExt4:
		args = []string{"-Fq", part.DevicePath}
	case constants.FsVfat, constants.FsFat32:
		cmd = "mkfs." + constants.FsVfat
		args = []string{"-F32", part.DevicePath}
	default:
		args = []string{"-f", part.DevicePath}
	}

	if _, err := p.cfg.Runner.Run(cmd, args...); err != nil {
		return types.NewTaggedError(types.TagPartitionFormat, fmt.Sprintf("formatting %s as %s", part.DevicePath, part.FSType), part.DevicePath, err)
	}
	return nil
}

// RightCombine probes the on-disk partition-table type and fails with
// WrongCombo if it doesn't match the host's boot firmware mode, on
// architectures where both GPT+BIOS and MBR+EFI are nonsensical
// combinations. PowerPC, which never uses GPT/MBR+EFI semantics the same
// way, skips the check.
func (p *Provisioner) RightCombine(device string, isEFIHost bool, arch string) error {
	if arch == constants.ArchPowerPC {
		return nil
	}

	isGPT, err := probeIsGPT(device)
	if err != nil {
		return types.NewTaggedError(types.TagPartitionUnsupTable, "probing partition table type", device, err)
	}

	if isEFIHost && !isGPT {
		return types.NewTaggedError(types.TagPartitionWrongCombo, "EFI host with MBR table", device, nil)
	}
	if !isEFIHost && isGPT {
		return types.NewTaggedError(types.TagPartitionWrongCombo, "BIOS host with GPT table", device, nil)
	}
	return nil
}

// teardownLVM deactivates every LVM logical volume on device, skipping the
// live-media volume names, so auto-partitioning is idempotent even when run
// against an already-provisioned disk (spec.md §9).
func (p *Provisioner) teardownLVM(device string) error {
	out, err := p.cfg.Runner.Run("lvs", "--noheadings", "-o", "lv_name,devices")
	if err != nil {
		// No LVM tooling or no volume groups: nothing to tear down.
		return nil
	}

	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		name := fields[0]
		if name == constants.LiveBaseLVName || name == constants.LiveRWLVName {
			continue
		}
		if len(fields) > 1 && !strings.Contains(fields[1], filepath.Base(device)) {
			continue
		}
		if _, err := p.cfg.Runner.Run("dmsetup", "remove", name); err != nil {
			p.cfg.Logger.Warnf("failed removing LVM mapping %s: %v", name, err)
		}
	}
	return nil
}

// probeIsGPT reads the 2nd sector's GPT signature ("EFI PART") to decide
// the on-disk table type without depending on userspace partitioning tools.
func probeIsGPT(device string) (bool, error) {
	f, err := os.Open(device)
	if err != nil {
		return false, err
	}
	defer f.Close()

	ss, err := SectorSize(device)
	if err != nil || ss == 0 {
		ss = 512
	}

	buf := make([]byte, 8)
	if _, err := f.ReadAt(buf, int64(ss)); err != nil {
		return false, err
	}
	return string(buf) == "EFI PART", nil
}

// enumerateChildren waits for udev to create want device nodes for device's
// partitions after a reread, then returns their paths in partition-index
// order. Per spec.md §9: do not rely on the paths the writer synthesized,
// rediscover them from the kernel.
func enumerateChildren(device string, want int) ([]string, error) {
	base := filepath.Base(device)
	prefix := device
	if len(base) > 0 {
		last := base[len(base)-1]
		if last >= '0' && last <= '9' {
			prefix = device + "p"
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	var children []string
	for time.Now().Before(deadline) {
		children = children[:0]
		ok := true
		for i := 1; i <= want; i++ {
			path := prefix + strconv.Itoa(i)
			if _, err := os.Stat(path); err != nil {
				ok = false
				break
			}
			children = append(children, path)
		}
		if ok {
			return children, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil, fmt.Errorf("timed out waiting for %d partition device nodes under %s", want, device)
}

// writeTable opens device for writing and applies table, fsyncing before
// returning so the bytes are durable before the reread ioctl runs.
func writeTable(device string, table interface {
	Write(f *os.File, size int64) error
}) error {
	f, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	size, err := deviceFileSize(f)
	if err != nil {
		return err
	}

	if err := table.Write(f, size); err != nil {
		return err
	}
	return f.Sync()
}

func deviceFileSize(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if info.Size() > 0 {
		return info.Size(), nil
	}
	// Block devices report a zero regular-file size; seek to the end to
	// discover the real capacity instead.
	size, err := f.Seek(0, os.SEEK_END)
	if err != nil {
		return 0, err
	}
	if _, err := f.Seek(0, os.SEEK_SET); err != nil {
		return 0, err
	}
	return size, nil
}

// udevSettle waits for the udev event queue to settle. Best
// effort: not every environment running these tests has udevadm.
func udevSettle() {
	_ = exec.Command("udevadm", "settle", "--timeout=10").Run()
}
