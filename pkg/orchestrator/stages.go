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

package orchestrator

import (
	"path/filepath"

	"github.com/aosc-dev/deploykit/pkg/bootloader"
	"github.com/aosc-dev/deploykit/pkg/chroot"
	"github.com/aosc-dev/deploykit/pkg/constants"
	"github.com/aosc-dev/deploykit/pkg/devices"
	"github.com/aosc-dev/deploykit/pkg/download"
	"github.com/aosc-dev/deploykit/pkg/extractor"
	"github.com/aosc-dev/deploykit/pkg/mountmgr"
	"github.com/aosc-dev/deploykit/pkg/partitioner"
	"github.com/aosc-dev/deploykit/pkg/swapmgr"
	"github.com/aosc-dev/deploykit/pkg/sysconfig"
	"github.com/aosc-dev/deploykit/pkg/types"
)

// cancelCtx is a minimal types.Context backed by the orchestrator's own
// cancellation flag, so extractor/download cancellation reuses the same
// atomic bool the stage loop checks between stages.
type cancelCtx struct {
	o *Orchestrator
}

func (c cancelCtx) Done() <-chan struct{} {
	ch := make(chan struct{})
	if c.o.cancelled.Load() {
		close(ch)
	}
	return ch
}

func (c cancelCtx) Err() error {
	if c.o.cancelled.Load() {
		return types.NewTaggedError(types.TagInstallOrchestrator, "installation cancelled", nil, nil)
	}
	return nil
}

// runStage dispatches a single stage. Called under runStageWithRetry's
// retry loop.
func (o *Orchestrator) runStage(stage types.StageID) error {
	c := &o.components

	switch stage {
	case types.StageSetupPartition:
		return o.stageSetupPartition(c)
	case types.StageDownloadImage:
		return o.stageDownloadImage(c)
	case types.StageExtractImage:
		return o.stageExtractImage(c)
	case types.StageGenerateFstab:
		return o.stageGenerateFstab(c)
	case types.StageEnterChroot:
		return o.stageEnterChroot(c)
	case types.StageRunInitramfs:
		return o.stageRunInitramfs(c)
	case types.StageInstallBootloader:
		return o.stageInstallBootloader(c)
	case types.StageGenerateSSHKeys:
		return o.stageGenerateSSHKeys(c)
	case types.StageConfigureSystem:
		return o.stageConfigureSystem(c)
	case types.StageEscapeChroot:
		return o.stageEscapeChroot(c)
	case types.StageSwapOff:
		return o.stageSwapOff(c)
	case types.StageUnmountKernelFs:
		return o.stageUnmountKernelFs(c)
	case types.StageUnmountEfi:
		return o.stageUnmountEfi(c)
	case types.StageUnmountRoot:
		return o.stageUnmountRoot(c)
	default:
		return nil
	}
}

// stageSetupPartition provisions the target disk, then (per spec.md §4.9's
// SetupPartition contract) mounts root, creates the EFI mountpoint and
// mounts it, and creates the swapfile, all before anything is extracted
// into the target or the chroot is entered: 0->50 at mount done, 100 at
// swap done.
func (o *Orchestrator) stageSetupPartition(c *componentSet) error {
	c.part = partitioner.New(o.cfg)

	device := c.plan.RootPartition.ParentPath
	if device == "" {
		device = c.plan.RootPartition.DevicePath
	}

	c.isEFI = devices.IsEFIHost()

	if err := c.part.RightCombine(device, c.isEFI, c.plan.Arch); err != nil {
		return err
	}

	result, err := c.part.AutoProvision(device, c.isEFI, c.plan.Arch)
	if err != nil {
		return err
	}
	c.rootDev = &result.Root
	c.efiDev = result.EFI

	c.mounts = mountmgr.New(o.cfg, o.root)
	if err := c.mounts.MountRoot(c.rootDev.DevicePath, c.rootDev.FSType); err != nil {
		return err
	}
	if c.efiDev != nil {
		if err := c.mounts.MountEFI(c.efiDev.DevicePath); err != nil {
			return err
		}
	}
	o.percent.Store(50)

	if !c.plan.Swap.Disabled() {
		c.swap = swapmgr.New(o.cfg, filepath.Join(o.root, constants.SwapfileName))
		if err := c.swap.Create(c.plan.Swap); err != nil {
			return err
		}
	}
	o.percent.Store(100)

	return nil
}

func (o *Orchestrator) stageDownloadImage(c *componentSet) error {
	c.dl = download.New(o.cfg)

	path, err := c.dl.Fetch(c.plan.Download, func(p download.Progress) bool {
		if p.BytesTotal > 0 {
			o.percent.Store(float64(p.BytesComplete) / float64(p.BytesTotal) * 100)
		}
		o.kibs.Store(p.ThroughputKiBs)
		return o.cancelled.Load()
	})
	if err != nil {
		return err
	}
	c.artifactPath = path
	return nil
}

// stageExtractImage consumes the DownloadedArtifact path stageDownloadImage
// produced rather than fetching it again, per spec.md §4.9's "ExtractImage
// consumes that artifact" contract.
func (o *Orchestrator) stageExtractImage(c *componentSet) error {
	c.ex = extractor.New(o.cfg)
	ctx := cancelCtx{o: o}

	if c.plan.Download.Kind == types.DownloadLocalDir {
		return c.ex.ExtractRsync(ctx, c.artifactPath, o.root, func(p extractor.Progress) {
			o.percent.Store(p.Percent)
		})
	}

	deleteOnSuccess := c.plan.Download.Kind == types.DownloadHTTP
	return c.ex.ExtractSquashfs(ctx, c.artifactPath, o.root, deleteOnSuccess, func(p extractor.Progress) {
		o.percent.Store(p.Percent)
		o.kibs.Store(p.ThroughputKiBs)
	})
}

func (o *Orchestrator) stageGenerateFstab(c *componentSet) error {
	c.sys = sysconfig.New(o.cfg)

	swapPath := ""
	if !c.plan.Swap.Disabled() {
		swapPath = "/" + constants.SwapfileName
	}

	contents, err := c.sys.GenerateFstab(c.rootDev, c.efiDev, swapPath)
	if err != nil {
		return err
	}
	return c.sys.WriteFstab(o.root, contents)
}

// stageEnterChroot runs the kernel-fs bind-mount sequence, then chroots;
// root and EFI are already mounted by stageSetupPartition.
func (o *Orchestrator) stageEnterChroot(c *componentSet) error {
	if err := c.mounts.SetupKernelFS(); err != nil {
		return err
	}

	sentinel, err := chroot.Acquire()
	if err != nil {
		return err
	}
	if err := sentinel.Enter(o.root); err != nil {
		return err
	}
	c.sentinel = sentinel
	return nil
}

func (o *Orchestrator) stageRunInitramfs(c *componentSet) error {
	_, err := o.cfg.Runner.Run("update-initramfs", "-u")
	return err
}

func (o *Orchestrator) stageInstallBootloader(c *componentSet) error {
	c.boot = bootloader.New(o.cfg)
	device := c.rootDev.ParentPath
	return c.boot.Install(device, c.isEFI, c.plan.Arch)
}

func (o *Orchestrator) stageGenerateSSHKeys(c *componentSet) error {
	_, err := o.cfg.Runner.Run("ssh-keygen", "-A")
	return err
}

func (o *Orchestrator) stageConfigureSystem(c *componentSet) error {
	if err := c.sys.SetTimezone(c.plan.Timezone); err != nil {
		return err
	}
	if err := c.sys.SetHwclock(c.plan.RTCAsLocalTime); err != nil {
		return err
	}
	if err := c.sys.SetHostname(c.plan.Hostname); err != nil {
		return err
	}
	if err := c.sys.SetLocale(c.plan.Locale); err != nil {
		return err
	}
	if err := c.sys.AddUser(c.plan.User); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) stageEscapeChroot(c *componentSet) error {
	if c.sentinel == nil {
		return nil
	}
	if err := c.sentinel.Escape(); err != nil {
		return err
	}
	_ = c.sentinel.Close()
	c.sentinel = nil
	return nil
}

func (o *Orchestrator) stageSwapOff(c *componentSet) error {
	if c.swap == nil {
		return nil
	}
	err := c.swap.Disable()
	c.swap = nil
	return err
}

func (o *Orchestrator) stageUnmountKernelFs(c *componentSet) error {
	// Teardown unwinds everything in reverse, kernel-fs binds included;
	// the two subsequent stages exist to give clients distinguishable
	// stage ids even though one Teardown call satisfies all three.
	return nil
}

func (o *Orchestrator) stageUnmountEfi(c *componentSet) error {
	return nil
}

func (o *Orchestrator) stageUnmountRoot(c *componentSet) error {
	if c.mounts == nil {
		return nil
	}
	err := c.mounts.Teardown()
	c.mounts = nil
	return err
}
