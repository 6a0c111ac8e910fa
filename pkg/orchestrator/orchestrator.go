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

// Package orchestrator is the installation orchestrator (C11): it drives
// the linear 15-stage pipeline, retries transient stage failures, and runs
// the emergency-unmount sequence on every exit path.
package orchestrator

import (
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/hashicorp/go-multierror"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/atomic"

	"github.com/aosc-dev/deploykit/pkg/bootloader"
	"github.com/aosc-dev/deploykit/pkg/chroot"
	"github.com/aosc-dev/deploykit/pkg/constants"
	"github.com/aosc-dev/deploykit/pkg/download"
	"github.com/aosc-dev/deploykit/pkg/extractor"
	"github.com/aosc-dev/deploykit/pkg/mountmgr"
	"github.com/aosc-dev/deploykit/pkg/partitioner"
	"github.com/aosc-dev/deploykit/pkg/swapmgr"
	"github.com/aosc-dev/deploykit/pkg/sysconfig"
	"github.com/aosc-dev/deploykit/pkg/types"
)

// Orchestrator drives the full installation pipeline described in
// spec.md §5, holding every component collaborator it needs to call into.
type Orchestrator struct {
	cfg  types.Config
	root string

	lock *flock.Flock

	cancelled atomic.Bool
	stage     atomic.Int32
	percent   atomic.Float64
	kibs      atomic.Float64

	mu      sync.Mutex
	kind    types.ProgressKind
	lastErr *types.TaggedError

	// components holds the per-install collaborators; only the single
	// install goroutine the in-flight flock guarantees ever touches it.
	components componentSet
}

// New returns an Orchestrator rooted at root (the mountpoint the install
// target will be bind-mounted under) using lockPath for the single-in-flight
// guard.
func New(cfg types.Config, root, lockPath string) *Orchestrator {
	return &Orchestrator{
		cfg:  cfg,
		root: root,
		lock: flock.New(lockPath),
	}
}

// Progress returns a snapshot of the current ProgressStatus.
func (o *Orchestrator) Progress() types.ProgressStatus {
	o.mu.Lock()
	kind := o.kind
	lastErr := o.lastErr
	o.mu.Unlock()

	return types.ProgressStatus{
		Kind:           kind,
		Stage:          types.StageID(o.stage.Load()),
		Percent:        int(o.percent.Load()),
		ThroughputKiBs: o.kibs.Load(),
		Err:            lastErr,
	}
}

// ResetProgress clears the progress state back to Pending, used once a
// client has consumed a terminal Error or Finish status.
func (o *Orchestrator) ResetProgress() {
	o.mu.Lock()
	o.kind = types.ProgressPending
	o.lastErr = nil
	o.mu.Unlock()
	o.stage.Store(int32(types.StageSetupPartition))
	o.percent.Store(0)
	o.kibs.Store(0)
}

// Cancel requests cancellation; the running install observes it at the next
// stage boundary or, inside a chunked operation, the next chunk boundary.
func (o *Orchestrator) Cancel() {
	o.cancelled.Store(true)
}

// Start begins installation under plan, refusing to run a second
// concurrent install via an advisory file lock. The install runs on its own
// goroutine; Start returns immediately once that goroutine is launched.
func (o *Orchestrator) Start(plan types.InstallPlan) error {
	if err := plan.Sanitize(); err != nil {
		return err
	}

	locked, err := o.lock.TryLock()
	if err != nil {
		return types.NewTaggedError(types.TagInstallOrchestrator, "acquiring install lock", nil, err)
	}
	if !locked {
		return types.NewTaggedError(types.TagInstallOrchestrator, "an installation is already in progress", nil, nil)
	}

	// The flock handle is shared by every Start call on this Orchestrator,
	// and re-locking a handle that already holds the lock succeeds, so an
	// install already running in this process is detected here instead.
	o.mu.Lock()
	if o.kind == types.ProgressWorking {
		o.mu.Unlock()
		return types.NewTaggedError(types.TagInstallOrchestrator, "an installation is already in progress", nil, nil)
	}
	o.kind = types.ProgressWorking
	o.lastErr = nil
	o.mu.Unlock()
	o.cancelled.Store(false)
	o.components = componentSet{plan: plan}

	go func() {
		defer func() { _ = o.lock.Unlock() }()
		o.finish(o.runWithRecover())
	}()

	return nil
}

// runWithRecover wraps the stage pipeline in a panics.Catcher so a panic in
// any stage still surfaces as a TaggedError rather than crashing the
// process; run's own deferred emergencyUnmount still executes as the panic
// unwinds through it.
func (o *Orchestrator) runWithRecover() (err error) {
	var catcher panics.Catcher
	catcher.Try(func() {
		err = o.run()
	})
	if recovered := catcher.Recovered(); recovered != nil {
		return types.NewTaggedError(types.TagInstallOrchestrator, "panic during installation", nil, recovered.AsError())
	}
	return err
}

func (o *Orchestrator) finish(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.kind = types.ProgressError
		if te, ok := err.(*types.TaggedError); ok {
			o.lastErr = te
		} else {
			o.lastErr = types.NewTaggedError(types.TagInstallOrchestrator, "installation failed", nil, err)
		}
		return
	}
	o.kind = types.ProgressFinish
	o.stage.Store(int32(types.StageDone))
	o.percent.Store(100)
}

// run executes every stage in order, retrying each up to
// constants.StageRetryAttempts times with constants.StageRetryWait seconds
// between attempts, and runs the emergency-unmount sequence before
// returning regardless of outcome.
func (o *Orchestrator) run() error {
	defer o.emergencyUnmount()

	for _, stage := range types.OrderedStages() {
		if stage == types.StageDone {
			continue
		}
		if o.cancelled.Load() {
			return types.NewTaggedError(types.TagInstallOrchestrator, "installation cancelled", stage, nil)
		}

		o.stage.Store(int32(stage))
		o.percent.Store(0)

		if hook := o.cfg.QuirkHook; hook != nil {
			if err := hook(stage); err != nil {
				return types.NewTaggedError(types.TagInstallOrchestrator, "quirk hook failed", stage, err)
			}
		}

		if err := o.runStageWithRetry(stage); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runStageWithRetry(stage types.StageID) error {
	var lastErr error
	for attempt := 0; attempt < constants.StageRetryAttempts; attempt++ {
		if attempt > 0 {
			o.cfg.Logger.Warnf("retrying stage %s (attempt %d/%d): %v", stage, attempt+1, constants.StageRetryAttempts, lastErr)
			time.Sleep(time.Duration(constants.StageRetryWait) * time.Second)
			// A failed mount/unmount stage can leave the target half
			// mounted; a recursive unmount clears that before retrying.
			_, _ = o.cfg.Runner.Run("umount", "-R", o.root)
		}

		lastErr = o.runStage(stage)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

// emergencyUnmount runs on every exit path (success, failure, cancellation,
// panic): escape any active chroot, disable swap, then unwind every mount
// in reverse order. Failures are aggregated rather than abandoning the
// remaining steps, since a stuck bind-mount shouldn't block reclaiming the
// kernel filesystems.
func (o *Orchestrator) emergencyUnmount() {
	var merr *multierror.Error
	c := &o.components

	if c.sentinel != nil {
		if err := c.sentinel.Escape(); err != nil {
			merr = multierror.Append(merr, err)
		}
		_ = c.sentinel.Close()
		c.sentinel = nil
	}

	if c.swap != nil {
		if err := c.swap.Disable(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	if c.mounts != nil {
		if err := c.mounts.Teardown(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	if err := merr.ErrorOrNil(); err != nil {
		o.cfg.Logger.Errorf("emergency unmount encountered errors: %v", err)
	}
}

// componentSet is threaded per-install state the stage functions share;
// declared alongside Orchestrator so runStage (in stages.go) can reach them.
type componentSet struct {
	sentinel *chroot.Sentinel
	mounts   *mountmgr.Manager
	swap     *swapmgr.Manager
	part     *partitioner.Provisioner
	dl       *download.Downloader
	ex       *extractor.Extractor
	sys      *sysconfig.Configurator
	boot     *bootloader.Installer
	plan         types.InstallPlan
	rootDev      *types.Partition
	efiDev       *types.Partition
	isEFI        bool
	artifactPath string
}
