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

package types

// StageID is the finite ordered set of installation stages.
type StageID int

const (
	StageSetupPartition StageID = iota
	StageDownloadImage
	StageExtractImage
	StageGenerateFstab
	StageEnterChroot
	StageRunInitramfs
	StageInstallBootloader
	StageGenerateSSHKeys
	StageConfigureSystem
	StageEscapeChroot
	StageSwapOff
	StageUnmountKernelFs
	StageUnmountEfi
	StageUnmountRoot
	StageDone
)

var stageNames = map[StageID]string{
	StageSetupPartition:     "SetupPartition",
	StageDownloadImage:      "DownloadImage",
	StageExtractImage:       "ExtractImage",
	StageGenerateFstab:      "GenerateFstab",
	StageEnterChroot:        "EnterChroot",
	StageRunInitramfs:       "RunInitramfs",
	StageInstallBootloader:  "InstallBootloader",
	StageGenerateSSHKeys:    "GenerateSshKeys",
	StageConfigureSystem:    "ConfigureSystem",
	StageEscapeChroot:       "EscapeChroot",
	StageSwapOff:            "SwapOff",
	StageUnmountKernelFs:    "UnmountKernelFs",
	StageUnmountEfi:         "UnmountEfi",
	StageUnmountRoot:        "UnmountRoot",
	StageDone:               "Done",
}

func (s StageID) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return "Unknown"
}

// orderedStages is the linear transition order the orchestrator steps
// through.
var orderedStages = []StageID{
	StageSetupPartition,
	StageDownloadImage,
	StageExtractImage,
	StageGenerateFstab,
	StageEnterChroot,
	StageRunInitramfs,
	StageInstallBootloader,
	StageGenerateSSHKeys,
	StageConfigureSystem,
	StageEscapeChroot,
	StageSwapOff,
	StageUnmountKernelFs,
	StageUnmountEfi,
	StageUnmountRoot,
	StageDone,
}

// OrderedStages returns the linear stage sequence.
func OrderedStages() []StageID {
	out := make([]StageID, len(orderedStages))
	copy(out, orderedStages)
	return out
}

// ProgressSlot maps a stage to the client-visible progress slot (1..8), per
// spec.md §4.9's stage-to-progress mapping table.
func (s StageID) ProgressSlot() int {
	switch s {
	case StageSetupPartition:
		return 1
	case StageDownloadImage:
		return 2
	case StageExtractImage:
		return 3
	case StageGenerateFstab, StageEnterChroot:
		return 4
	case StageRunInitramfs:
		return 5
	case StageInstallBootloader:
		return 6
	case StageGenerateSSHKeys:
		return 7
	default:
		return 8
	}
}

// ProgressKind discriminates the ProgressStatus union.
type ProgressKind int

const (
	ProgressPending ProgressKind = iota
	ProgressWorking
	ProgressError
	ProgressFinish
)

// ProgressStatus is the value returned by get_progress. Counters backing it
// are atomic; the tag itself is guarded by a coarse mutex (see
// pkg/orchestrator).
type ProgressStatus struct {
	Kind             ProgressKind
	Stage            StageID
	Percent          int
	ThroughputKiBs   float64
	Err              *TaggedError
}

// AutoPartitionKind discriminates the AutoPartitionProgress union.
type AutoPartitionKind int

const (
	AutoPartitionPending AutoPartitionKind = iota
	AutoPartitionWorking
	AutoPartitionFinish
)

// AutoPartitionResult is the outcome of a successful auto_provision call.
type AutoPartitionResult struct {
	EFI  *Partition
	Root Partition
}

type AutoPartitionProgress struct {
	Kind   AutoPartitionKind
	Result *AutoPartitionResult
	Err    *TaggedError
}
