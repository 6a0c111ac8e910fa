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

import "fmt"

// Error tags, one per leaf of the taxonomy in spec.md §7. Dotted tags match
// the nesting the spec documents (e.g. "Setup.Format").
const (
	TagConfigSetValue      = "Config.SetValue"
	TagConfigUnknownField  = "Config.UnknownField"
	TagConfigValueNotSet   = "Config.ValueNotSet"
	TagPartitionOpenDevice = "Partition.OpenDevice"
	TagPartitionOpenDisk   = "Partition.OpenDisk"
	TagPartitionCreate     = "Partition.CreatePartition"
	TagPartitionFormat     = "Partition.FormatPartition"
	TagPartitionFindESP    = "Partition.FindEspPartition"
	TagPartitionWrongCombo = "Partition.WrongCombo"
	TagPartitionUnsupTable = "Partition.UnsupportedTable"
	TagPartitionMBRMaxSize = "Partition.MBRMaxSizeLimit"
	TagSetupFormat         = "Setup.Format"
	TagSetupMount          = "Setup.Mount"
	TagSetupSwapFile       = "Setup.SwapFile"
	TagDownloadPathNotSet  = "Download.PathNotSet"
	TagDownloadLocalNoFile = "Download.LocalFileNotFound"
	TagDownloadBuildClient = "Download.BuildClient"
	TagDownloadSendRequest = "Download.SendRequest"
	TagDownloadCreateFile  = "Download.CreateFile"
	TagDownloadWriteFile   = "Download.WriteFile"
	TagDownloadChecksum    = "Download.ChecksumMismatch"
	TagExtractSquashfs     = "Extract.Squashfs"
	TagExtractRsync        = "Extract.Rsync"
	TagChrootChdir         = "Chroot.Chdir"
	TagChrootChroot        = "Chroot.Chroot"
	TagChrootSetCurrentDir = "Chroot.SetCurrentDir"
	TagMountInner          = "Mount.Inner"
	TagMountUmount         = "Mount.Umount"
	TagConfigureZoneinfo   = "Configure.Zoneinfo"
	TagConfigureHwclock    = "Configure.Hwclock"
	TagConfigureHostname   = "Configure.Hostname"
	TagConfigureAddUser    = "Configure.AddUser"
	TagConfigureFullName   = "Configure.FullName"
	TagConfigureLocale     = "Configure.Locale"
	TagConfigureFstab      = "Configure.Fstab"
	TagGrubRunCommand      = "Grub.RunCommand"
	TagGrubOpenCPUInfo     = "Grub.OpenCpuInfo"
	TagRunCmdExec          = "RunCmd.Exec"
	TagRunCmdNonZero       = "RunCmd.NonZero"
	TagInstallCloneFd      = "Install.CloneFd"
	TagInstallCreateTmpDir = "Install.CreateTempDir"
	TagInstallGetDirFd     = "Install.GetDirFd"
	TagInstallOrchestrator = "Install.Orchestrator"
)

// TaggedError is the structured error type returned across every stage-local
// contract and surfaced to RPC clients as {message, t, data}.
type TaggedError struct {
	Tag     string `json:"t"`
	Message string `json:"message"`
	Data    any    `json:"data"`
	Cause   error  `json:"-"`
}

func (e *TaggedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Tag, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Tag, e.Message)
}

func (e *TaggedError) Unwrap() error {
	return e.Cause
}

// NewTaggedError builds a TaggedError, optionally wrapping a cause.
func NewTaggedError(tag, message string, data any, cause error) *TaggedError {
	return &TaggedError{Tag: tag, Message: message, Data: data, Cause: cause}
}

// NonZeroExit carries the captured stdout/stderr of a failed child process,
// per spec.md §9's "never discard child output".
type NonZeroExit struct {
	Cmd    string
	Stdout string
	Stderr string
	Err    error
}

func (e *NonZeroExit) Error() string {
	return fmt.Sprintf("command %q failed: %v\nstdout: %s\nstderr: %s", e.Cmd, e.Err, e.Stdout, e.Stderr)
}

func (e *NonZeroExit) Unwrap() error {
	return e.Err
}
