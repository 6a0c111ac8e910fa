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

// DownloadKind tags the variant held by a Download value.
type DownloadKind int

const (
	DownloadHTTP DownloadKind = iota
	DownloadLocalFile
	DownloadLocalDir
)

// Download is the tagged variant describing where the root filesystem image
// comes from: an HTTP URL with an expected digest, a local file, or a local
// directory to be mirrored with rsync.
type Download struct {
	Kind      DownloadKind `yaml:"kind,omitempty" mapstructure:"kind"`
	URL       string       `yaml:"url,omitempty" mapstructure:"url"`
	SHA256    string       `yaml:"sha256,omitempty" mapstructure:"sha256"`
	CachePath string       `yaml:"cache_path,omitempty" mapstructure:"cache_path"`
	Path      string       `yaml:"path,omitempty" mapstructure:"path"`
}

// SwapPolicy is the tagged variant controlling swapfile creation.
type SwapPolicyKind int

const (
	SwapAutomatic SwapPolicyKind = iota
	SwapCustom
	SwapDisable
)

type SwapPolicy struct {
	Kind  SwapPolicyKind `yaml:"kind,omitempty" mapstructure:"kind"`
	Bytes uint64         `yaml:"bytes,omitempty" mapstructure:"bytes"`
}

// Disabled reports whether this policy means "no swapfile". Per spec.md §9's
// open question, Custom(0) is treated the same as Disable for deactivation
// purposes but Custom(n>0) is honored for creation.
func (s SwapPolicy) Disabled() bool {
	return s.Kind == SwapDisable || (s.Kind == SwapCustom && s.Bytes == 0)
}

// User describes the account created on the target system.
type User struct {
	Username     string `yaml:"username,omitempty" mapstructure:"username"`
	Password     string `yaml:"password,omitempty" mapstructure:"password"`
	FullName     string `yaml:"full_name,omitempty" mapstructure:"full_name"`
	RootPassword string `yaml:"root_password,omitempty" mapstructure:"root_password"`
}

// Partition represents a single partition, created by the provisioner or
// supplied by the caller after a manual layout. Owned by the plan; never
// mutated once the orchestrator starts.
type Partition struct {
	DevicePath string `yaml:"device_path,omitempty" mapstructure:"device_path"`
	ParentPath string `yaml:"parent_path,omitempty" mapstructure:"parent_path"`
	FSType     string `yaml:"fs_type,omitempty" mapstructure:"fs_type"`
	SizeBytes  uint64 `yaml:"size_bytes,omitempty" mapstructure:"size_bytes"`
}

// InstallPlan is the validated, immutable input to the orchestrator.
type InstallPlan struct {
	Locale         string     `yaml:"locale,omitempty" mapstructure:"locale"`
	Timezone       string     `yaml:"timezone,omitempty" mapstructure:"timezone"`
	Hostname       string     `yaml:"hostname,omitempty" mapstructure:"hostname"`
	RTCAsLocalTime bool       `yaml:"rtc_as_localtime,omitempty" mapstructure:"rtc_as_localtime"`
	Download       Download   `yaml:"download,omitempty" mapstructure:"download"`
	User           User       `yaml:"user,omitempty" mapstructure:"user"`
	Swap           SwapPolicy `yaml:"swap,omitempty" mapstructure:"swap"`
	RootPartition  Partition  `yaml:"root_partition,omitempty" mapstructure:"root_partition"`
	EFIPartition   *Partition `yaml:"efi_partition,omitempty" mapstructure:"efi_partition"`
	Arch           string     `yaml:"arch,omitempty" mapstructure:"arch"`
	IsEFIHost      bool       `yaml:"-"`
}

// Sanitize checks the consistency of the plan, returning an error if
// unsolvable inconsistencies are found. Mirrors the Sanitize() convention
// used throughout the teacher's types.InstallSpec/ResetSpec/UpgradeSpec.
func (p *InstallPlan) Sanitize() error {
	if p.Locale == "" {
		return fmt.Errorf("undefined locale")
	}
	if p.Timezone == "" {
		return fmt.Errorf("undefined timezone")
	}
	if p.Hostname == "" {
		return fmt.Errorf("undefined hostname")
	}
	if p.RootPartition.DevicePath == "" {
		return fmt.Errorf("undefined root partition")
	}
	if p.IsEFIHost && p.EFIPartition == nil {
		return fmt.Errorf("EFI host requires an EFI partition")
	}
	switch p.Download.Kind {
	case DownloadHTTP:
		if p.Download.URL == "" {
			return fmt.Errorf("undefined download URL")
		}
	case DownloadLocalFile, DownloadLocalDir:
		if p.Download.Path == "" {
			return fmt.Errorf("undefined local rootfs path")
		}
	default:
		return fmt.Errorf("unknown download kind %d", p.Download.Kind)
	}
	return nil
}
