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

package rpcserver

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jaypipes/ghw"

	"github.com/aosc-dev/deploykit/pkg/types"
)

// applyConfigField sets one field of plan by name, rejecting names the
// install plan doesn't recognize (Config.UnknownField) and values that
// don't parse for their field's type (Config.SetValue).
func applyConfigField(plan *types.InstallPlan, field, value string) error {
	switch field {
	case "locale":
		plan.Locale = value
	case "timezone":
		plan.Timezone = value
	case "hostname":
		plan.Hostname = value
	case "rtc_as_local_time":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return types.NewTaggedError(types.TagConfigSetValue, "rtc_as_local_time must be a bool", value, err)
		}
		plan.RTCAsLocalTime = b
	case "download_url":
		plan.Download.Kind = types.DownloadHTTP
		plan.Download.URL = value
	case "download_sha256":
		plan.Download.SHA256 = value
	case "download_cache_path":
		plan.Download.CachePath = value
	case "download_local_path":
		plan.Download.Kind = types.DownloadLocalFile
		plan.Download.Path = value
	case "username":
		plan.User.Username = value
	case "password":
		plan.User.Password = value
	case "full_name":
		plan.User.FullName = value
	case "root_password":
		plan.User.RootPassword = value
	case "arch":
		plan.Arch = value
	default:
		return types.NewTaggedError(types.TagConfigUnknownField, field, value, nil)
	}
	return nil
}

// enumerateExisting lists device's existing partition device nodes, without
// writing anything, by globbing for the kernel-assigned child nodes.
func enumerateExisting(device string) ([]types.Partition, error) {
	base := filepath.Base(device)
	prefix := device
	if len(base) > 0 {
		last := base[len(base)-1]
		if last >= '0' && last <= '9' {
			prefix = device + "p"
		}
	}

	var out []types.Partition
	for i := 1; i <= 16; i++ {
		path := prefix + strconv.Itoa(i)
		if _, err := os.Stat(path); err != nil {
			break
		}
		out = append(out, types.Partition{DevicePath: path, ParentPath: device})
	}
	return out, nil
}

// memoryBytes returns total physical memory.
func memoryBytes() (uint64, error) {
	mem, err := ghw.Memory()
	if err != nil {
		return 0, err
	}
	return uint64(mem.TotalPhysicalBytes), nil
}

// containsDevice reports whether out (pvs's own listing output) mentions
// device.
func containsDevice(out, device string) bool {
	return strings.Contains(out, device)
}
