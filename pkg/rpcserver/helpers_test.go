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
	"testing"

	"github.com/aosc-dev/deploykit/pkg/types"
)

func TestApplyConfigFieldKnownFields(t *testing.T) {
	var plan types.InstallPlan

	cases := []struct {
		field, value string
		check        func(t *testing.T, p types.InstallPlan)
	}{
		{"locale", "en_US.UTF-8", func(t *testing.T, p types.InstallPlan) {
			if p.Locale != "en_US.UTF-8" {
				t.Errorf("Locale = %q", p.Locale)
			}
		}},
		{"hostname", "box1", func(t *testing.T, p types.InstallPlan) {
			if p.Hostname != "box1" {
				t.Errorf("Hostname = %q", p.Hostname)
			}
		}},
		{"rtc_as_local_time", "true", func(t *testing.T, p types.InstallPlan) {
			if !p.RTCAsLocalTime {
				t.Errorf("RTCAsLocalTime = %v, want true", p.RTCAsLocalTime)
			}
		}},
		{"download_url", "https://example.invalid/rootfs.sqsh", func(t *testing.T, p types.InstallPlan) {
			if p.Download.Kind != types.DownloadHTTP || p.Download.URL == "" {
				t.Errorf("Download = %+v", p.Download)
			}
		}},
		{"download_local_path", "/mnt/rootfs", func(t *testing.T, p types.InstallPlan) {
			if p.Download.Kind != types.DownloadLocalFile || p.Download.Path != "/mnt/rootfs" {
				t.Errorf("Download = %+v", p.Download)
			}
		}},
		{"username", "alice", func(t *testing.T, p types.InstallPlan) {
			if p.User.Username != "alice" {
				t.Errorf("Username = %q", p.User.Username)
			}
		}},
	}

	for _, c := range cases {
		if err := applyConfigField(&plan, c.field, c.value); err != nil {
			t.Fatalf("field %q: unexpected error: %v", c.field, err)
		}
		c.check(t, plan)
	}
}

func TestApplyConfigFieldUnknown(t *testing.T) {
	var plan types.InstallPlan
	err := applyConfigField(&plan, "not_a_real_field", "x")
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestApplyConfigFieldBadBool(t *testing.T) {
	var plan types.InstallPlan
	err := applyConfigField(&plan, "rtc_as_local_time", "not-a-bool")
	if err == nil {
		t.Fatal("expected error for an unparseable bool")
	}
}

func TestContainsDevice(t *testing.T) {
	out := "  /dev/sda2   vg0   lvm2 a--\n"
	if !containsDevice(out, "/dev/sda2") {
		t.Fatal("expected /dev/sda2 to be found")
	}
	if containsDevice(out, "/dev/sdb1") {
		t.Fatal("expected /dev/sdb1 to be absent")
	}
}

func TestEnumerateExisting(t *testing.T) {
	dir := t.TempDir()
	device := filepath.Join(dir, "sda")
	for _, suffix := range []string{"1", "2", "3"} {
		if err := os.WriteFile(device+suffix, nil, 0o644); err != nil {
			t.Fatalf("creating fixture node: %v", err)
		}
	}

	parts, err := enumerateExisting(device)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("parts = %v, want 3 entries", parts)
	}
	for i, p := range parts {
		want := device + string(rune('1'+i))
		if p.DevicePath != want {
			t.Errorf("parts[%d].DevicePath = %q, want %q", i, p.DevicePath, want)
		}
		if p.ParentPath != device {
			t.Errorf("parts[%d].ParentPath = %q, want %q", i, p.ParentPath, device)
		}
	}
}
