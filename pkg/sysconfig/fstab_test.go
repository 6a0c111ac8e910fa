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

package sysconfig

import (
	"strings"
	"testing"

	"github.com/aosc-dev/deploykit/pkg/constants"
	"github.com/aosc-dev/deploykit/pkg/types"
)

func TestGenerateFstabRootOnly(t *testing.T) {
	c, r, _ := newTestConfigurator()
	r.output["blkid"] = []byte("11111111-1111-1111-1111-111111111111\n")

	root := &types.Partition{DevicePath: "/dev/sda2", FSType: constants.FsExt4}

	out, err := c.GenerateFstab(root, nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "UUID=11111111-1111-1111-1111-111111111111") || strings.Contains(out, "PARTUUID=") {
		t.Fatalf("fstab root entry should use UUID=, not PARTUUID=: %q", out)
	}
	if !strings.Contains(out, "\t/\t"+constants.FsExt4+"\tdefaults\t0\t1") {
		t.Fatalf("fstab root line malformed: %q", out)
	}
	if strings.Contains(out, "/efi") {
		t.Fatalf("fstab should not mention /efi with a nil EFI partition: %q", out)
	}
}

func TestGenerateFstabWithEFIAndSwap(t *testing.T) {
	c, r, _ := newTestConfigurator()
	r.output["blkid"] = []byte("AAAA-BBBB\n")

	root := &types.Partition{DevicePath: "/dev/sda2", FSType: constants.FsExt4}
	efi := &types.Partition{DevicePath: "/dev/sda1", FSType: constants.FsVfat}

	out, err := c.GenerateFstab(root, efi, "/swapfile")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 fstab lines, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "UUID=") {
		t.Fatalf("root line should use UUID=: %q", lines[0])
	}
	if !strings.Contains(lines[1], "/efi") || !strings.Contains(lines[1], "PARTUUID=") || !strings.Contains(lines[1], "defaults,nofail") {
		t.Fatalf("efi line malformed: %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "/swapfile\tnone\tswap\tsw\t0\t0") {
		t.Fatalf("swap line malformed: %q", lines[2])
	}
}

func TestFsOptions(t *testing.T) {
	cases := map[string]string{
		constants.FsVfat:  "defaults,nofail",
		constants.FsFat32: "defaults,nofail",
		constants.FsExt4:  "defaults",
		constants.FsBtrfs: "defaults",
		constants.FsXfs:   "defaults",
		"":                "defaults",
	}
	for fsType, want := range cases {
		if got := fsOptions(fsType); got != want {
			t.Errorf("fsOptions(%q) = %q, want %q", fsType, got, want)
		}
	}
}

func TestWriteFstab(t *testing.T) {
	c, _, fs := newTestConfigurator()
	if err := c.WriteFstab("/mnt/target", "fstab contents\n"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := string(fs.files["/mnt/target"+constants.FstabPath])
	if got != "fstab contents\n" {
		t.Fatalf("fstab file = %q", got)
	}
}
