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

package bootloader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aosc-dev/deploykit/pkg/constants"
	"github.com/aosc-dev/deploykit/pkg/types"
)

type fakeRunner struct {
	calls [][]string
}

func (f *fakeRunner) Run(command string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{command}, args...))
	return nil, nil
}
func (f *fakeRunner) RunContext(_ types.Context, command string, args ...string) ([]byte, error) {
	return f.Run(command, args...)
}
func (f *fakeRunner) RunStdin(_ string, command string, args ...string) ([]byte, error) {
	return f.Run(command, args...)
}

func TestGrubInstallArgsBIOS(t *testing.T) {
	b := New(types.Config{})
	args, err := b.grubInstallArgs("/dev/sda", false, constants.ArchAmd64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if args[0] != "--target=i386-pc" || args[1] != "/dev/sda" {
		t.Fatalf("args = %v", args)
	}
}

func TestGrubInstallArgsEFIAmd64(t *testing.T) {
	b := New(types.Config{})
	args, err := b.grubInstallArgs("/dev/sda", true, constants.ArchAmd64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--target=x86_64-efi") || strings.Contains(joined, "force-extra-removable") {
		t.Fatalf("args = %v", args)
	}
	if !strings.Contains(joined, `--bootloader-id=AOSC OS`) {
		t.Fatalf("args = %v, want --bootloader-id=AOSC OS", args)
	}
}

func TestGrubInstallArgsEFIArm64ForcesExtraRemovable(t *testing.T) {
	b := New(types.Config{})
	args, err := b.grubInstallArgs("/dev/sda", true, constants.ArchArm64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--target=arm64-efi") || !strings.Contains(joined, "--force-extra-removable") {
		t.Fatalf("args = %v, want arm64-efi target with force-extra-removable", args)
	}
}

func TestEfiTarget(t *testing.T) {
	cases := map[string]string{
		constants.ArchArm64:       "arm64-efi",
		constants.ArchRiscv64:     "riscv64-efi",
		constants.ArchLoongarch64: "loongarch64-efi",
		constants.ArchLoongson3:   "loongarch64-efi",
		constants.ArchAmd64:       "x86_64-efi",
	}
	for arch, want := range cases {
		if got := efiTarget(arch); got != want {
			t.Errorf("efiTarget(%q) = %q, want %q", arch, got, want)
		}
	}
}

// fakeFS forwards Open to a real file so installOPAL's /proc/cpuinfo scan
// can be exercised against fixture content without touching the host's
// actual cpuinfo.
type fakeFS struct {
	cpuinfoPath string
}

func (f *fakeFS) Open(name string) (*os.File, error) {
	if name == constants.CPUInfoPath {
		return os.Open(f.cpuinfoPath)
	}
	return nil, os.ErrNotExist
}
func (f *fakeFS) Create(string) (*os.File, error) { return nil, os.ErrNotExist }
func (f *fakeFS) OpenFile(string, int, os.FileMode) (*os.File, error) {
	return nil, os.ErrNotExist
}
func (f *fakeFS) ReadFile(string) ([]byte, error)             { return nil, os.ErrNotExist }
func (f *fakeFS) WriteFile(string, []byte, os.FileMode) error { return nil }
func (f *fakeFS) Remove(string) error                         { return nil }
func (f *fakeFS) RemoveAll(string) error                      { return nil }
func (f *fakeFS) MkdirAll(string, os.FileMode) error          { return nil }
func (f *fakeFS) Stat(string) (os.FileInfo, error)            { return nil, os.ErrNotExist }
func (f *fakeFS) Lstat(string) (os.FileInfo, error)           { return nil, os.ErrNotExist }
func (f *fakeFS) Symlink(string, string) error                { return nil }
func (f *fakeFS) ReadDir(string) ([]os.DirEntry, error)       { return nil, nil }
func (f *fakeFS) Rename(string, string) error                 { return nil }

func writeCPUInfo(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cpuinfo")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestInstallOPALSkipsGrubInstallOnOPALFirmware(t *testing.T) {
	path := writeCPUInfo(t, "processor\t: 0\nfirmware\t: OPAL\n")
	r := &fakeRunner{}
	b := New(types.Config{Runner: r, FS: &fakeFS{cpuinfoPath: path}})

	if err := b.installOPAL("/dev/sda"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(r.calls) != 1 || r.calls[0][0] != "grub-mkconfig" {
		t.Fatalf("expected only grub-mkconfig on OPAL firmware, got %v", r.calls)
	}
}

func TestInstallOPALRunsGrubInstallForPowerVM(t *testing.T) {
	path := writeCPUInfo(t, "processor\t: 0\nfirmware\t: PowerVM\n")
	r := &fakeRunner{}
	b := New(types.Config{Runner: r, FS: &fakeFS{cpuinfoPath: path}})

	if err := b.installOPAL("/dev/sda"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(r.calls) != 2 {
		t.Fatalf("expected grub-install + grub-mkconfig, got %v", r.calls)
	}
	installArgs := strings.Join(r.calls[0], " ")
	if !strings.Contains(installArgs, "--target=powerpc-ieee1275") || strings.Contains(installArgs, "--no-nvram") {
		t.Fatalf("unexpected grub-install args for non-OPAL firmware: %q", installArgs)
	}
}
