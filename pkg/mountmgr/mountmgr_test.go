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

package mountmgr

import (
	"os"
	"testing"

	mountutils "k8s.io/mount-utils"

	"github.com/aosc-dev/deploykit/pkg/types"
)

// fakeRunner records the commands mountmgr falls back to (umount -R) when
// the mount-utils unmount call itself fails.
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

type fakeFS struct{ mkdirs []string }

func (f *fakeFS) Open(string) (*os.File, error)  { return nil, os.ErrNotExist }
func (f *fakeFS) Create(string) (*os.File, error) { return nil, os.ErrNotExist }
func (f *fakeFS) OpenFile(string, int, os.FileMode) (*os.File, error) {
	return nil, os.ErrNotExist
}
func (f *fakeFS) ReadFile(string) ([]byte, error) { return nil, os.ErrNotExist }
func (f *fakeFS) WriteFile(string, []byte, os.FileMode) error { return nil }
func (f *fakeFS) Remove(string) error                         { return nil }
func (f *fakeFS) RemoveAll(string) error                      { return nil }
func (f *fakeFS) MkdirAll(path string, _ os.FileMode) error {
	f.mkdirs = append(f.mkdirs, path)
	return nil
}
func (f *fakeFS) Stat(string) (os.FileInfo, error)  { return nil, os.ErrNotExist }
func (f *fakeFS) Lstat(string) (os.FileInfo, error) { return nil, os.ErrNotExist }
func (f *fakeFS) Symlink(string, string) error      { return nil }
func (f *fakeFS) ReadDir(string) ([]os.DirEntry, error) { return nil, nil }
func (f *fakeFS) Rename(string, string) error           { return nil }

func newTestManager(root string) (*Manager, *fakeRunner) {
	r := &fakeRunner{}
	m := &Manager{
		cfg:    types.Config{Runner: r, FS: &fakeFS{}},
		mount:  mountutils.NewFakeMounter(nil),
		ledger: &Ledger{root: root},
	}
	return m, r
}

func TestMountRootRecordsLedger(t *testing.T) {
	m, _ := newTestManager("/mnt/target")
	if err := m.MountRoot("/dev/sda2", "ext4"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mounted := m.Mounted()
	if len(mounted) != 1 || mounted[0] != "/mnt/target" {
		t.Fatalf("ledger = %v, want [/mnt/target]", mounted)
	}
}

func TestSetupKernelFSMountsInOrder(t *testing.T) {
	m, _ := newTestManager("/mnt/target")
	if err := m.SetupKernelFS(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mounted := m.Mounted()
	if len(mounted) != len(kernelFSMounts) {
		t.Fatalf("mounted %d paths, want %d", len(mounted), len(kernelFSMounts))
	}
	for i, km := range kernelFSMounts {
		want := "/mnt/target/" + km.target
		if mounted[i] != want {
			t.Errorf("mount %d = %q, want %q", i, mounted[i], want)
		}
	}
}

func TestTeardownUnwindsInReverseOrder(t *testing.T) {
	m, _ := newTestManager("/mnt/target")
	if err := m.MountRoot("/dev/sda2", "ext4"); err != nil {
		t.Fatalf("mount root: %v", err)
	}
	if err := m.SetupKernelFS(); err != nil {
		t.Fatalf("setup kernel fs: %v", err)
	}

	before := m.Mounted()
	if err := m.Teardown(); err != nil {
		t.Fatalf("unexpected teardown error: %v", err)
	}
	if len(m.Mounted()) != 0 {
		t.Fatalf("ledger not empty after teardown: %v", m.Mounted())
	}

	var unmounted []string
	for _, a := range m.mount.(*mountutils.FakeMounter).GetLog() {
		if a.Action == mountutils.FakeActionUnmount {
			unmounted = append(unmounted, a.Target)
		}
	}
	if len(unmounted) != len(before) {
		t.Fatalf("unmounted %v, want reverse of %v", unmounted, before)
	}
	for i, target := range unmounted {
		if want := before[len(before)-1-i]; target != want {
			t.Errorf("unmount %d = %q, want %q", i, target, want)
		}
	}
}

func TestMountEFICreatesMountpointUnderRoot(t *testing.T) {
	fs := &fakeFS{}
	m := &Manager{
		cfg:    types.Config{Runner: &fakeRunner{}, FS: fs},
		mount:  mountutils.NewFakeMounter(nil),
		ledger: &Ledger{root: "/mnt/target"},
	}
	if err := m.MountEFI("/dev/sda1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, d := range fs.mkdirs {
		if d == "/mnt/target/efi" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected /mnt/target/efi to be created, mkdirs = %v", fs.mkdirs)
	}
	mounted := m.Mounted()
	if len(mounted) != 1 || mounted[0] != "/mnt/target/efi" {
		t.Fatalf("ledger = %v, want [/mnt/target/efi]", mounted)
	}
}
