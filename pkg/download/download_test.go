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

package download

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aosc-dev/deploykit/pkg/types"
)

// statFS is a types.FS whose Stat/ReadFile forward to the real filesystem,
// enough for fetchLocalFile/tryCache's local-path checks in tests that
// write real fixture files under t.TempDir().
type statFS struct{}

func (statFS) Open(name string) (*os.File, error)  { return os.Open(name) }
func (statFS) Create(name string) (*os.File, error) { return os.Create(name) }
func (statFS) OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(name, flag, perm)
}
func (statFS) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }
func (statFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}
func (statFS) Remove(name string) error                    { return os.Remove(name) }
func (statFS) RemoveAll(path string) error                  { return os.RemoveAll(path) }
func (statFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }
func (statFS) Stat(name string) (os.FileInfo, error)        { return os.Stat(name) }
func (statFS) Lstat(name string) (os.FileInfo, error)       { return os.Lstat(name) }
func (statFS) Symlink(oldname, newname string) error        { return os.Symlink(oldname, newname) }
func (statFS) ReadDir(name string) ([]os.DirEntry, error)   { return os.ReadDir(name) }
func (statFS) Rename(oldpath, newpath string) error         { return os.Rename(oldpath, newpath) }

func TestFetchLocalFileMissing(t *testing.T) {
	d := New(types.Config{FS: statFS{}})
	_, err := d.fetchLocalFile(types.Download{Path: filepath.Join(t.TempDir(), "nope")})
	if err == nil {
		t.Fatal("expected error for missing local file")
	}
}

func TestFetchLocalFileChecksumMatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rootfs.img")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	// sha256("hello world")
	const want = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

	d := New(types.Config{FS: statFS{}})
	got, err := d.fetchLocalFile(types.Download{Path: path, SHA256: want})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != path {
		t.Fatalf("got %q, want %q", got, path)
	}
}

func TestFetchLocalFileChecksumMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rootfs.img")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	d := New(types.Config{FS: statFS{}})
	_, err := d.fetchLocalFile(types.Download{Path: path, SHA256: "0000000000000000000000000000000000000000000000000000000000000000"})
	if err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func TestTryCacheRejectsStaleCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.img")
	if err := os.WriteFile(path, []byte("stale bytes"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	d := New(types.Config{FS: statFS{}})
	_, ok := d.tryCache(types.Download{CachePath: path, SHA256: "deadbeef"})
	if ok {
		t.Fatal("expected stale cache entry to be rejected")
	}
}

func TestTryCacheAcceptsVerifiedCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.img")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	const want = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

	d := New(types.Config{FS: statFS{}})
	got, ok := d.tryCache(types.Download{CachePath: path, SHA256: want})
	if !ok || got != path {
		t.Fatalf("tryCache = (%q, %v), want (%q, true)", got, ok, path)
	}
}

func TestVerifyChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if err := verifyChecksum(path, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := verifyChecksum(path, "wrong"); err == nil {
		t.Fatal("expected mismatch error")
	}
}
