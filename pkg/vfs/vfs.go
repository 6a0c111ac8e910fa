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

// Package vfs wraps twpayne/go-vfs, the filesystem abstraction the teacher
// depends on directly, behind the narrower types.FS interface this module
// actually uses.
package vfs

import (
	"os"

	"github.com/twpayne/go-vfs/v4"

	"github.com/aosc-dev/deploykit/pkg/types"
)

// OSFS is the real, host-backed filesystem.
type OSFS struct {
	fs vfs.FS
}

// NewOSFS returns an FS that operates directly on the host filesystem.
func NewOSFS() *OSFS {
	return &OSFS{fs: vfs.OSFS}
}

func (o *OSFS) Open(name string) (*os.File, error) { return o.fs.Open(name) }
func (o *OSFS) Create(name string) (*os.File, error) { return o.fs.Create(name) }
func (o *OSFS) OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	return o.fs.OpenFile(name, flag, perm)
}
func (o *OSFS) ReadFile(name string) ([]byte, error) { return o.fs.ReadFile(name) }
func (o *OSFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	return o.fs.WriteFile(name, data, perm)
}
func (o *OSFS) Remove(name string) error           { return o.fs.Remove(name) }
func (o *OSFS) RemoveAll(path string) error        { return o.fs.RemoveAll(path) }
func (o *OSFS) MkdirAll(path string, perm os.FileMode) error {
	return o.fs.MkdirAll(path, perm)
}
func (o *OSFS) Stat(name string) (os.FileInfo, error)  { return o.fs.Stat(name) }
func (o *OSFS) Lstat(name string) (os.FileInfo, error) { return o.fs.Lstat(name) }
func (o *OSFS) Symlink(oldname, newname string) error  { return o.fs.Symlink(oldname, newname) }
func (o *OSFS) ReadDir(name string) ([]os.DirEntry, error) {
	return o.fs.ReadDir(name)
}
func (o *OSFS) Rename(oldpath, newpath string) error { return o.fs.Rename(oldpath, newpath) }

var _ types.FS = (*OSFS)(nil)
