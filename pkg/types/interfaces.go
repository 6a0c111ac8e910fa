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

import (
	"io"
	"os"
)

// Logger is the logging interface every component is built against. It is
// satisfied by a logrus-backed implementation in pkg/logger.
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	SetLevel(level string)
}

// Runner abstracts child-process execution so stages can be tested without
// touching the host. Run returns stdout followed by stderr;
// RunContext honors cancellation by killing the child.
type Runner interface {
	Run(command string, args ...string) ([]byte, error)
	RunContext(ctx Context, command string, args ...string) ([]byte, error)
	RunStdin(stdin string, command string, args ...string) ([]byte, error)
}

// Context is the minimal surface of context.Context the runner needs,
// declared here to avoid importing context into every collaborator that
// only forwards it.
type Context interface {
	Done() <-chan struct{}
	Err() error
}

// FS abstracts the filesystem operations the installer performs against the
// host and the chrooted target, so tests can substitute an in-memory tree.
type FS interface {
	Open(name string) (*os.File, error)
	Create(name string) (*os.File, error)
	OpenFile(name string, flag int, perm os.FileMode) (*os.File, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	Remove(name string) error
	RemoveAll(path string) error
	MkdirAll(path string, perm os.FileMode) error
	Stat(name string) (os.FileInfo, error)
	Lstat(name string) (os.FileInfo, error)
	Symlink(oldname, newname string) error
	ReadDir(name string) ([]os.DirEntry, error)
	Rename(oldpath, newpath string) error
}

// Mounter abstracts mount(2)/umount(2). No implementation ships in this
// module; pkg/mountmgr uses k8s.io/mount-utils's Interface directly.
type Mounter interface {
	Mount(source, target, fstype string, options []string) error
	Unmount(target string) error
	IsMountPoint(target string) (bool, error)
	List() ([]MountPoint, error)
}

// MountPoint is one line of the process mount table.
type MountPoint struct {
	Device string
	Path   string
	Type   string
	Opts   []string
}

// HTTPClient describes a downloader transport. pkg/download does not use it;
// it calls grab directly.
type HTTPClient interface {
	Head(url string) (contentLength int64, err error)
	GetInto(url string, dst io.Writer, onChunk func(written int64)) error
}

// SyscallInterface describes the raw chroot/sentinel syscalls. pkg/chroot
// does not use it; it calls golang.org/x/sys/unix directly.
type SyscallInterface interface {
	Chroot(path string) error
	Chdir(path string) error
	Fchdir(fd int) error
	Open(path string, mode int, perm uint32) (int, error)
	Close(fd int) error
}
