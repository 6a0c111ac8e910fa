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

// Package runner spawns child processes and captures their combined
// output, so a failing command always carries stdout/stderr into the
// returned error rather than discarding it (spec.md §9).
package runner

import (
	"bytes"
	"os/exec"
	"strings"

	"github.com/aosc-dev/deploykit/pkg/types"
)

// Runner is the concrete, host-executing implementation of types.Runner.
type Runner struct{}

// New returns a Runner that shells out to the real host.
func New() *Runner {
	return &Runner{}
}

// Run executes command with args, returning combined stdout+stderr. A
// non-zero exit is reported as a *types.NonZeroExit carrying the captured
// streams.
func (r *Runner) Run(command string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(command, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	combined := append(stdout.Bytes(), stderr.Bytes()...)
	if err != nil {
		return combined, &types.NonZeroExit{
			Cmd:    strings.Join(append([]string{command}, args...), " "),
			Stdout: stdout.String(),
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return combined, nil
}

// RunContext is like Run but kills the child if ctx is done before it
// exits.
func (r *Runner) RunContext(ctx types.Context, command string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(command, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, &types.NonZeroExit{Cmd: command, Err: err}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
		combined := append(stdout.Bytes(), stderr.Bytes()...)
		return combined, ctx.Err()
	case err := <-done:
		combined := append(stdout.Bytes(), stderr.Bytes()...)
		if err != nil {
			return combined, &types.NonZeroExit{
				Cmd:    strings.Join(append([]string{command}, args...), " "),
				Stdout: stdout.String(),
				Stderr: stderr.String(),
				Err:    err,
			}
		}
		return combined, nil
	}
}

// RunStdin runs command with args, feeding stdin to the child's standard
// input, used by chpasswd-style tools that refuse to take a secret as an
// argument.
func (r *Runner) RunStdin(stdin string, command string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(command, args...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	combined := append(stdout.Bytes(), stderr.Bytes()...)
	if err != nil {
		return combined, &types.NonZeroExit{
			Cmd:    strings.Join(append([]string{command}, args...), " "),
			Stdout: stdout.String(),
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return combined, nil
}

var _ types.Runner = (*Runner)(nil)
