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

package extractor

import (
	"bytes"
	"io"
	"os/exec"
)

// startRsync launches rsync with the archive-preserving, numeric-id,
// no-incremental-recurse flag set spec.md §4.5 mandates, and returns its
// stdout pipe for live scanning; stderr is captured into a buffer for the
// eventual error message rather than discarded.
func (e *Extractor) startRsync(source, target string) (*exec.Cmd, io.Reader, error) {
	cmd := exec.Command("rsync",
		"-a", "-x", "-H", "-A", "-X", "-S", "-W",
		"--numeric-ids", "--info=progress2", "--no-i-r",
		source+"/", target+"/")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	return cmd, stdout, nil
}

func killRsync(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	_ = cmd.Wait()
}

func waitRsync(cmd *exec.Cmd) error {
	return cmd.Wait()
}
