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

package orchestrator

import (
	"path/filepath"
	"testing"

	"github.com/aosc-dev/deploykit/pkg/types"
)

func TestProgressDefaultsToPending(t *testing.T) {
	o := New(types.Config{}, t.TempDir(), filepath.Join(t.TempDir(), "install.lock"))
	status := o.Progress()
	if status.Kind != types.ProgressPending {
		t.Fatalf("Kind = %v, want ProgressPending", status.Kind)
	}
	if status.Stage != types.StageSetupPartition {
		t.Fatalf("Stage = %v, want StageSetupPartition (zero value)", status.Stage)
	}
}

func TestStartRejectsUnsanitizedPlan(t *testing.T) {
	o := New(types.Config{}, t.TempDir(), filepath.Join(t.TempDir(), "install.lock"))
	err := o.Start(types.InstallPlan{})
	if err == nil {
		t.Fatal("expected Sanitize failure for an empty plan")
	}
}

func TestCancelSetsFlagObservedByProgressLoop(t *testing.T) {
	o := New(types.Config{}, t.TempDir(), filepath.Join(t.TempDir(), "install.lock"))
	if o.cancelled.Load() {
		t.Fatal("expected cancelled to start false")
	}
	o.Cancel()
	if !o.cancelled.Load() {
		t.Fatal("expected Cancel() to set the cancelled flag")
	}
}

func TestResetProgressClearsTerminalState(t *testing.T) {
	o := New(types.Config{}, t.TempDir(), filepath.Join(t.TempDir(), "install.lock"))
	o.mu.Lock()
	o.kind = types.ProgressError
	o.lastErr = types.NewTaggedError(types.TagInstallOrchestrator, "boom", nil, nil)
	o.mu.Unlock()
	o.stage.Store(int32(types.StageDone))
	o.percent.Store(100)

	o.ResetProgress()

	status := o.Progress()
	if status.Kind != types.ProgressPending {
		t.Errorf("Kind = %v, want ProgressPending", status.Kind)
	}
	if status.Err != nil {
		t.Errorf("Err = %v, want nil", status.Err)
	}
	if status.Stage != types.StageSetupPartition {
		t.Errorf("Stage = %v, want StageSetupPartition", status.Stage)
	}
	if status.Percent != 0 {
		t.Errorf("Percent = %d, want 0", status.Percent)
	}
}
