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

package runner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aosc-dev/deploykit/pkg/types"
)

// ctxAdapter narrows context.Context to types.Context for RunContext.
type ctxAdapter struct{ context.Context }

func TestRunCapturesStdout(t *testing.T) {
	r := New()
	out, err := r.Run("echo", "-n", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "hello" {
		t.Fatalf("out = %q, want %q", out, "hello")
	}
}

func TestRunNonZeroExitCarriesOutput(t *testing.T) {
	r := New()
	_, err := r.Run("sh", "-c", "echo out; echo err >&2; exit 3")
	if err == nil {
		t.Fatal("expected a non-zero exit error")
	}
	nz, ok := err.(*types.NonZeroExit)
	if !ok {
		t.Fatalf("error type = %T, want *types.NonZeroExit", err)
	}
	if !strings.Contains(nz.Stdout, "out") || !strings.Contains(nz.Stderr, "err") {
		t.Fatalf("NonZeroExit = %+v", nz)
	}
}

func TestRunStdinFeedsChild(t *testing.T) {
	r := New()
	out, err := r.RunStdin("hello from stdin", "cat")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "hello from stdin" {
		t.Fatalf("out = %q", out)
	}
}

func TestRunContextKillsOnCancel(t *testing.T) {
	r := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.RunContext(ctxAdapter{ctx}, "sleep", "5")
	if err == nil {
		t.Fatal("expected an error from an already-cancelled context")
	}
}

func TestRunContextSucceedsBeforeDeadline(t *testing.T) {
	r := New()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := r.RunContext(ctxAdapter{ctx}, "echo", "-n", "fast")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "fast" {
		t.Fatalf("out = %q", out)
	}
}
