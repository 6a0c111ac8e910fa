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

// Package extractor is the image extractor (C7): unsquashfs for squashfs
// images, rsync for directory sources, both run as external collaborators
// per spec.md §1 and both cancellable at the next safe boundary.
package extractor

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jaypipes/ghw"

	"github.com/aosc-dev/deploykit/pkg/types"
)

// squashfsLowMemThreshold is the total-RAM cutoff at or below which unsquashfs's
// thread count is pinned to 1 rather than left at its own default.
const squashfsLowMemThreshold = 2 * 1024 * 1024 * 1024

// Progress is reported periodically while an extraction runs.
type Progress struct {
	Percent        float64
	ThroughputKiBs float64
	ETA            string
}

// ProgressFunc receives periodic progress updates.
type ProgressFunc func(Progress)

// Extractor is the concrete implementation of C7.
type Extractor struct {
	cfg types.Config
}

// New returns an Extractor using cfg's Runner to shell out to unsquashfs
// and rsync.
func New(cfg types.Config) *Extractor {
	return &Extractor{cfg: cfg}
}

// ExtractSquashfs unpacks image into target, pinning unsquashfs's thread
// count to 1 on low-memory hosts so a default-sized thread pool doesn't
// exhaust RAM on small installer VMs (spec.md §4.5). Progress is derived
// from unsquashfs's own live percentage ticks against image's byte size; on
// success, deleteOnSuccess removes the cached HTTP download (never a
// user-provided local file, which the orchestrator never passes here).
func (e *Extractor) ExtractSquashfs(ctx types.Context, image, target string, deleteOnSuccess bool, onProgress ProgressFunc) error {
	var totalBytes int64
	if info, err := e.cfg.FS.Stat(image); err == nil {
		totalBytes = info.Size()
	}

	args := []string{"-f", "-d", target}
	if procs := e.squashfsThreadLimit(); procs > 0 {
		args = append(args, "-processors", strconv.Itoa(procs))
	}
	args = append(args, image)

	cmd, stdout, err := e.startUnsquashfs(args)
	if err != nil {
		return types.NewTaggedError(types.TagExtractSquashfs, "starting unsquashfs", image, err)
	}

	start := time.Now()
	windowStart := start
	var lastPercent float64

	scanner := bufio.NewScanner(stdout)
	scanner.Split(splitOnCROrNewline)
	for scanner.Scan() {
		line := scanner.Text()
		if pct, ok := parsePercentToken(line); ok {
			now := time.Now()
			windowSecs := now.Sub(windowStart).Seconds()
			if windowSecs >= 1 {
				bytesDelta := float64(totalBytes) * (pct - lastPercent) / 100
				throughput := bytesDelta / 1024 / windowSecs
				if onProgress != nil {
					onProgress(Progress{Percent: pct, ThroughputKiBs: throughput, ETA: squashfsETA(totalBytes, throughput, now.Sub(start).Seconds())})
				}
				lastPercent = pct
				windowStart = now
			}
		}
		select {
		case <-ctx.Done():
			killUnsquashfs(cmd)
			return ctx.Err()
		default:
		}
	}

	if err := waitUnsquashfs(cmd); err != nil {
		return types.NewTaggedError(types.TagExtractSquashfs, fmt.Sprintf("unpacking %s", image), image, err)
	}

	if deleteOnSuccess {
		_ = e.cfg.FS.Remove(image)
	}
	return nil
}

// squashfsETA computes `(total_bytes / throughput) - elapsed`, clamped at
// zero, and renders it as "m:ss", or as "h:mm:ss" once an hour or more
// remains.
func squashfsETA(totalBytes int64, throughputKiBs, elapsedSecs float64) string {
	if throughputKiBs <= 0 || totalBytes <= 0 {
		return "0:00"
	}
	remaining := float64(totalBytes)/1024/throughputKiBs - elapsedSecs
	if remaining < 0 {
		remaining = 0
	}
	total := int(remaining)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// squashfsThreadLimit returns 1 when total system memory is at or below
// squashfsLowMemThreshold, or 0 (meaning: pass no -processors flag and let
// unsquashfs pick its own default) otherwise.
func (e *Extractor) squashfsThreadLimit() int {
	mem, err := ghw.Memory()
	if err != nil || mem.TotalPhysicalBytes <= 0 {
		return 1
	}
	if mem.TotalPhysicalBytes <= squashfsLowMemThreshold {
		return 1
	}
	return 0
}

// ExtractRsync copies source into target with rsync -a, taking the overall
// percent field and the time column of each --info=progress2 line as the
// percent-complete and ETA. The "to-chk=N/M" counters on those lines are
// not parsed.
func (e *Extractor) ExtractRsync(ctx types.Context, source, target string, onProgress ProgressFunc) error {
	// rsync's own stdout must be scanned live, so this bypasses
	// cfg.Runner.RunContext's buffer-then-return model and spawns rsync
	// directly through the pipe reader below.
	cmd, stdout, err := e.startRsync(source, target)
	if err != nil {
		return types.NewTaggedError(types.TagExtractRsync, "starting rsync", source, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Split(splitOnCROrNewline)
	for scanner.Scan() {
		line := scanner.Text()
		if p, ok := parseRsyncProgress(line); ok && onProgress != nil {
			onProgress(p)
		}
		select {
		case <-ctx.Done():
			killRsync(cmd)
			return ctx.Err()
		default:
		}
	}

	if err := waitRsync(cmd); err != nil {
		return types.NewTaggedError(types.TagExtractRsync, fmt.Sprintf("rsync %s -> %s", source, target), source, err)
	}
	return nil
}

// parseRsyncProgress parses a `--info=progress2` line of the form:
//
//	      1,234,567  45%   12.34MB/s    0:00:10 (xfr#1, to-chk=3/10)
//
// returning its percent and time column, and true, when it matches.
func parseRsyncProgress(line string) (Progress, bool) {
	pct, ok := parsePercentToken(line)
	if !ok {
		return Progress{}, false
	}

	eta := ""
	for _, g := range strings.Fields(line) {
		if strings.Count(g, ":") >= 1 && strings.Count(g, ":") <= 2 {
			eta = g
			break
		}
	}
	return Progress{Percent: pct, ETA: eta}, true
}

// parsePercentToken scans line's whitespace-separated fields for one ending
// in "%" and parses it as a float; used by both the rsync and unsquashfs
// progress-2 style output, which both report progress this way.
func parsePercentToken(line string) (float64, bool) {
	for _, f := range strings.Fields(line) {
		if !strings.HasSuffix(f, "%") {
			continue
		}
		pct, err := strconv.ParseFloat(strings.TrimSuffix(f, "%"), 64)
		if err != nil {
			continue
		}
		return pct, true
	}
	return 0, false
}

func splitOnCROrNewline(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i, b := range data {
		if b == '\r' || b == '\n' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
