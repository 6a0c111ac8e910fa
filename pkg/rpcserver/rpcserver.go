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

// Package rpcserver is the RPC surface (C12): it exposes the installer's
// operations as the io.aosc.Deploykit1 session-bus interface.
package rpcserver

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/aosc-dev/deploykit/pkg/constants"
	"github.com/aosc-dev/deploykit/pkg/devices"
	"github.com/aosc-dev/deploykit/pkg/orchestrator"
	"github.com/aosc-dev/deploykit/pkg/partitioner"
	"github.com/aosc-dev/deploykit/pkg/swapmgr"
	"github.com/aosc-dev/deploykit/pkg/types"
)

// envelope is the {result, data} wrapper every method reply carries, per
// spec.md §6.
type envelope struct {
	Result string      `json:"result"`
	Data   interface{} `json:"data,omitempty"`
}

func ok(data interface{}) string {
	b, _ := json.Marshal(envelope{Result: "Ok", Data: data})
	return string(b)
}

func errEnvelope(err error) string {
	te, ok := err.(*types.TaggedError)
	if !ok {
		te = types.NewTaggedError(types.TagInstallOrchestrator, err.Error(), nil, err)
	}
	b, _ := json.Marshal(envelope{Result: "Error", Data: te})
	return string(b)
}

// Server is the concrete implementation of C12, exported on the session bus
// as object io.aosc.Deploykit1 at /io/aosc/Deploykit1.
type Server struct {
	cfg   types.Config
	orch  *orchestrator.Orchestrator
	part  *partitioner.Provisioner
	mu    sync.Mutex
	plan  types.InstallPlan
	arch  string
}

// New returns a Server wired to orch for installation control.
func New(cfg types.Config, orch *orchestrator.Orchestrator, arch string) *Server {
	return &Server{
		cfg:  cfg,
		orch: orch,
		part: partitioner.New(cfg),
		arch: arch,
	}
}

// Serve connects to the session bus, requests constants.BusName, and
// exports Server at constants.ObjectPath under constants.InterfaceTag until
// the connection is closed.
func Serve(cfg types.Config, orch *orchestrator.Orchestrator, arch string) error {
	conn, err := dbus.SessionBusPrivate()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Auth(nil); err != nil {
		return err
	}
	if err := conn.Hello(); err != nil {
		return err
	}

	srv := New(cfg, orch, arch)
	if err := conn.Export(srv, dbus.ObjectPath(constants.ObjectPath), constants.InterfaceTag); err != nil {
		return err
	}

	reply, err := conn.RequestName(constants.BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return types.NewTaggedError(types.TagInstallOrchestrator, "bus name already owned", constants.BusName, nil)
	}

	select {}
}

// GetConfig returns the currently staged install plan as JSON.
func (s *Server) GetConfig() (string, *dbus.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ok(s.plan), nil
}

// SetConfig merges field/value into the staged install plan. Unknown
// fields are rejected per spec.md §7's Config.UnknownField tag.
func (s *Server) SetConfig(field, value string) (string, *dbus.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := applyConfigField(&s.plan, field, value); err != nil {
		return errEnvelope(err), nil
	}
	return ok(nil), nil
}

// ResetConfig clears the staged install plan back to its zero value.
func (s *Server) ResetConfig() (string, *dbus.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plan = types.InstallPlan{}
	return ok(nil), nil
}

// GetListDevices lists candidate whole-disk installation targets.
func (s *Server) GetListDevices() (string, *dbus.Error) {
	disks, err := devices.List()
	if err != nil {
		return errEnvelope(err), nil
	}
	return ok(disks), nil
}

// GetListPartitions lists the partitions on device.
func (s *Server) GetListPartitions(device string) (string, *dbus.Error) {
	children, err := enumerateExisting(device)
	if err != nil {
		return errEnvelope(err), nil
	}
	return ok(children), nil
}

// FindEspPartition returns the EFI system partition on device, if any.
func (s *Server) FindEspPartition(device string) (string, *dbus.Error) {
	part, err := s.findESP(device)
	if err != nil {
		return errEnvelope(err), nil
	}
	return ok(part), nil
}

// GetAllEspPartitions returns the EFI system partitions across every
// candidate device.
func (s *Server) GetAllEspPartitions() (string, *dbus.Error) {
	disks, err := devices.List()
	if err != nil {
		return errEnvelope(err), nil
	}
	var out []types.Partition
	for _, d := range disks {
		if part, err := s.findESP(d.DevicePath); err == nil && part != nil {
			out = append(out, *part)
		}
	}
	return ok(out), nil
}

// findESP locates the EFI system partition on device by probing each
// partition's type GUID via blkid, returning an error if none matches.
func (s *Server) findESP(device string) (*types.Partition, error) {
	parts, err := enumerateExisting(device)
	if err != nil {
		return nil, err
	}
	for i := range parts {
		out, err := s.cfg.Runner.Run("blkid", "-s", "PART_ENTRY_TYPE", "-o", "value", parts[i].DevicePath)
		if err != nil {
			continue
		}
		guid := strings.TrimSpace(string(out))
		if strings.EqualFold(guid, constants.EFISystemPartitionGUID) {
			return &parts[i], nil
		}
	}
	return nil, types.NewTaggedError(types.TagPartitionFindESP, "no ESP found", device, nil)
}

// AutoPartition provisions device and records the result as the plan's
// root/EFI partitions.
func (s *Server) AutoPartition(device string) (string, *dbus.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.part.AutoProvision(device, devices.IsEFIHost(), s.arch)
	if err != nil {
		return errEnvelope(err), nil
	}

	s.plan.RootPartition = result.Root
	s.plan.EFIPartition = result.EFI
	return ok(result), nil
}

// GetAutoPartitionProgress reports AutoPartition's progress. AutoPartition
// itself runs synchronously (it has no long-running chunked phase the way
// downloads/extraction do), so this always reports a terminal state.
func (s *Server) GetAutoPartitionProgress() (string, *dbus.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plan.RootPartition.DevicePath == "" {
		return ok(types.AutoPartitionProgress{Kind: types.AutoPartitionPending}), nil
	}
	return ok(types.AutoPartitionProgress{
		Kind: types.AutoPartitionFinish,
		Result: &types.AutoPartitionResult{
			EFI:  s.plan.EFIPartition,
			Root: s.plan.RootPartition,
		},
	}), nil
}

// StartInstall begins installation using the currently staged plan.
func (s *Server) StartInstall() (string, *dbus.Error) {
	s.mu.Lock()
	s.plan.IsEFIHost = devices.IsEFIHost()
	plan := s.plan
	s.mu.Unlock()

	if err := s.orch.Start(plan); err != nil {
		return errEnvelope(err), nil
	}
	return ok(nil), nil
}

// CancelInstall requests cancellation of a running install.
func (s *Server) CancelInstall() (string, *dbus.Error) {
	s.orch.Cancel()
	return ok(nil), nil
}

// GetProgress returns the current ProgressStatus.
func (s *Server) GetProgress() (string, *dbus.Error) {
	return ok(s.orch.Progress()), nil
}

// ResetProgressStatus clears a terminal progress status back to Pending.
func (s *Server) ResetProgressStatus() (string, *dbus.Error) {
	s.orch.ResetProgress()
	return ok(nil), nil
}

// GetRecommendSwapSize returns the recommended swapfile size in bytes.
func (s *Server) GetRecommendSwapSize() (string, *dbus.Error) {
	size, err := swapmgr.RecommendSize()
	if err != nil {
		return errEnvelope(err), nil
	}
	return ok(size), nil
}

// GetMemory returns total physical memory in bytes.
func (s *Server) GetMemory() (string, *dbus.Error) {
	mem, err := memoryBytes()
	if err != nil {
		return errEnvelope(err), nil
	}
	return ok(mem), nil
}

// IsEfi reports whether the host was booted via EFI.
func (s *Server) IsEfi() (string, *dbus.Error) {
	return ok(devices.IsEFIHost()), nil
}

// DiskIsRightCombo reports whether device's partition table matches the
// host's firmware mode.
func (s *Server) DiskIsRightCombo(device string) (string, *dbus.Error) {
	err := s.part.RightCombine(device, devices.IsEFIHost(), s.arch)
	if err != nil {
		if te, ok := err.(*types.TaggedError); ok && te.Tag == types.TagPartitionWrongCombo {
			return ok2(false), nil
		}
		return errEnvelope(err), nil
	}
	return ok2(true), nil
}

func ok2(v bool) string { return ok(v) }

// IsLvmDevice reports whether device currently hosts an LVM physical
// volume.
func (s *Server) IsLvmDevice(device string) (string, *dbus.Error) {
	out, err := s.cfg.Runner.Run("pvs", "--noheadings", "-o", "pv_name")
	if err != nil {
		return ok(false), nil
	}
	return ok(containsDevice(string(out), device)), nil
}

// SyncDisk flushes pending writes to disk.
func (s *Server) SyncDisk() (string, *dbus.Error) {
	if _, err := s.cfg.Runner.Run("sync"); err != nil {
		return errEnvelope(err), nil
	}
	return ok(nil), nil
}

// SyncAndReboot flushes pending writes and reboots the host.
func (s *Server) SyncAndReboot() (string, *dbus.Error) {
	if _, err := s.cfg.Runner.Run("sync"); err != nil {
		return errEnvelope(err), nil
	}
	if _, err := s.cfg.Runner.Run("reboot"); err != nil {
		return errEnvelope(err), nil
	}
	return ok(nil), nil
}

// Ping is a liveness probe for clients establishing the bus connection.
func (s *Server) Ping() (string, *dbus.Error) {
	return ok("pong"), nil
}
