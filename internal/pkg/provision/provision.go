// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package provision drives the full disk provisioning flow: probe the
// machine, clear the target device, plan the layout, confirm and execute.
package provision

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/forgelinux/installer/internal/pkg/format"
	"github.com/forgelinux/installer/internal/pkg/layout"
	"github.com/forgelinux/installer/internal/pkg/mount"
	"github.com/forgelinux/installer/internal/pkg/partitioner"
	"github.com/forgelinux/installer/internal/pkg/pipeline"
	"github.com/forgelinux/installer/internal/pkg/probe"
	"github.com/forgelinux/installer/internal/pkg/safety"
	"github.com/forgelinux/installer/internal/pkg/state"
)

// Options come from command line flags. Values left empty are collected
// interactively; with every option set the flow runs unattended.
type Options struct {
	Disk             string
	Filesystem       string
	Scheme           string
	Table            string
	Bootloader       string
	RootSizeGiB      uint64
	SwapSizeGiB      uint64
	WipeConfirmation string

	Target     string
	ConfigPath string
	MarkerPath string
}

// DefaultTarget is where the provisioned tree is assembled.
const DefaultTarget = "/mnt/install"

// Guard clears target devices for destructive work.
type Guard interface {
	Validate(ctx context.Context, device string) (*safety.ClearedDevice, error)
}

// Executor writes partition tables to cleared devices.
type Executor interface {
	Execute(ctx context.Context, cleared *safety.ClearedDevice, plan *layout.PartitionPlan) (partitioner.ResolvedPartitions, error)
}

// Formatter creates filesystems on resolved partitions.
type Formatter interface {
	Format(ctx context.Context, parts partitioner.ResolvedPartitions, plan *layout.PartitionPlan) error
}

// Mounter assembles and tears down the target tree.
type Mounter interface {
	Activate(ctx context.Context, points []mount.Point, swapDevice string) error
	Deactivate(points []mount.Point, swapDevice string)
}

// Deps are the components the flow drives.
type Deps struct {
	Prober    *probe.Prober
	Guard     Guard
	Executor  Executor
	Formatter Formatter
	Mounter   Mounter
}

// Provisioner runs the provisioning flow.
type Provisioner struct {
	opts Options
	deps Deps

	in     io.Reader
	out    io.Writer
	printf func(string, ...any)
}

// New builds a Provisioner with production dependencies.
func New(opts Options, in io.Reader, out io.Writer) *Provisioner {
	prober := probe.NewProber()

	return NewWithDeps(opts, Deps{
		Prober:    prober,
		Guard:     safety.NewGuard(prober, &safety.LinuxHost{}, log.Printf),
		Executor:  partitioner.New(log.Printf),
		Formatter: format.New(log.Printf),
		Mounter:   mount.New(log.Printf),
	}, in, out)
}

// NewWithDeps builds a Provisioner with explicit dependencies; tests use
// this with fakes.
func NewWithDeps(opts Options, deps Deps, in io.Reader, out io.Writer) *Provisioner {
	if opts.Target == "" {
		opts.Target = DefaultTarget
	}

	if opts.ConfigPath == "" {
		opts.ConfigPath = state.DefaultPath
	}

	return &Provisioner{
		opts:   opts,
		deps:   deps,
		in:     in,
		out:    out,
		printf: log.Printf,
	}
}

// Plan collects the inputs and computes the partition plan without
// touching the disk. Used by both the dry-run command and Run.
func (p *Provisioner) Plan(ctx context.Context) (string, *layout.PartitionPlan, error) {
	mode, _, err := p.deps.Prober.Firmware()
	if err != nil {
		return "", nil, fmt.Errorf("detect firmware: %w", err)
	}

	ram, err := p.deps.Prober.Memory()
	if err != nil {
		return "", nil, fmt.Errorf("detect memory: %w", err)
	}

	device, size, err := p.selectDisk()
	if err != nil {
		return "", nil, err
	}

	req, err := p.buildRequest(mode, ram, size)
	if err != nil {
		return "", nil, err
	}

	plan, err := layout.Plan(req)
	if err != nil {
		return "", nil, err
	}

	return device, plan, nil
}

// DryRun computes and prints the layout without touching the disk.
func (p *Provisioner) DryRun(ctx context.Context) error {
	device, plan, err := p.Plan(ctx)
	if err != nil {
		return err
	}

	p.renderPlan(device, plan, partitioner.Resolve(device, plan))

	return nil
}

// Run executes the full provisioning flow and advances the progress
// marker to partitions-ready.
func (p *Provisioner) Run(ctx context.Context) error {
	device, plan, err := p.Plan(ctx)
	if err != nil {
		return err
	}

	bootloader, err := p.selectBootloader(plan.BootMode)
	if err != nil {
		return err
	}

	cleared, err := p.deps.Guard.Validate(ctx, device)
	if err != nil {
		return err
	}

	parts := partitioner.Resolve(device, plan)

	p.renderPlan(device, plan, parts)

	if err := p.confirmWipe(device, plan); err != nil {
		return err
	}

	onDisk, err := state.Load(p.opts.ConfigPath)
	if err != nil {
		return err
	}

	cfg := state.New()
	p.record(cfg, plan, parts, bootloader)

	// this run's values win for the keys it owns; keys appended by other
	// writers survive the re-run
	cfg.Merge(onDisk)

	points, err := mount.Points(p.opts.Target, parts, plan)
	if err != nil {
		return err
	}

	swapDevice := parts[layout.RoleSwap]

	runner := pipeline.NewRunner(state.NewMarker(p.opts.MarkerPath), p.printf)

	return runner.Run(ctx, cfg, state.MilestonePartitionsReady, []pipeline.Step{
		{
			Name: "write partition table",
			Run: func(ctx context.Context, _ *state.Config) error {
				_, err := p.deps.Executor.Execute(ctx, cleared, plan)

				return err
			},
		},
		{
			Name: "create filesystems",
			Run: func(ctx context.Context, _ *state.Config) error {
				return p.deps.Formatter.Format(ctx, parts, plan)
			},
		},
		{
			Name: "mount target tree",
			Run: func(ctx context.Context, _ *state.Config) error {
				return p.deps.Mounter.Activate(ctx, points, swapDevice)
			},
			Cleanup: func(*state.Config) {
				p.deps.Mounter.Deactivate(points, swapDevice)
			},
		},
		{
			Name: "persist configuration",
			Run: func(_ context.Context, cfg *state.Config) error {
				return cfg.Save(p.opts.ConfigPath, state.TargetPath(p.opts.Target))
			},
		},
	})
}

// record fills the cross-phase configuration from the plan.
func (p *Provisioner) record(cfg *state.Config, plan *layout.PartitionPlan, parts partitioner.ResolvedPartitions, bootloader string) {
	vendor, _ := p.deps.Prober.CPUVendor()

	cfg.Set(state.KeyBootMode, plan.BootMode.String())
	cfg.Set(state.KeyPartitionTable, plan.TableType.String())
	cfg.Set(state.KeyPartitionScheme, plan.Scheme.String())
	cfg.Set(state.KeyRootFS, plan.Filesystem.String())
	cfg.Set(state.KeyRootPartition, parts[layout.RoleRoot])
	cfg.Set(state.KeySwapPartition, parts[layout.RoleSwap])

	if efi, ok := parts[layout.RoleEFI]; ok {
		cfg.Set(state.KeyEFIPartition, efi)
	}

	if home, ok := parts[layout.RoleHome]; ok {
		cfg.Set(state.KeyHomePartition, home)
	}

	cfg.Set(state.KeyBootloader, bootloader)
	cfg.Set(state.KeyCPUVendor, vendor)
	cfg.Set(state.KeyMicrocodeInstalled, "no")
}

// Cleanup tears down any mounts and swap of a previous attempt without
// needing the original plan: it re-reads the persisted configuration.
func Cleanup(opts Options, mounter Mounter, printf func(string, ...any)) error {
	if opts.ConfigPath == "" {
		opts.ConfigPath = state.DefaultPath
	}

	if opts.Target == "" {
		opts.Target = DefaultTarget
	}

	cfg, err := state.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	points := cleanupPoints(opts.Target, cfg)
	swapDevice := cfg.Get(state.KeySwapPartition)

	if len(points) == 0 && swapDevice == "" {
		printf("nothing to clean up")

		return nil
	}

	mounter.Deactivate(points, swapDevice)

	return nil
}

// cleanupPoints reconstructs the mount targets of a previous run from the
// persisted configuration. Deactivate walks them in reverse and skips
// anything not mounted, so listing a target that was never used is safe.
func cleanupPoints(target string, cfg *state.Config) []mount.Point {
	if cfg.Get(state.KeyRootPartition) == "" {
		return nil
	}

	var points []mount.Point

	points = append(points, mount.Point{Source: cfg.Get(state.KeyRootPartition), Target: target})

	if cfg.Get(state.KeyPartitionScheme) == layout.SchemeBtrfsSubvolumes.String() {
		for _, sub := range []string{"/home", "/var", "/tmp", "/.snapshots"} {
			points = append(points, mount.Point{Source: cfg.Get(state.KeyRootPartition), Target: target + sub})
		}
	}

	if home := cfg.Get(state.KeyHomePartition); home != "" {
		points = append(points, mount.Point{Source: home, Target: target + "/home"})
	}

	points = append(points, mount.Point{Target: target + "/boot/efi"})
	points = append(points, mount.Point{Target: target + "/boot"})

	return points
}
