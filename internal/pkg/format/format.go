// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package format creates filesystems on freshly written partitions.
package format

import (
	"context"
	"fmt"
	"log"
	"os"

	"golang.org/x/sys/unix"

	"github.com/forgelinux/installer/internal/pkg/layout"
	"github.com/forgelinux/installer/internal/pkg/partitioner"
	"github.com/forgelinux/installer/pkg/makefs"
)

// MkfsFunc creates a filesystem on a partition node.
type MkfsFunc func(ctx context.Context, partname string, setters ...makefs.Option) error

// Hooks are the host operations the formatter performs. Tests substitute
// recording fakes; production code uses the defaults.
type Hooks struct {
	VFAT      MkfsFunc
	Swap      MkfsFunc
	Ext4      MkfsFunc
	XFS       MkfsFunc
	Btrfs     MkfsFunc
	Subvolume func(ctx context.Context, mountpoint, name string) error
	Mount     func(source, target string) error
	Unmount   func(target string) error
}

func defaultHooks() Hooks {
	return Hooks{
		VFAT:      makefs.VFAT,
		Swap:      makefs.Swap,
		Ext4:      makefs.Ext4,
		XFS:       makefs.XFS,
		Btrfs:     makefs.Btrfs,
		Subvolume: makefs.BtrfsSubvolume,
		Mount: func(source, target string) error {
			return unix.Mount(source, target, "btrfs", 0, "")
		},
		Unmount: func(target string) error {
			return unix.Unmount(target, 0)
		},
	}
}

// Formatter creates the filesystems a partition plan calls for.
type Formatter struct {
	hooks  Hooks
	printf func(string, ...any)
}

// Option configures the Formatter.
type Option func(*Formatter)

// WithHooks overrides the host operations.
func WithHooks(h Hooks) Option {
	return func(f *Formatter) {
		f.hooks = h
	}
}

// New builds a Formatter logging via printf.
func New(printf func(string, ...any), opts ...Option) *Formatter {
	if printf == nil {
		printf = log.Printf
	}

	f := &Formatter{
		hooks:  defaultHooks(),
		printf: printf,
	}

	for _, o := range opts {
		o(f)
	}

	return f
}

// Format creates a filesystem on every partition of the plan, in plan order.
// BIOS boot partitions stay raw. When the subvolume scheme is selected the
// root btrfs filesystem additionally receives the standard subvolume set.
func (f *Formatter) Format(ctx context.Context, parts partitioner.ResolvedPartitions, plan *layout.PartitionPlan) error {
	for _, e := range plan.Entries {
		part, ok := parts[e.Role]
		if !ok {
			return fmt.Errorf("no resolved partition for role %s", e.Role)
		}

		if err := f.formatOne(ctx, part, e, plan); err != nil {
			return fmt.Errorf("format %s as %s: %w", part, e.Filesystem, err)
		}
	}

	return nil
}

func (f *Formatter) formatOne(ctx context.Context, part string, e layout.Entry, plan *layout.PartitionPlan) error {
	if e.Filesystem == layout.FilesystemNone {
		f.printf("skipping format of %s (%s): raw partition", part, e.Role)

		return nil
	}

	f.printf("formatting %s as %s (label %q)", part, e.Filesystem, e.Label)

	setters := []makefs.Option{makefs.WithLabel(e.Label), makefs.WithForce(true)}

	switch e.Filesystem {
	case layout.FilesystemVFAT:
		return f.hooks.VFAT(ctx, part, makefs.WithLabel(e.Label))
	case layout.FilesystemSwap:
		return f.hooks.Swap(ctx, part, makefs.WithLabel(e.Label))
	case layout.FilesystemExt4:
		return f.hooks.Ext4(ctx, part, setters...)
	case layout.FilesystemXFS:
		return f.hooks.XFS(ctx, part, setters...)
	case layout.FilesystemBtrfs:
		if err := f.hooks.Btrfs(ctx, part, setters...); err != nil {
			return err
		}

		if e.Role == layout.RoleRoot && plan.Scheme == layout.SchemeBtrfsSubvolumes {
			return f.createSubvolumes(ctx, part)
		}

		return nil
	default:
		return fmt.Errorf("no mkfs handler for filesystem %s", e.Filesystem)
	}
}

// createSubvolumes mounts the fresh btrfs filesystem on a scratch directory,
// creates the subvolume set and unmounts again. The scratch mount is always
// torn down, even when a subvolume create fails.
func (f *Formatter) createSubvolumes(ctx context.Context, part string) (err error) {
	dir, err := os.MkdirTemp("", "installer-btrfs-")
	if err != nil {
		return fmt.Errorf("create scratch mountpoint: %w", err)
	}

	defer os.Remove(dir) //nolint:errcheck

	if err = f.hooks.Mount(part, dir); err != nil {
		return fmt.Errorf("scratch mount %s on %s: %w", part, dir, err)
	}

	defer func() {
		if uerr := f.hooks.Unmount(dir); uerr != nil && err == nil {
			err = fmt.Errorf("unmount scratch mount %s: %w", dir, uerr)
		}
	}()

	for _, name := range layout.Subvolumes {
		f.printf("creating subvolume %s on %s", name, part)

		if err = f.hooks.Subvolume(ctx, dir, name); err != nil {
			return fmt.Errorf("create subvolume %s: %w", name, err)
		}
	}

	return nil
}
