// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package partitioner

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/siderolabs/go-blockdevice/v2/block"
	"github.com/siderolabs/go-blockdevice/v2/partitioning/gpt"

	"github.com/forgelinux/installer/internal/pkg/layout"
)

// executeGPT writes a fresh GPT and allocates the planned partitions in
// order. Used for both UEFI and BIOS installs on GPT; BIOS installs
// additionally mark the protective MBR bootable so old firmware agrees
// to boot from the disk.
//
//nolint:gocyclo
func (p *Partitioner) executeGPT(ctx context.Context, device string, plan *layout.PartitionPlan) error {
	execErr := func(step string, err error) error {
		return &ExecutionError{Step: step, Device: device, Err: err}
	}

	bd, err := block.NewFromPath(device, block.OpenForWrite())
	if err != nil {
		return execErr("open block device", err)
	}

	defer bd.Close() //nolint:errcheck

	if err = bd.Lock(true); err != nil {
		return execErr("lock block device", err)
	}

	defer bd.Unlock() //nolint:errcheck

	p.printf("wiping stale signatures on %s", device)

	if err = bd.FastWipe(); err != nil {
		return execErr("wipe stale signatures", err)
	}

	gptdev, err := gpt.DeviceFromBlockDevice(bd)
	if err != nil {
		return execErr("prepare GPT device", err)
	}

	var opts []gpt.Option

	if plan.BootMode == layout.BootModeBIOS {
		opts = append(opts, gpt.WithMarkPMBRBootable())
	}

	p.printf("creating new GPT on %s", device)

	pt, err := gpt.New(gptdev, opts...)
	if err != nil {
		return execErr("initialize GPT", err)
	}

	for _, e := range plan.Entries {
		if err = ctx.Err(); err != nil {
			return execErr("create partition "+e.Label, err)
		}

		size := e.Size()
		if e.RestOfDisk {
			size = pt.LargestContiguousAllocatable()
		}

		p.printf("partitioning %s - %s %q", device, e.Label, humanize.IBytes(size))

		if _, _, err = pt.AllocatePartition(size, e.Label, e.TypeGUID); err != nil {
			return execErr("create partition "+e.Label, fmt.Errorf("failed to allocate %s: %w", humanize.IBytes(size), err))
		}

		p.printf("created %s (%s) size %s", e.Label, e.TypeGUID, humanize.IBytes(size))
	}

	if err = pt.Write(); err != nil {
		return execErr("write GPT", err)
	}

	p.printf("wrote GPT to %s", device)

	return nil
}
