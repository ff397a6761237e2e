// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package safety validates an operator-chosen target device against the
// probed system facts and gates every destructive action behind an exact
// typed confirmation phrase. A device is never touched before it has been
// cleared by the guard.
package safety

import (
	"context"
	"fmt"
	"strings"

	"github.com/forgelinux/installer/internal/pkg/devname"
	"github.com/forgelinux/installer/internal/pkg/layout"
	"github.com/forgelinux/installer/internal/pkg/probe"
)

// Reason classifies why the guard rejected a device.
type Reason int

const (
	// ReasonNotBlockDevice - the path does not name a block device.
	ReasonNotBlockDevice Reason = iota
	// ReasonUnreadable - a read probe of the first sector failed.
	ReasonUnreadable
	// ReasonLiveDisk - the device hosts the running live boot medium.
	ReasonLiveDisk
	// ReasonRootDisk - the device hosts the currently mounted root.
	ReasonRootDisk
	// ReasonBootDisk - the device hosts a separately mounted /boot.
	ReasonBootDisk
	// ReasonTooSmall - the device is below the minimum install size.
	ReasonTooSmall
	// ReasonBusy - the device is still mounted or backing active swap
	// after the guard's best-effort release.
	ReasonBusy
)

func (r Reason) String() string {
	switch r {
	case ReasonNotBlockDevice:
		return "not a block device"
	case ReasonUnreadable:
		return "device is not readable"
	case ReasonLiveDisk:
		return "device hosts the live boot medium"
	case ReasonRootDisk:
		return "device hosts the mounted root filesystem"
	case ReasonBootDisk:
		return "device hosts the mounted /boot"
	case ReasonTooSmall:
		return "device is too small"
	case ReasonBusy:
		return "device is still in use"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// RejectionError is a typed guard rejection. Destructive work must never
// be retried automatically after one of these.
type RejectionError struct {
	Device string
	Reason Reason
	Detail string
}

func (e *RejectionError) Error() string {
	msg := fmt.Sprintf("refusing to use %s: %s", e.Device, e.Reason)

	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}

	return msg
}

func reject(device string, reason Reason, detail string) error {
	return &RejectionError{Device: device, Reason: reason, Detail: detail}
}

// ClearedDevice is the proof a device passed validation; the partitioner
// only accepts cleared devices.
type ClearedDevice struct {
	Path string
	Disk probe.Disk
}

// Host abstracts the host-level operations the guard performs, so tests
// can run against a fake machine.
type Host interface {
	IsBlockDevice(dev string) bool
	ReadFirstSector(dev string) error
	Unmount(target string) error
	Swapoff(dev string) error
}

// Guard validates target devices.
type Guard struct {
	prober *probe.Prober
	host   Host

	printf func(string, ...any)
}

// NewGuard builds a Guard over the given prober and host.
func NewGuard(prober *probe.Prober, host Host, printf func(string, ...any)) *Guard {
	if printf == nil {
		printf = func(string, ...any) {}
	}

	return &Guard{
		prober: prober,
		host:   host,
		printf: printf,
	}
}

// Validate checks the device against every guard rule and releases any
// mounts/swap the guard can positively attribute to the device. It
// returns a ClearedDevice or a RejectionError.
//
//nolint:gocyclo
func (g *Guard) Validate(ctx context.Context, device string) (*ClearedDevice, error) {
	if !g.host.IsBlockDevice(device) {
		return nil, reject(device, ReasonNotBlockDevice, "")
	}

	if err := g.host.ReadFirstSector(device); err != nil {
		return nil, reject(device, ReasonUnreadable, err.Error())
	}

	env, err := g.prober.Environment()
	if err != nil {
		return nil, fmt.Errorf("failed to identify live environment disks: %w", err)
	}

	switch device {
	case env.Live:
		return nil, reject(device, ReasonLiveDisk, "")
	case env.Root:
		return nil, reject(device, ReasonRootDisk, "")
	case env.Boot:
		return nil, reject(device, ReasonBootDisk, "")
	}

	disk, err := g.lookupDisk(device)
	if err != nil {
		return nil, err
	}

	if disk.Size < layout.MinDiskSize {
		return nil, reject(device, ReasonTooSmall,
			fmt.Sprintf("%d bytes, minimum is %d GiB", disk.Size, layout.MinDiskSize/layout.GiB))
	}

	if err = g.release(ctx, device); err != nil {
		return nil, err
	}

	// re-check after the release pass
	busy, detail, err := g.busy(device)
	if err != nil {
		return nil, err
	}

	if busy {
		return nil, reject(device, ReasonBusy, detail)
	}

	return &ClearedDevice{Path: device, Disk: disk}, nil
}

func (g *Guard) lookupDisk(device string) (probe.Disk, error) {
	disks, err := g.prober.Disks()
	if err != nil {
		return probe.Disk{}, fmt.Errorf("failed to read disk inventory: %w", err)
	}

	for _, d := range disks {
		if d.Path == device {
			return d, nil
		}
	}

	return probe.Disk{}, reject(device, ReasonNotBlockDevice, "not in the disk inventory")
}

// release unmounts and swapoffs only what positively belongs to the
// device: partitions whose parent disk resolves to it.
func (g *Guard) release(ctx context.Context, device string) error {
	mounts, err := g.prober.Mounts()
	if err != nil {
		return err
	}

	// deepest targets first so nested mounts unwind cleanly
	for i := len(mounts) - 1; i >= 0; i-- {
		m := mounts[i]

		if devname.ParentDisk(m.Source) != device && m.Source != device {
			continue
		}

		if err = ctx.Err(); err != nil {
			return err
		}

		g.printf("unmounting %s from %s", m.Source, m.Target)

		if err = g.host.Unmount(m.Target); err != nil {
			g.printf("failed to unmount %s: %s", m.Target, err)
		}
	}

	swaps, err := g.prober.ActiveSwaps()
	if err != nil {
		return err
	}

	for _, s := range swaps {
		if devname.ParentDisk(s) != device && s != device {
			continue
		}

		g.printf("deactivating swap on %s", s)

		if err = g.host.Swapoff(s); err != nil {
			g.printf("failed to deactivate swap on %s: %s", s, err)
		}
	}

	return nil
}

func (g *Guard) busy(device string) (bool, string, error) {
	mounts, err := g.prober.Mounts()
	if err != nil {
		return false, "", err
	}

	for _, m := range mounts {
		if devname.ParentDisk(m.Source) == device || m.Source == device {
			return true, fmt.Sprintf("%s is still mounted at %s", m.Source, m.Target), nil
		}
	}

	swaps, err := g.prober.ActiveSwaps()
	if err != nil {
		return false, "", err
	}

	for _, s := range swaps {
		if devname.ParentDisk(s) == device || s == device {
			return true, fmt.Sprintf("%s is still active swap", s), nil
		}
	}

	return false, "", nil
}

// ConfirmationPhrase is the literal phrase the operator must type to
// clear destructive work on the device.
func ConfirmationPhrase(device string) string {
	return "YES, WIPE " + device
}

// ErrConfirmationMismatch is returned when the typed confirmation does
// not match the required phrase exactly.
type ErrConfirmationMismatch struct {
	Device string
}

func (e *ErrConfirmationMismatch) Error() string {
	return fmt.Sprintf("confirmation phrase mismatch, aborting without touching %s", e.Device)
}

// Confirm checks the operator input against the exact confirmation
// phrase. A near miss is a rejection, never a retry.
func Confirm(input, device string) error {
	input = strings.TrimRight(input, "\r\n")

	if input != ConfirmationPhrase(device) {
		return &ErrConfirmationMismatch{Device: device}
	}

	return nil
}
