// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package layout computes partition layouts for an installation disk.
//
// The planner is pure computation: it never touches the disk, it only
// turns the probed facts and the operator's choices into an ordered
// partition plan with explicit offsets.
package layout

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	// MiB is a mebibyte in bytes.
	MiB = 1 << 20
	// GiB is a gibibyte in bytes.
	GiB = 1 << 30

	// FirstUsableMiB is the offset of the first partition; the first
	// mebibyte is left to the partition table and alignment.
	FirstUsableMiB = 1

	// EFISizeMiB is the EFI system partition size on UEFI installs.
	EFISizeMiB = 1024
	// EFISmallSizeMiB is the EFI system partition size on small disks.
	EFISmallSizeMiB = 512
	// BIOSBootSizeMiB is the GRUB BIOS boot partition size on BIOS+GPT.
	BIOSBootSizeMiB = 1
	// BIOSCompatESPSizeMiB is the FAT32 /boot partition accompanying the
	// BIOS boot partition on BIOS+GPT installs.
	BIOSCompatESPSizeMiB = 512
	// MBRBootSizeMiB is the bootable FAT32 /boot partition on BIOS+MBR.
	MBRBootSizeMiB = 1024

	// MinDiskSize is the smallest disk the planner accepts.
	MinDiskSize = 20 * GiB
	// SmallDiskThreshold is the disk size below which the scheme is forced
	// to single and swap is capped.
	SmallDiskThreshold = 64 * GiB

	// MinSwapSize is the smallest swap partition ever planned.
	MinSwapSize = 128 * MiB
	// MaxSwapGiB is the swap size used once RAM exceeds SwapRAMCutoffGiB.
	MaxSwapGiB = 5
	// SwapRAMCutoffGiB is the RAM size above which swap stops tracking RAM.
	SwapRAMCutoffGiB = 64
	// SmallDiskSwapCap caps swap on forced-single small disks.
	SmallDiskSwapCap = 2 * GiB

	// MinRootGiB is the smallest root partition under the separate-home
	// scheme.
	MinRootGiB = 64
	// MinHomeGiB is the smallest remaining space for /home under the
	// separate-home scheme.
	MinHomeGiB = 10

	// MinRootRemainingGiB is the smallest rest-of-disk root the planner
	// will accept after boot and swap reservations.
	MinRootRemainingGiB = 10
)

// Subvolumes is the fixed Btrfs subvolume set created under the
// btrfs-subvolumes scheme. Order matters: `@` is the root subvolume and
// must be created (and mounted) first.
var Subvolumes = []string{"@", "@home", "@var", "@tmp", "@.snapshots"}

// Entry is a single planned partition. Offsets are in MiB from the start
// of the disk; the final entry of a plan consumes the rest of the disk
// instead of carrying a computed end offset, so rounding can never strand
// space at the end of the device.
type Entry struct {
	Role       Role
	Label      string
	Filesystem Filesystem

	StartMiB   uint64
	SizeMiB    uint64 // zero iff RestOfDisk
	RestOfDisk bool

	TypeGUID uuid.UUID // GPT tables
	MBRType  byte      // MBR tables
	Bootable bool      // MBR bootable flag
}

// EndMiB returns the end offset of the entry, or zero for the rest-of-disk
// entry.
func (e Entry) EndMiB() uint64 {
	if e.RestOfDisk {
		return 0
	}

	return e.StartMiB + e.SizeMiB
}

// Size returns the entry size in bytes (zero for rest-of-disk).
func (e Entry) Size() uint64 {
	return e.SizeMiB * MiB
}

// Request carries the inputs of a planning run.
type Request struct {
	DiskSize uint64 // bytes
	RAMSize  uint64 // bytes

	BootMode   BootMode
	TableType  TableType
	Scheme     Scheme
	Filesystem Filesystem

	// RootSizeGiB overrides the suggested root size under the
	// separate-home scheme; zero means use the suggestion.
	RootSizeGiB uint64

	// SwapSizeGiB overrides the RAM-derived swap size; zero means derive
	// from RAM. The small-disk cap still applies to an override.
	SwapSizeGiB uint64
}

// PartitionPlan is an ordered partition layout for one disk. Ordering is
// significant: entries mirror the on-disk order, offsets strictly increase
// and never overlap.
type PartitionPlan struct {
	Entries []Entry

	BootMode   BootMode
	TableType  TableType
	Scheme     Scheme
	Filesystem Filesystem

	DiskSize uint64
	SwapSize uint64

	// SchemeForced is set when a small disk forced the scheme to single
	// over the operator's choice. The caller must surface it and confirm,
	// never apply it silently.
	SchemeForced bool
	// SwapCapped is set when the small-disk override capped the swap size.
	SwapCapped bool
}

// ValidationError is a bad combination of planning inputs. Nothing has
// been touched when it is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid layout request: " + e.Reason
}

// SwapSize derives the swap partition size from the amount of RAM:
// RAM + 2 GiB while RAM is at most 64 GiB, a flat 5 GiB above that.
func SwapSize(ramSize uint64) uint64 {
	ramGiB := (ramSize + GiB - 1) / GiB

	var swap uint64

	if ramGiB > SwapRAMCutoffGiB {
		swap = MaxSwapGiB * GiB
	} else {
		swap = (ramGiB + 2) * GiB
	}

	if swap < MinSwapSize {
		swap = MinSwapSize
	}

	return swap
}

// SuggestedRootGiB is the suggested root partition size for the
// separate-home scheme: a quarter of the disk, but never below MinRootGiB.
func SuggestedRootGiB(diskSize uint64) uint64 {
	suggested := diskSize / GiB * 128 / 512

	if suggested < MinRootGiB {
		suggested = MinRootGiB
	}

	return suggested
}

// Plan computes a partition plan for the given request.
//
//nolint:gocyclo
func Plan(req Request) (*PartitionPlan, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	plan := &PartitionPlan{
		BootMode:   req.BootMode,
		TableType:  req.TableType,
		Scheme:     req.Scheme,
		Filesystem: req.Filesystem,
		DiskSize:   req.DiskSize,
	}

	smallDisk := req.DiskSize < SmallDiskThreshold

	scheme := req.Scheme
	if smallDisk && scheme != SchemeSingle {
		scheme = SchemeSingle
		plan.Scheme = SchemeSingle
		plan.SchemeForced = true
	}

	plan.SwapSize = SwapSize(req.RAMSize)
	if req.SwapSizeGiB != 0 {
		plan.SwapSize = req.SwapSizeGiB * GiB
	}

	if smallDisk && plan.SwapSize > SmallDiskSwapCap {
		plan.SwapSize = SmallDiskSwapCap
		plan.SwapCapped = true
	}

	offset := uint64(FirstUsableMiB)

	appendEntry := func(e Entry) {
		e.StartMiB = offset
		offset += e.SizeMiB
		plan.Entries = append(plan.Entries, e)
	}

	// Boot partitions come first.
	switch {
	case req.BootMode == BootModeUEFI:
		size := uint64(EFISizeMiB)
		if smallDisk {
			size = EFISmallSizeMiB
		}

		appendEntry(Entry{
			Role:       RoleEFI,
			Label:      RoleEFI.String(),
			Filesystem: FilesystemVFAT,
			SizeMiB:    size,
			TypeGUID:   TypeEFISystemPartition,
		})
	case req.TableType == TableTypeGPT: // BIOS+GPT
		appendEntry(Entry{
			Role:       RoleBIOSBoot,
			Label:      RoleBIOSBoot.String(),
			Filesystem: FilesystemNone,
			SizeMiB:    BIOSBootSizeMiB,
			TypeGUID:   TypeBIOSBoot,
		})
		appendEntry(Entry{
			Role:       RoleBoot,
			Label:      RoleBoot.String(),
			Filesystem: FilesystemVFAT,
			SizeMiB:    BIOSCompatESPSizeMiB,
			TypeGUID:   TypeEFISystemPartition,
		})
	default: // BIOS+MBR
		appendEntry(Entry{
			Role:       RoleBoot,
			Label:      RoleBoot.String(),
			Filesystem: FilesystemVFAT,
			SizeMiB:    MBRBootSizeMiB,
			MBRType:    MBRTypeFAT32LBA,
			Bootable:   true,
		})
	}

	appendEntry(Entry{
		Role:       RoleSwap,
		Label:      RoleSwap.String(),
		Filesystem: FilesystemSwap,
		SizeMiB:    plan.SwapSize / MiB,
		TypeGUID:   TypeLinuxSwap,
		MBRType:    MBRTypeLinuxSwap,
	})

	reservedMiB := offset

	if req.DiskSize/MiB < reservedMiB+MinRootRemainingGiB*1024 {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("boot and swap reservations (%d MiB) leave less than %d GiB for the root filesystem", reservedMiB, MinRootRemainingGiB),
		}
	}

	switch scheme {
	case SchemeSingle, SchemeBtrfsSubvolumes:
		// Root consumes the rest of the disk.
		appendEntry(Entry{
			Role:       RoleRoot,
			Label:      RoleRoot.String(),
			Filesystem: req.Filesystem,
			RestOfDisk: true,
			TypeGUID:   TypeLinuxRootX8664,
			MBRType:    MBRTypeLinux,
		})
	case SchemeSeparateHome:
		rootGiB, err := rootSizeGiB(req, reservedMiB)
		if err != nil {
			return nil, err
		}

		appendEntry(Entry{
			Role:       RoleRoot,
			Label:      RoleRoot.String(),
			Filesystem: req.Filesystem,
			SizeMiB:    rootGiB * 1024,
			TypeGUID:   TypeLinuxRootX8664,
			MBRType:    MBRTypeLinux,
		})
		appendEntry(Entry{
			Role:       RoleHome,
			Label:      RoleHome.String(),
			Filesystem: req.Filesystem,
			RestOfDisk: true,
			TypeGUID:   TypeLinuxHome,
			MBRType:    MBRTypeLinux,
		})
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}

	return plan, nil
}

func validate(req Request) error {
	if req.DiskSize < MinDiskSize {
		return &ValidationError{Reason: fmt.Sprintf("disk is smaller than the %d GiB minimum", MinDiskSize/GiB)}
	}

	if req.TableType == TableTypeMBR && req.BootMode != BootModeBIOS {
		return &ValidationError{Reason: "an MBR partition table is only legal when booting via BIOS"}
	}

	if req.Scheme == SchemeBtrfsSubvolumes && req.Filesystem != FilesystemBtrfs {
		return &ValidationError{Reason: "the btrfs-subvolumes scheme requires the btrfs filesystem"}
	}

	switch req.Filesystem {
	case FilesystemExt4, FilesystemBtrfs, FilesystemXFS:
	default:
		return &ValidationError{Reason: fmt.Sprintf("%s is not a valid root filesystem", req.Filesystem)}
	}

	return nil
}

func rootSizeGiB(req Request, reservedMiB uint64) (uint64, error) {
	diskMiB := req.DiskSize / MiB

	if diskMiB <= reservedMiB+(MinRootGiB+MinHomeGiB)*1024 {
		return 0, &ValidationError{
			Reason: fmt.Sprintf("disk is too small for the separate-home scheme: root needs %d GiB and home needs %d GiB after boot and swap", MinRootGiB, MinHomeGiB),
		}
	}

	maxRootGiB := (diskMiB - reservedMiB - MinHomeGiB*1024) / 1024

	rootGiB := SuggestedRootGiB(req.DiskSize)

	if req.RootSizeGiB != 0 {
		rootGiB = req.RootSizeGiB

		// the operator override is held to the same bounds
		if rootGiB < MinRootGiB {
			return 0, &ValidationError{Reason: fmt.Sprintf("root size %d GiB is below the %d GiB minimum", rootGiB, MinRootGiB)}
		}

		if rootGiB > maxRootGiB {
			return 0, &ValidationError{
				Reason: fmt.Sprintf("root size %d GiB leaves less than %d GiB for home (maximum is %d GiB)", rootGiB, MinHomeGiB, maxRootGiB),
			}
		}
	} else if rootGiB > maxRootGiB {
		rootGiB = maxRootGiB
	}

	return rootGiB, nil
}

// Validate re-checks the central plan invariant: offsets strictly
// increase, entries never overlap, only the final entry consumes the rest
// of the disk, and the fixed reservations fit the device.
func (p *PartitionPlan) Validate() error {
	if len(p.Entries) == 0 {
		return errors.New("empty partition plan")
	}

	diskMiB := p.DiskSize / MiB

	var prevEnd uint64

	for i, e := range p.Entries {
		if e.RestOfDisk {
			if i != len(p.Entries)-1 {
				return fmt.Errorf("entry %d (%s) consumes the rest of the disk but is not last", i, e.Label)
			}

			if e.StartMiB < prevEnd {
				return fmt.Errorf("entry %d (%s) starts at %d MiB, before the previous entry ends at %d MiB", i, e.Label, e.StartMiB, prevEnd)
			}

			continue
		}

		if e.StartMiB < prevEnd || e.SizeMiB == 0 {
			return fmt.Errorf("entry %d (%s) overlaps the previous entry or is empty", i, e.Label)
		}

		prevEnd = e.EndMiB()

		if prevEnd > diskMiB {
			return fmt.Errorf("entry %d (%s) ends at %d MiB, past the end of the %d MiB disk", i, e.Label, prevEnd, diskMiB)
		}
	}

	return nil
}

// Lookup returns the plan entry for a role, or nil.
func (p *PartitionPlan) Lookup(role Role) *Entry {
	for i := range p.Entries {
		if p.Entries[i].Role == role {
			return &p.Entries[i]
		}
	}

	return nil
}
