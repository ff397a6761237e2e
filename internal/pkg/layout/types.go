// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package layout

import "fmt"

// BootMode is the firmware boot mode of the running machine.
type BootMode int

const (
	// BootModeUEFI indicates boot via UEFI firmware.
	BootModeUEFI BootMode = iota
	// BootModeBIOS indicates boot via legacy BIOS firmware.
	BootModeBIOS
)

func (m BootMode) String() string {
	switch m {
	case BootModeUEFI:
		return "uefi"
	case BootModeBIOS:
		return "bios"
	default:
		return fmt.Sprintf("BootMode(%d)", int(m))
	}
}

// ParseBootMode parses a boot mode name as accepted on the command line.
func ParseBootMode(s string) (BootMode, error) {
	switch s {
	case "uefi":
		return BootModeUEFI, nil
	case "bios":
		return BootModeBIOS, nil
	default:
		return 0, fmt.Errorf("unknown boot mode %q (expected uefi or bios)", s)
	}
}

// TableType is the partition table type to be written to the disk.
type TableType int

const (
	// TableTypeGPT is a GUID partition table.
	TableTypeGPT TableType = iota
	// TableTypeMBR is a legacy DOS partition table, legal only under BIOS.
	TableTypeMBR
)

func (t TableType) String() string {
	switch t {
	case TableTypeGPT:
		return "gpt"
	case TableTypeMBR:
		return "mbr"
	default:
		return fmt.Sprintf("TableType(%d)", int(t))
	}
}

// ParseTableType parses a partition table type name.
func ParseTableType(s string) (TableType, error) {
	switch s {
	case "gpt":
		return TableTypeGPT, nil
	case "mbr", "dos":
		return TableTypeMBR, nil
	default:
		return 0, fmt.Errorf("unknown partition table type %q (expected gpt or mbr)", s)
	}
}

// Scheme is the partition scheme requested by the operator.
type Scheme int

const (
	// SchemeSingle puts everything but boot and swap on a single root partition.
	SchemeSingle Scheme = iota
	// SchemeSeparateHome splits /home out into its own partition.
	SchemeSeparateHome
	// SchemeBtrfsSubvolumes uses a single Btrfs partition with a fixed
	// subvolume set in place of separate partitions.
	SchemeBtrfsSubvolumes
)

func (s Scheme) String() string {
	switch s {
	case SchemeSingle:
		return "single"
	case SchemeSeparateHome:
		return "separate-home"
	case SchemeBtrfsSubvolumes:
		return "btrfs-subvolumes"
	default:
		return fmt.Sprintf("Scheme(%d)", int(s))
	}
}

// ParseScheme parses a partition scheme name.
func ParseScheme(s string) (Scheme, error) {
	switch s {
	case "single":
		return SchemeSingle, nil
	case "separate-home":
		return SchemeSeparateHome, nil
	case "btrfs-subvolumes":
		return SchemeBtrfsSubvolumes, nil
	default:
		return 0, fmt.Errorf("unknown partition scheme %q", s)
	}
}

// Filesystem is a filesystem type a partition is formatted with.
type Filesystem int

const (
	// FilesystemNone marks a partition which is never formatted.
	FilesystemNone Filesystem = iota
	// FilesystemVFAT is FAT32, used for EFI and boot partitions.
	FilesystemVFAT
	// FilesystemSwap is Linux swap space.
	FilesystemSwap
	// FilesystemExt4 is ext4.
	FilesystemExt4
	// FilesystemBtrfs is Btrfs.
	FilesystemBtrfs
	// FilesystemXFS is XFS.
	FilesystemXFS
)

func (f Filesystem) String() string {
	switch f {
	case FilesystemNone:
		return "none"
	case FilesystemVFAT:
		return "vfat"
	case FilesystemSwap:
		return "swap"
	case FilesystemExt4:
		return "ext4"
	case FilesystemBtrfs:
		return "btrfs"
	case FilesystemXFS:
		return "xfs"
	default:
		return fmt.Sprintf("Filesystem(%d)", int(f))
	}
}

// ParseRootFilesystem parses a root filesystem choice. Only filesystems
// which are legal for the root/home partitions are accepted.
func ParseRootFilesystem(s string) (Filesystem, error) {
	switch s {
	case "ext4":
		return FilesystemExt4, nil
	case "btrfs":
		return FilesystemBtrfs, nil
	case "xfs":
		return FilesystemXFS, nil
	default:
		return 0, fmt.Errorf("unknown root filesystem %q (expected ext4, btrfs or xfs)", s)
	}
}

// Role describes the purpose of a planned partition.
type Role int

const (
	// RoleEFI is the EFI system partition.
	RoleEFI Role = iota
	// RoleBIOSBoot is the tiny unformatted BIOS boot partition required by
	// GRUB on BIOS+GPT systems.
	RoleBIOSBoot
	// RoleBoot is a legacy /boot partition (BIOS installs).
	RoleBoot
	// RoleSwap is swap space.
	RoleSwap
	// RoleRoot is the root filesystem.
	RoleRoot
	// RoleHome is a separate /home filesystem.
	RoleHome
)

func (r Role) String() string {
	switch r {
	case RoleEFI:
		return "EFI"
	case RoleBIOSBoot:
		return "BIOS"
	case RoleBoot:
		return "BOOT"
	case RoleSwap:
		return "SWAP"
	case RoleRoot:
		return "ROOT"
	case RoleHome:
		return "HOME"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}
