// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package layout

import "github.com/google/uuid"

// GPT partition type GUIDs, per the Discoverable Partitions Specification.
var (
	// TypeEFISystemPartition marks the EFI system partition.
	TypeEFISystemPartition = uuid.MustParse("C12A7328-F81F-11D2-BA4B-00A0C93EC93B")

	// TypeBIOSBoot marks the GRUB BIOS boot partition on GPT disks.
	TypeBIOSBoot = uuid.MustParse("21686148-6449-6E6F-744E-656564454649")

	// TypeLinuxSwap marks Linux swap space.
	TypeLinuxSwap = uuid.MustParse("0657FD6D-A4AB-43C4-84E5-0933C84B4F4F")

	// TypeLinuxRootX8664 marks the root filesystem on x86-64.
	TypeLinuxRootX8664 = uuid.MustParse("4F68BCE3-E8CD-4DB1-96E7-FBCAF984B709")

	// TypeLinuxHome marks a /home filesystem.
	TypeLinuxHome = uuid.MustParse("933AC7E1-2EB4-4F13-B844-0E14E2AEF915")
)

// MBR partition type bytes.
const (
	// MBRTypeFAT32LBA is a FAT32 partition with LBA addressing.
	MBRTypeFAT32LBA = 0x0c
	// MBRTypeLinuxSwap is Linux swap space.
	MBRTypeLinuxSwap = 0x82
	// MBRTypeLinux is a native Linux partition.
	MBRTypeLinux = 0x83
)
