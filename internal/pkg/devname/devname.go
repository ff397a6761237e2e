// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package devname resolves Linux block-device naming conventions.
//
// Whole disks name their partitions either by appending the partition
// number (sda -> sda1, vdb -> vdb2) or by inserting a 'p' separator when
// the disk name itself ends in a digit (nvme0n1 -> nvme0n1p1,
// mmcblk0 -> mmcblk0p1). Every path of the installer goes through this
// package exactly once per device instead of re-deriving the convention
// at each call site.
package devname

import (
	"strings"

	"github.com/siderolabs/go-blockdevice/v2/partitioning"
)

// PartitionPath returns the device node path of the n-th partition
// (1-based) of the given whole disk.
func PartitionPath(disk string, n int) string {
	return partitioning.DevName(disk, uint(n))
}

// IsPartition reports whether the device node path names a partition
// rather than a whole disk.
func IsPartition(dev string) bool {
	return ParentDisk(dev) != ""
}

// pInfixPrefixes are the device families whose whole-disk names end in a
// digit, so partitions get a 'p' separator (nvme0n1p1, mmcblk0p2).
var pInfixPrefixes = []string{"nvme", "mmcblk", "loop", "md"}

// ParentDisk returns the whole-disk device path a partition belongs to,
// or an empty string when the path already names a whole disk.
func ParentDisk(dev string) string {
	name := strings.TrimPrefix(dev, "/dev/")

	if name == "" || !isDigit(name[len(name)-1]) {
		return ""
	}

	// strip the trailing partition number
	i := len(name)
	for i > 0 && isDigit(name[i-1]) {
		i--
	}

	trimmed := name[:i]

	for _, prefix := range pInfixPrefixes {
		if !strings.HasPrefix(name, prefix) {
			continue
		}

		// nvme0n1p1 style: the number after the final 'p' is the partition
		if strings.HasSuffix(trimmed, "p") && len(trimmed) > len(prefix)+1 && isDigit(trimmed[len(trimmed)-2]) {
			return "/dev/" + trimmed[:len(trimmed)-1]
		}

		// nvme0n1 style whole disk
		return ""
	}

	// sda1 style: what remains must be a bare disk name
	if trimmed == "" || isDigit(trimmed[len(trimmed)-1]) {
		return ""
	}

	return "/dev/" + trimmed
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
