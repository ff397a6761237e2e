// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package mount

import (
	"fmt"
	"path/filepath"

	"github.com/forgelinux/installer/internal/pkg/layout"
	"github.com/forgelinux/installer/internal/pkg/partitioner"
)

// Point is a single mount to perform under the installation target.
type Point struct {
	Source string
	Target string
	FSType string
	Data   string
}

// ProfileFor returns the mount options used for a filesystem type. The
// profiles are computed once at planning time and reused verbatim for the
// generated fstab, so a remount after first boot sees the same options.
func ProfileFor(fs layout.Filesystem) string {
	switch fs {
	case layout.FilesystemBtrfs:
		return "compress=zstd,space_cache=v2,discard=async"
	case layout.FilesystemExt4:
		return "commit=60,errors=remount-ro"
	case layout.FilesystemXFS:
		return "inode64,logbufs=8"
	case layout.FilesystemVFAT:
		return "fmask=0077,dmask=0077"
	default:
		return ""
	}
}

func fstypeName(fs layout.Filesystem) string {
	if fs == layout.FilesystemVFAT {
		return "vfat"
	}

	return fs.String()
}

// Points derives the ordered mount list for a finished plan: the root
// filesystem first, then nested filesystems, then the boot partition.
// Swap is activated separately and never appears here.
func Points(target string, parts partitioner.ResolvedPartitions, plan *layout.PartitionPlan) ([]Point, error) {
	root, ok := parts[layout.RoleRoot]
	if !ok {
		return nil, fmt.Errorf("plan has no root partition")
	}

	rootFS := fstypeName(plan.Filesystem)
	rootData := ProfileFor(plan.Filesystem)

	var points []Point

	switch plan.Scheme {
	case layout.SchemeSingle, layout.SchemeSeparateHome:
		points = append(points, Point{
			Source: root,
			Target: target,
			FSType: rootFS,
			Data:   rootData,
		})

		if home, ok := parts[layout.RoleHome]; ok {
			points = append(points, Point{
				Source: home,
				Target: filepath.Join(target, "home"),
				FSType: rootFS,
				Data:   rootData,
			})
		}
	case layout.SchemeBtrfsSubvolumes:
		for _, subvol := range layout.Subvolumes {
			points = append(points, Point{
				Source: root,
				Target: filepath.Join(target, subvolTarget(subvol)),
				FSType: rootFS,
				Data:   "subvol=" + subvol + "," + rootData,
			})
		}
	}

	// The boot filesystem nests under the mounted root.
	switch {
	case plan.BootMode == layout.BootModeUEFI:
		points = append(points, Point{
			Source: parts[layout.RoleEFI],
			Target: filepath.Join(target, "boot/efi"),
			FSType: "vfat",
			Data:   ProfileFor(layout.FilesystemVFAT),
		})
	default:
		points = append(points, Point{
			Source: parts[layout.RoleBoot],
			Target: filepath.Join(target, "boot"),
			FSType: "vfat",
			Data:   ProfileFor(layout.FilesystemVFAT),
		})
	}

	return points, nil
}

func subvolTarget(subvol string) string {
	switch subvol {
	case "@":
		return "."
	case "@.snapshots":
		return ".snapshots"
	default:
		return subvol[1:]
	}
}
