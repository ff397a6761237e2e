// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package partitioner

import (
	"context"
	"fmt"
	"strings"

	"github.com/forgelinux/installer/internal/pkg/layout"
)

// partedFsNames maps plan filesystems to the names parted understands.
var partedFsNames = map[layout.Filesystem]string{
	layout.FilesystemVFAT:  "fat32",
	layout.FilesystemSwap:  "linux-swap",
	layout.FilesystemExt4:  "ext4",
	layout.FilesystemBtrfs: "btrfs",
	layout.FilesystemXFS:   "xfs",
}

// PartedCommands renders the fixed parted invocation sequence for a
// BIOS+MBR plan: one mklabel, then one mkpart per entry in plan order,
// then the bootable flags. Offsets are the plan's chained MiB offsets;
// the final entry ends at 100% rather than a computed byte offset.
func PartedCommands(device string, plan *layout.PartitionPlan) [][]string {
	commands := [][]string{
		{"-s", device, "mklabel", "msdos"},
	}

	for _, e := range plan.Entries {
		end := "100%"
		if !e.RestOfDisk {
			end = fmt.Sprintf("%dMiB", e.EndMiB())
		}

		args := []string{"-s", "-a", "optimal", device, "mkpart", "primary"}

		if name, ok := partedFsNames[e.Filesystem]; ok {
			args = append(args, name)
		}

		args = append(args, fmt.Sprintf("%dMiB", e.StartMiB), end)

		commands = append(commands, args)
	}

	for i, e := range plan.Entries {
		if e.Bootable {
			commands = append(commands, []string{"-s", device, "set", fmt.Sprintf("%d", i+1), "boot", "on"})
		}
	}

	return commands
}

// executeMBR applies a BIOS+MBR plan by driving parted non-interactively.
func (p *Partitioner) executeMBR(ctx context.Context, device string, plan *layout.PartitionPlan) error {
	for _, args := range PartedCommands(device, plan) {
		command := "parted " + strings.Join(args, " ")

		p.printf("running %s", command)

		out, err := p.run(ctx, "parted", args...)
		if err != nil {
			return &ExecutionError{
				Step:    "write MBR partition table",
				Device:  device,
				Command: command,
				Err:     fmt.Errorf("%w (output: %s)", err, strings.TrimSpace(out)),
			}
		}

		p.printf("done: %s", command)
	}

	return nil
}
