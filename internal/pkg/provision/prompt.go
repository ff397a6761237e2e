// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package provision

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/siderolabs/gen/xslices"

	"github.com/forgelinux/installer/internal/pkg/layout"
	"github.com/forgelinux/installer/internal/pkg/probe"
	"github.com/forgelinux/installer/internal/pkg/safety"
)

var warn = color.New(color.FgRed, color.Bold)

// readLine reads one line of operator input. With no input stream the
// flow is non-interactive and an unanswered prompt is an error.
func (p *Provisioner) readLine(prompt string) (string, error) {
	if p.in == nil {
		return "", fmt.Errorf("%s: no value given and input is not interactive", prompt)
	}

	fmt.Fprintf(p.out, "%s: ", prompt)

	reader, ok := p.in.(*bufio.Reader)
	if !ok {
		reader = bufio.NewReader(p.in)
		p.in = reader
	}

	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read input: %w", err)
	}

	return strings.TrimSpace(line), nil
}

// choose prompts until the answer is one of the given values. An empty
// answer picks the default.
func (p *Provisioner) choose(prompt string, values []string, def string) (string, error) {
	full := fmt.Sprintf("%s [%s] (default %s)", prompt, strings.Join(values, "/"), def)

	for {
		answer, err := p.readLine(full)
		if err != nil {
			return "", err
		}

		if answer == "" {
			return def, nil
		}

		for _, v := range values {
			if answer == v {
				return answer, nil
			}
		}

		fmt.Fprintf(p.out, "%q is not one of %s\n", answer, strings.Join(values, ", "))
	}
}

// selectDisk resolves the target device from the flag or an interactive
// pick over the probed inventory, returning its path and size.
func (p *Provisioner) selectDisk() (string, uint64, error) {
	disks, err := p.deps.Prober.Disks()
	if err != nil {
		return "", 0, fmt.Errorf("probe disks: %w", err)
	}

	if p.opts.Disk != "" {
		for _, d := range disks {
			if d.Path == p.opts.Disk || d.Name == strings.TrimPrefix(p.opts.Disk, "/dev/") {
				return d.Path, d.Size, nil
			}
		}

		return "", 0, fmt.Errorf("disk %s not found in inventory (have %s)",
			p.opts.Disk, strings.Join(xslices.Map(disks, func(d probe.Disk) string { return d.Path }), ", "))
	}

	if len(disks) == 0 {
		return "", 0, fmt.Errorf("no installable disks found")
	}

	fmt.Fprintln(p.out, "Available disks:")
	renderDisks(p.out, disks)

	for {
		answer, err := p.readLine("Install to device")
		if err != nil {
			return "", 0, err
		}

		for _, d := range disks {
			if answer == d.Path || answer == d.Name {
				return d.Path, d.Size, nil
			}
		}

		fmt.Fprintf(p.out, "%q is not an installable disk\n", answer)
	}
}

// buildRequest turns probed facts plus options/prompts into a layout
// request.
func (p *Provisioner) buildRequest(mode layout.BootMode, ram, diskSize uint64) (layout.Request, error) {
	req := layout.Request{
		DiskSize: diskSize,
		RAMSize:  ram,
		BootMode: mode,
	}

	table := p.opts.Table
	if table == "" {
		if mode == layout.BootModeBIOS {
			var err error

			table, err = p.choose("Partition table", []string{"gpt", "mbr"}, "gpt")
			if err != nil {
				return req, err
			}
		} else {
			table = "gpt"
		}
	}

	var err error

	req.TableType, err = layout.ParseTableType(table)
	if err != nil {
		return req, err
	}

	fs := p.opts.Filesystem
	if fs == "" {
		fs, err = p.choose("Root filesystem", []string{"ext4", "btrfs", "xfs"}, "ext4")
		if err != nil {
			return req, err
		}
	}

	req.Filesystem, err = layout.ParseRootFilesystem(fs)
	if err != nil {
		return req, err
	}

	scheme := p.opts.Scheme
	if scheme == "" {
		choices := []string{"single", "separate-home"}
		if req.Filesystem == layout.FilesystemBtrfs {
			choices = append(choices, "btrfs-subvolumes")
		}

		scheme, err = p.choose("Partition scheme", choices, "single")
		if err != nil {
			return req, err
		}
	}

	req.Scheme, err = layout.ParseScheme(scheme)
	if err != nil {
		return req, err
	}

	req.RootSizeGiB = p.opts.RootSizeGiB

	if req.Scheme == layout.SchemeSeparateHome && req.RootSizeGiB == 0 && p.in != nil {
		suggested := layout.SuggestedRootGiB(diskSize)

		answer, err := p.readLine(fmt.Sprintf("Root partition size in GiB (default %d)", suggested))
		if err != nil {
			return req, err
		}

		if answer != "" {
			req.RootSizeGiB, err = strconv.ParseUint(answer, 10, 64)
			if err != nil {
				return req, fmt.Errorf("root size: %w", err)
			}
		}
	}

	req.SwapSizeGiB = p.opts.SwapSizeGiB

	if req.SwapSizeGiB == 0 && p.in != nil {
		derived := layout.SwapSize(ram) / layout.GiB

		answer, err := p.readLine(fmt.Sprintf("Swap partition size in GiB (default %d)", derived))
		if err != nil {
			return req, err
		}

		if answer != "" {
			req.SwapSizeGiB, err = strconv.ParseUint(answer, 10, 64)
			if err != nil {
				return req, fmt.Errorf("swap size: %w", err)
			}
		}
	}

	return req, nil
}

// selectBootloader resolves the bootloader choice; systemd-boot needs
// UEFI firmware.
func (p *Provisioner) selectBootloader(mode layout.BootMode) (string, error) {
	bootloader := p.opts.Bootloader

	if bootloader == "" {
		if mode == layout.BootModeBIOS {
			return "grub", nil
		}

		var err error

		bootloader, err = p.choose("Bootloader", []string{"grub", "systemd-boot"}, "grub")
		if err != nil {
			return "", err
		}
	}

	switch bootloader {
	case "grub":
	case "systemd-boot":
		if mode != layout.BootModeUEFI {
			return "", fmt.Errorf("systemd-boot requires UEFI firmware")
		}
	default:
		return "", fmt.Errorf("unknown bootloader %q (expected grub or systemd-boot)", bootloader)
	}

	return bootloader, nil
}

// confirmWipe gates the destructive phase behind the exact confirmation
// phrase, from the flag or typed by the operator.
func (p *Provisioner) confirmWipe(device string, plan *layout.PartitionPlan) error {
	input := p.opts.WipeConfirmation

	if input == "" {
		warn.Fprintf(p.out, "This will IRREVERSIBLY ERASE all data on %s.\n", device)

		var err error

		input, err = p.readLine(fmt.Sprintf("Type %q to continue", safety.ConfirmationPhrase(device)))
		if err != nil {
			return err
		}
	}

	return safety.Confirm(input, device)
}

// renderDisks prints the pick table for the device prompt.
func renderDisks(w io.Writer, disks []probe.Disk) {
	for _, d := range disks {
		kind := "SSD"
		if d.Rotational {
			kind = "HDD"
		}

		model := d.Model
		if model == "" {
			model = "unknown model"
		}

		fmt.Fprintf(w, "  %-14s %8s  %-3s  %s\n", d.Path, humanize.IBytes(d.Size), kind, model)
	}
}

// renderPlan prints the computed layout before the confirmation prompt.
func (p *Provisioner) renderPlan(device string, plan *layout.PartitionPlan, parts map[layout.Role]string) {
	fmt.Fprintf(p.out, "\nPlanned layout for %s (%s, %s table, %s scheme):\n",
		device, humanize.IBytes(plan.DiskSize), plan.TableType, plan.Scheme)

	for i, e := range plan.Entries {
		size := humanize.IBytes(e.Size())
		if e.RestOfDisk {
			size = "rest of disk"
		}

		fs := e.Filesystem.String()
		if e.Filesystem == layout.FilesystemNone {
			fs = "(raw)"
		}

		fmt.Fprintf(p.out, "  %2d  %-6s %-6s %12s  %s\n", i+1, e.Label, fs, size, parts[e.Role])
	}

	if plan.SchemeForced {
		warn.Fprintf(p.out, "NOTE: disk is smaller than %d GiB, falling back to the single partition scheme\n", layout.SmallDiskThreshold/layout.GiB)
	}

	if plan.SwapCapped {
		fmt.Fprintf(p.out, "NOTE: swap capped at %s on this small disk\n", humanize.IBytes(plan.SwapSize))
	}

	fmt.Fprintln(p.out)
}
