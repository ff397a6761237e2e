// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package probe gathers the facts about the running live environment the
// installer needs before it is allowed to touch a disk: firmware boot
// mode, disk inventory, RAM size, CPU vendor, and the disks backing the
// live environment itself.
package probe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/procfs"
	"github.com/siderolabs/go-pointer"
	procfscmdline "github.com/siderolabs/go-procfs/procfs"

	"github.com/forgelinux/installer/internal/pkg/devname"
	"github.com/forgelinux/installer/internal/pkg/layout"
)

// Prober reads system facts from sysfs and procfs.
type Prober struct {
	root string
}

// Option configures a Prober.
type Option func(*Prober)

// WithRoot points the prober at an alternative filesystem root; tests use
// it to probe a fixture tree instead of the running system.
func WithRoot(root string) Option {
	return func(p *Prober) {
		p.root = root
	}
}

// NewProber builds a Prober against the running system unless options say
// otherwise.
func NewProber(opts ...Option) *Prober {
	p := &Prober{
		root: "/",
	}

	for _, o := range opts {
		o(p)
	}

	return p
}

// Firmware detects the boot firmware mode and, under UEFI, the firmware
// bitness (64 or 32).
func (p *Prober) Firmware() (mode layout.BootMode, bitness int, err error) {
	efiPath := filepath.Join(p.root, "sys/firmware/efi")

	if _, err = os.Stat(efiPath); err != nil {
		if os.IsNotExist(err) {
			return layout.BootModeBIOS, 0, nil
		}

		return 0, 0, fmt.Errorf("failed to probe %s: %w", efiPath, err)
	}

	bitness = 64

	if raw, readErr := os.ReadFile(filepath.Join(efiPath, "fw_platform_size")); readErr == nil {
		if strings.TrimSpace(string(raw)) == "32" {
			bitness = 32
		}
	}

	return layout.BootModeUEFI, bitness, nil
}

// Memory returns the total RAM size in bytes.
func (p *Prober) Memory() (uint64, error) {
	fs, err := procfs.NewFS(filepath.Join(p.root, "proc"))
	if err != nil {
		return 0, fmt.Errorf("failed to open procfs: %w", err)
	}

	meminfo, err := fs.Meminfo()
	if err != nil {
		return 0, fmt.Errorf("failed to read meminfo: %w", err)
	}

	return pointer.SafeDeref(meminfo.MemTotal) * 1024, nil
}

// CPUVendor returns the CPU vendor tag ("intel", "amd" or "unknown") and
// the matching microcode package name (empty when unknown).
func (p *Prober) CPUVendor() (vendor, microcode string) {
	raw, err := os.ReadFile(filepath.Join(p.root, "proc/cpuinfo"))
	if err != nil {
		return "unknown", ""
	}

	for _, line := range strings.Split(string(raw), "\n") {
		if !strings.HasPrefix(line, "vendor_id") {
			continue
		}

		switch {
		case strings.Contains(line, "GenuineIntel"):
			return "intel", "intel-ucode"
		case strings.Contains(line, "AuthenticAMD"):
			return "amd", "amd-ucode"
		default:
			return "unknown", ""
		}
	}

	return "unknown", ""
}

// ActiveSwaps returns the device paths currently backing active swap.
func (p *Prober) ActiveSwaps() ([]string, error) {
	fs, err := procfs.NewFS(filepath.Join(p.root, "proc"))
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs: %w", err)
	}

	swaps, err := fs.Swaps()
	if err != nil {
		return nil, fmt.Errorf("failed to read swaps: %w", err)
	}

	devices := make([]string, 0, len(swaps))

	for _, s := range swaps {
		if strings.HasPrefix(s.Filename, "/dev/") {
			devices = append(devices, s.Filename)
		}
	}

	return devices, nil
}

// EnvironmentDisks names the whole disks backing the running live
// environment: the mounted root, a separately mounted /boot, and the
// medium the live image booted from. Any of them may be empty when a
// backing disk cannot be identified.
type EnvironmentDisks struct {
	Root string
	Boot string
	Live string
}

// Mount is one device-backed mount of the running system.
type Mount struct {
	Source string
	Target string
	FSType string
}

// Mounts returns the device-backed mounts of the running system.
func (p *Prober) Mounts() ([]Mount, error) {
	mountInfo, err := p.mountInfo()
	if err != nil {
		return nil, err
	}

	mounts := make([]Mount, 0, len(mountInfo))

	for _, m := range mountInfo {
		if !strings.HasPrefix(m.Source, "/dev/") {
			continue
		}

		mounts = append(mounts, Mount{
			Source: m.Source,
			Target: m.MountPoint,
			FSType: m.FSType,
		})
	}

	return mounts, nil
}

// Environment identifies the disks hosting the live environment.
func (p *Prober) Environment() (EnvironmentDisks, error) {
	var disks EnvironmentDisks

	mounts, err := p.Mounts()
	if err != nil {
		return disks, err
	}

	for _, m := range mounts {
		disk := devname.ParentDisk(m.Source)
		if disk == "" {
			disk = m.Source
		}

		switch {
		case m.Target == "/":
			disks.Root = disk
		case m.Target == "/boot" || m.Target == "/boot/efi":
			disks.Boot = disk
		case m.FSType == "iso9660" || strings.Contains(m.Target, "/run/archiso"):
			disks.Live = disk
		}
	}

	if disks.Live == "" {
		disks.Live = p.liveDiskFromCmdline()
	}

	return disks, nil
}

func (p *Prober) mountInfo() ([]*procfs.MountInfo, error) {
	fs, err := procfs.NewFS(filepath.Join(p.root, "proc"))
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs: %w", err)
	}

	self, err := fs.Self()
	if err != nil {
		return nil, fmt.Errorf("failed to open /proc/self: %w", err)
	}

	mounts, err := self.MountInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to read mountinfo: %w", err)
	}

	return mounts, nil
}

// liveDiskFromCmdline resolves the boot medium from the kernel command
// line parameters live images pass to locate themselves.
func (p *Prober) liveDiskFromCmdline() string {
	raw, err := os.ReadFile(filepath.Join(p.root, "proc/cmdline"))
	if err != nil {
		return ""
	}

	cmdline := procfscmdline.NewCmdline(strings.TrimSpace(string(raw)))

	for _, param := range []string{"archisodevice", "img_dev", "root"} {
		value := cmdline.Get(param)
		if value == nil {
			continue
		}

		dev := pointer.SafeDeref(value.First())
		if !strings.HasPrefix(dev, "/dev/") {
			continue
		}

		// by-label/by-uuid links point at the real node
		if resolved, resolveErr := filepath.EvalSymlinks(filepath.Join(p.root, dev)); resolveErr == nil {
			dev = "/dev/" + filepath.Base(resolved)
		}

		if disk := devname.ParentDisk(dev); disk != "" {
			return disk
		}

		return dev
	}

	return ""
}
