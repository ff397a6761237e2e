// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package probe

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Disk describes one installable block device as probed from sysfs.
type Disk struct {
	Name       string // sda
	Path       string // /dev/sda
	Size       uint64 // bytes
	Rotational bool
	Model      string
}

// skipPrefixes name device families which are never installation targets.
var skipPrefixes = []string{"loop", "ram", "zram", "sr", "fd", "dm-", "md", "nbd"}

// Disks walks /sys/block and returns the installable whole disks.
func (p *Prober) Disks() ([]Disk, error) {
	root := filepath.Join(p.root, "sys/block")

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", root, err)
	}

	disks := make([]Disk, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()

		if skipDevice(name) {
			continue
		}

		disk, err := p.readDisk(root, name)
		if err != nil {
			if os.IsNotExist(err) {
				// device disappeared mid-walk
				continue
			}

			return nil, err
		}

		if disk.Size == 0 {
			continue
		}

		disks = append(disks, disk)
	}

	return disks, nil
}

func skipDevice(name string) bool {
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}

	return false
}

func (p *Prober) readDisk(root, name string) (Disk, error) {
	disk := Disk{
		Name: name,
		Path: "/dev/" + name,
	}

	raw, err := os.ReadFile(filepath.Join(root, name, "size"))
	if err != nil {
		return disk, err
	}

	sectors, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return disk, fmt.Errorf("failed to parse size of %s: %w", name, err)
	}

	// sysfs sizes are always in 512-byte sectors
	disk.Size = sectors * 512

	if raw, err = os.ReadFile(filepath.Join(root, name, "queue", "rotational")); err == nil {
		disk.Rotational = strings.TrimSpace(string(raw)) == "1"
	}

	if raw, err = os.ReadFile(filepath.Join(root, name, "device", "model")); err == nil {
		disk.Model = strings.TrimSpace(string(raw))
	}

	return disk, nil
}
