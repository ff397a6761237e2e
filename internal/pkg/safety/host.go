// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package safety

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// LinuxHost is the Host implementation backed by real syscalls.
type LinuxHost struct{}

// IsBlockDevice implements Host.
func (LinuxHost) IsBlockDevice(dev string) bool {
	var st unix.Stat_t

	if err := unix.Stat(dev, &st); err != nil {
		return false
	}

	return st.Mode&unix.S_IFMT == unix.S_IFBLK
}

// ReadFirstSector implements Host: it proves the device is readable by
// reading one sector off its start.
func (LinuxHost) ReadFirstSector(dev string) error {
	f, err := os.Open(dev)
	if err != nil {
		return err
	}

	defer f.Close() //nolint:errcheck

	buf := make([]byte, 512)

	if _, err = f.Read(buf); err != nil {
		return fmt.Errorf("failed to read the first sector: %w", err)
	}

	return nil
}

// Unmount implements Host.
func (LinuxHost) Unmount(target string) error {
	return unix.Unmount(target, 0)
}

// Swapoff implements Host.
func (LinuxHost) Swapoff(dev string) error {
	return unix.Swapoff(dev)
}
