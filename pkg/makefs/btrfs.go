// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package makefs

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/siderolabs/go-cmd/pkg/cmd"
)

// Btrfs creates a btrfs filesystem on the specified partition.
func Btrfs(ctx context.Context, partname string, setters ...Option) error {
	if partname == "" {
		return errors.New("missing path to disk")
	}

	opts := NewDefaultOptions(setters...)

	var args []string

	if opts.Force {
		args = append(args, "-f")
	}

	if opts.Label != "" {
		args = append(args, "-L", opts.Label)
	}

	args = append(args, partname)

	_, err := cmd.RunContext(ctx, "mkfs.btrfs", args...)

	return err
}

// BtrfsSubvolume creates a subvolume under a mounted btrfs filesystem root.
func BtrfsSubvolume(ctx context.Context, mountpoint, name string) error {
	if mountpoint == "" {
		return errors.New("missing btrfs mountpoint")
	}

	if name == "" {
		return errors.New("missing subvolume name")
	}

	_, err := cmd.RunContext(ctx, "btrfs", "subvolume", "create", filepath.Join(mountpoint, name))

	return err
}
