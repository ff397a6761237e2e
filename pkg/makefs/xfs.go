// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package makefs

import (
	"context"
	"errors"

	"github.com/siderolabs/go-cmd/pkg/cmd"
)

// XFS creates a XFS filesystem on the specified partition.
func XFS(ctx context.Context, partname string, setters ...Option) error {
	if partname == "" {
		return errors.New("missing path to disk")
	}

	opts := NewDefaultOptions(setters...)

	// The ftype=1 naming option is required by overlayfs.
	// The bigtime=1 metadata option enables timestamps beyond 2038.
	args := []string{"-n", "ftype=1", "-m", "bigtime=1"}

	if opts.Force {
		args = append(args, "-f")
	}

	if opts.Label != "" {
		args = append(args, "-L", opts.Label)
	}

	args = append(args, partname)

	_, err := cmd.RunContext(ctx, "mkfs.xfs", args...)

	return err
}
