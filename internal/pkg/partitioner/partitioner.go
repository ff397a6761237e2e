// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package partitioner executes a partition plan against a real block
// device. The execution path is keyed on the (boot mode, table type)
// pair; within a path the sequence of destructive operations is fixed
// and applied in plan order.
package partitioner

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/siderolabs/go-cmd/pkg/cmd"
	"github.com/siderolabs/go-retry/retry"
	"golang.org/x/sys/unix"

	"github.com/forgelinux/installer/internal/pkg/devname"
	"github.com/forgelinux/installer/internal/pkg/layout"
	"github.com/forgelinux/installer/internal/pkg/safety"
)

// nodeWaitTimeout bounds the wait for the kernel to publish the first
// partition node after a table re-read.
const nodeWaitTimeout = 10 * time.Second

// ResolvedPartitions maps each planned role to the concrete device node
// the kernel assigned after partitioning. It is computed exactly once;
// later phases read it from persisted state instead of re-deriving it.
type ResolvedPartitions map[layout.Role]string

// Resolve combines the resolved naming convention of the disk with each
// entry's ordinal position in the plan.
func Resolve(device string, plan *layout.PartitionPlan) ResolvedPartitions {
	resolved := make(ResolvedPartitions, len(plan.Entries))

	for i, e := range plan.Entries {
		resolved[e.Role] = devname.PartitionPath(device, i+1)
	}

	return resolved
}

// ExecutionError is a failed destructive step. The device is left as-is:
// a table discarded by an early wipe cannot be un-wiped, so there is no
// rollback and no partial retry.
type ExecutionError struct {
	Step    string
	Device  string
	Command string
	Err     error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("partitioning step %q failed on %s", e.Step, e.Device)

	if e.Command != "" {
		msg += fmt.Sprintf(" (command: %s)", e.Command)
	}

	return msg + ": " + e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Runner executes a host command; tests swap it out.
type Runner func(ctx context.Context, name string, args ...string) (string, error)

// Partitioner applies partition plans to cleared devices.
type Partitioner struct {
	run    Runner
	printf func(string, ...any)
}

// New builds a Partitioner.
func New(printf func(string, ...any)) *Partitioner {
	if printf == nil {
		printf = func(string, ...any) {}
	}

	return &Partitioner{
		run: func(ctx context.Context, name string, args ...string) (string, error) {
			return cmd.RunContext(ctx, name, args...)
		},
		printf: printf,
	}
}

// WithRunner overrides the command runner (tests only).
func (p *Partitioner) WithRunner(run Runner) *Partitioner {
	p.run = run

	return p
}

// Execute partitions the cleared device per the plan, triggers a kernel
// table re-read and returns the resolved device nodes.
func (p *Partitioner) Execute(ctx context.Context, cleared *safety.ClearedDevice, plan *layout.PartitionPlan) (ResolvedPartitions, error) {
	device := cleared.Path

	switch {
	case plan.TableType == layout.TableTypeGPT:
		if err := p.executeGPT(ctx, device, plan); err != nil {
			return nil, err
		}
	case plan.BootMode == layout.BootModeBIOS && plan.TableType == layout.TableTypeMBR:
		if err := p.executeMBR(ctx, device, plan); err != nil {
			return nil, err
		}
	default:
		return nil, &ExecutionError{
			Step:   "select execution path",
			Device: device,
			Err:    fmt.Errorf("unsupported boot mode / table type combination: %s/%s", plan.BootMode, plan.TableType),
		}
	}

	if err := p.rereadTable(device); err != nil {
		// not fatal: some kernels pick the new table up on their own
		p.printf("partition table re-read on %s failed: %s", device, err)
	}

	resolved := Resolve(device, plan)

	p.waitForNode(ctx, resolved[plan.Entries[0].Role])

	return resolved, nil
}

// rereadTable asks the kernel to re-read the partition table; the re-read
// completes asynchronously to the creation commands.
func (p *Partitioner) rereadTable(device string) error {
	f, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return err
	}

	defer f.Close() //nolint:errcheck

	_, err = unix.IoctlRetInt(int(f.Fd()), unix.BLKRRPART)

	return err
}

// waitForNode polls until the partition device node exists. Exhausting
// the retry budget is a soft failure: the node race is not observable on
// every kernel, so we warn and proceed.
func (p *Partitioner) waitForNode(ctx context.Context, path string) {
	p.printf("waiting for %s to appear", path)

	err := retry.Constant(nodeWaitTimeout, retry.WithUnits(100*time.Millisecond)).RetryWithContext(ctx, func(context.Context) error {
		if _, statErr := os.Stat(path); statErr != nil {
			return retry.ExpectedError(statErr)
		}

		return nil
	})
	if err != nil {
		p.printf("warning: %s did not appear within %s, proceeding anyway", path, nodeWaitTimeout)
	}
}
