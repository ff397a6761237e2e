// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package mount assembles the installation target filesystem tree.
package mount

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/siderolabs/go-retry/retry"
	"golang.org/x/sys/unix"
)

// Hooks are the host mount operations. Tests substitute recording fakes.
type Hooks struct {
	Mount    func(source, target, fstype, data string) error
	Unmount  func(target string) error
	Swapon   func(device string) error
	Swapoff  func(device string) error
	MkdirAll func(path string) error
}

func defaultHooks() Hooks {
	return Hooks{
		Mount: func(source, target, fstype, data string) error {
			return unix.Mount(source, target, fstype, 0, data)
		},
		Unmount: func(target string) error {
			return unix.Unmount(target, 0)
		},
		Swapon: func(device string) error {
			return unix.Swapon(device, 0)
		},
		Swapoff: unix.Swapoff,
		MkdirAll: func(path string) error {
			return os.MkdirAll(path, 0o755)
		},
	}
}

// Mounter activates and deactivates the target tree.
type Mounter struct {
	hooks  Hooks
	printf func(string, ...any)
}

// Option configures the Mounter.
type Option func(*Mounter)

// WithHooks overrides the host operations.
func WithHooks(h Hooks) Option {
	return func(m *Mounter) {
		m.hooks = h
	}
}

// New builds a Mounter logging via printf.
func New(printf func(string, ...any), opts ...Option) *Mounter {
	if printf == nil {
		printf = log.Printf
	}

	m := &Mounter{
		hooks:  defaultHooks(),
		printf: printf,
	}

	for _, o := range opts {
		o(m)
	}

	return m
}

// Activate mounts every point in order and enables swap. A previously
// half-assembled tree is torn down first, so re-running after an
// interrupted attempt converges instead of failing with EBUSY.
func (m *Mounter) Activate(ctx context.Context, points []Point, swapDevice string) error {
	m.Deactivate(points, swapDevice)

	for _, p := range points {
		if err := m.hooks.MkdirAll(p.Target); err != nil {
			return fmt.Errorf("create mountpoint %s: %w", p.Target, err)
		}

		m.printf("mounting %s on %s (%s, %s)", p.Source, p.Target, p.FSType, p.Data)

		if err := m.mountRetry(ctx, p); err != nil {
			return fmt.Errorf("mount %s on %s: %w", p.Source, p.Target, err)
		}
	}

	if swapDevice != "" {
		m.printf("enabling swap on %s", swapDevice)

		if err := m.hooks.Swapon(swapDevice); err != nil {
			return fmt.Errorf("swapon %s: %w", swapDevice, err)
		}
	}

	return nil
}

// Deactivate tears the tree down in reverse mount order, best effort.
// Targets which are not mounted are skipped silently.
func (m *Mounter) Deactivate(points []Point, swapDevice string) {
	if swapDevice != "" {
		if err := m.hooks.Swapoff(swapDevice); err != nil && !ignorable(err) {
			m.printf("swapoff %s failed: %s", swapDevice, err)
		}
	}

	for i := len(points) - 1; i >= 0; i-- {
		if err := m.hooks.Unmount(points[i].Target); err != nil && !ignorable(err) {
			m.printf("unmount %s failed: %s", points[i].Target, err)
		}
	}
}

// mountRetry retries a mount for a short window when the node is busy,
// which covers udev still holding the fresh partition open.
func (m *Mounter) mountRetry(ctx context.Context, p Point) error {
	return retry.Constant(5*time.Second, retry.WithUnits(100*time.Millisecond)).RetryWithContext(ctx, func(context.Context) error {
		err := m.hooks.Mount(p.Source, p.Target, p.FSType, p.Data)
		if errors.Is(err, unix.EBUSY) {
			return retry.ExpectedError(err)
		}

		return err
	})
}

// ignorable reports errors Deactivate treats as already inactive.
func ignorable(err error) bool {
	return errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOENT)
}
