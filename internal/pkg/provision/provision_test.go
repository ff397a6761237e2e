// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package provision_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgelinux/installer/internal/pkg/layout"
	"github.com/forgelinux/installer/internal/pkg/mount"
	"github.com/forgelinux/installer/internal/pkg/partitioner"
	"github.com/forgelinux/installer/internal/pkg/probe"
	"github.com/forgelinux/installer/internal/pkg/provision"
	"github.com/forgelinux/installer/internal/pkg/safety"
	"github.com/forgelinux/installer/internal/pkg/state"
)

func writeFile(t *testing.T, root, path, content string) {
	t.Helper()

	full := filepath.Join(root, path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

// fixtureProber builds a UEFI machine with 16 GiB of RAM and a 500 GiB
// target disk at /dev/sdb.
func fixtureProber(t *testing.T) *probe.Prober {
	t.Helper()

	root := t.TempDir()

	writeFile(t, root, "sys/firmware/efi/fw_platform_size", "64\n")
	writeFile(t, root, "proc/meminfo", "MemTotal:       16777216 kB\n")
	writeFile(t, root, "proc/cpuinfo", "vendor_id\t: GenuineIntel\n")
	writeFile(t, root, "sys/block/sdb/size", "1048576000\n") // 500 GiB
	writeFile(t, root, "sys/block/sdb/queue/rotational", "0\n")
	writeFile(t, root, "sys/block/sdb/device/model", "Samsung SSD 870\n")

	return probe.NewProber(probe.WithRoot(root))
}

type fakes struct {
	ops []string

	guardErr error
}

func (f *fakes) Validate(_ context.Context, device string) (*safety.ClearedDevice, error) {
	if f.guardErr != nil {
		return nil, f.guardErr
	}

	f.ops = append(f.ops, "validate "+device)

	return &safety.ClearedDevice{Path: device}, nil
}

func (f *fakes) Execute(_ context.Context, cleared *safety.ClearedDevice, plan *layout.PartitionPlan) (partitioner.ResolvedPartitions, error) {
	f.ops = append(f.ops, "partition "+cleared.Path)

	return partitioner.Resolve(cleared.Path, plan), nil
}

func (f *fakes) Format(_ context.Context, parts partitioner.ResolvedPartitions, _ *layout.PartitionPlan) error {
	f.ops = append(f.ops, "format "+parts[layout.RoleRoot])

	return nil
}

func (f *fakes) Activate(_ context.Context, points []mount.Point, swapDevice string) error {
	f.ops = append(f.ops, "mount "+points[0].Target+" swap "+swapDevice)

	return nil
}

func (f *fakes) Deactivate([]mount.Point, string) {
	f.ops = append(f.ops, "deactivate")
}

func options(t *testing.T) provision.Options {
	t.Helper()

	dir := t.TempDir()

	return provision.Options{
		Disk:             "/dev/sdb",
		Filesystem:       "ext4",
		Scheme:           "separate-home",
		Bootloader:       "grub",
		WipeConfirmation: "YES, WIPE /dev/sdb",
		Target:           filepath.Join(dir, "target"),
		ConfigPath:       filepath.Join(dir, "installer.conf"),
		MarkerPath:       filepath.Join(dir, "progress"),
	}
}

func deps(t *testing.T, f *fakes) provision.Deps {
	t.Helper()

	return provision.Deps{
		Prober:    fixtureProber(t),
		Guard:     f,
		Executor:  f,
		Formatter: f,
		Mounter:   f,
	}
}

func TestRunNonInteractive(t *testing.T) {
	f := &fakes{}
	opts := options(t)

	var out bytes.Buffer

	p := provision.NewWithDeps(opts, deps(t, f), nil, &out)

	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, []string{
		"validate /dev/sdb",
		"partition /dev/sdb",
		"format /dev/sdb3",
		"mount " + opts.Target + " swap /dev/sdb2",
	}, f.ops)

	milestone, err := state.NewMarker(opts.MarkerPath).Read()
	require.NoError(t, err)
	assert.Equal(t, state.MilestonePartitionsReady, milestone)

	for _, path := range []string{opts.ConfigPath, state.TargetPath(opts.Target)} {
		cfg, err := state.Load(path)
		require.NoError(t, err)

		assert.Equal(t, "uefi", cfg.Get(state.KeyBootMode))
		assert.Equal(t, "gpt", cfg.Get(state.KeyPartitionTable))
		assert.Equal(t, "separate-home", cfg.Get(state.KeyPartitionScheme))
		assert.Equal(t, "ext4", cfg.Get(state.KeyRootFS))
		assert.Equal(t, "/dev/sdb3", cfg.Get(state.KeyRootPartition))
		assert.Equal(t, "/dev/sdb2", cfg.Get(state.KeySwapPartition))
		assert.Equal(t, "/dev/sdb1", cfg.Get(state.KeyEFIPartition))
		assert.Equal(t, "/dev/sdb4", cfg.Get(state.KeyHomePartition))
		assert.Equal(t, "grub", cfg.Get(state.KeyBootloader))
		assert.Equal(t, "intel", cfg.Get(state.KeyCPUVendor))
		assert.Equal(t, "no", cfg.Get(state.KeyMicrocodeInstalled))
	}

	assert.Contains(t, out.String(), "Planned layout for /dev/sdb")
}

func TestRunInteractive(t *testing.T) {
	f := &fakes{}
	opts := options(t)
	opts.Disk = ""
	opts.Filesystem = ""
	opts.Scheme = ""
	opts.Bootloader = ""
	opts.WipeConfirmation = ""

	// answers: device, root filesystem, scheme, swap size, bootloader,
	// confirmation
	in := strings.NewReader(strings.Join([]string{
		"sdb",
		"btrfs",
		"btrfs-subvolumes",
		"8",
		"systemd-boot",
		"YES, WIPE /dev/sdb",
	}, "\n") + "\n")

	var out bytes.Buffer

	p := provision.NewWithDeps(opts, deps(t, f), in, &out)

	require.NoError(t, p.Run(context.Background()))

	cfg, err := state.Load(opts.ConfigPath)
	require.NoError(t, err)

	assert.Equal(t, "btrfs", cfg.Get(state.KeyRootFS))
	assert.Equal(t, "btrfs-subvolumes", cfg.Get(state.KeyPartitionScheme))
	assert.Equal(t, "systemd-boot", cfg.Get(state.KeyBootloader))

	assert.Contains(t, out.String(), "Swap partition size in GiB (default 18)")
	assert.Contains(t, out.String(), "8.0 GiB")

	assert.Contains(t, out.String(), "/dev/sdb")
	assert.Contains(t, out.String(), "IRREVERSIBLY ERASE")
}

func TestRunKeepsForeignConfigKeys(t *testing.T) {
	f := &fakes{}
	opts := options(t)

	// a previous attempt recorded a stale partition, and another writer
	// appended its own key
	stale := state.New()
	stale.Set(state.KeyRootPartition, "/dev/sdz9")
	stale.Set("KEYMAP", "us")
	require.NoError(t, stale.Save(opts.ConfigPath))

	var out bytes.Buffer

	require.NoError(t, provision.NewWithDeps(opts, deps(t, f), nil, &out).Run(context.Background()))

	cfg, err := state.Load(opts.ConfigPath)
	require.NoError(t, err)

	assert.Equal(t, "/dev/sdb3", cfg.Get(state.KeyRootPartition), "this run's values win for keys it owns")
	assert.Equal(t, "us", cfg.Get("KEYMAP"), "foreign keys survive the re-run")
}

func TestRunSwapSizeFlag(t *testing.T) {
	f := &fakes{}
	opts := options(t)
	opts.SwapSizeGiB = 4

	var out bytes.Buffer

	require.NoError(t, provision.NewWithDeps(opts, deps(t, f), nil, &out).Run(context.Background()))

	assert.Contains(t, out.String(), "4.0 GiB", "the rendered plan must show the overridden swap size")
	assert.NotContains(t, out.String(), "18 GiB")
}

func TestRunRejectsBadConfirmation(t *testing.T) {
	f := &fakes{}
	opts := options(t)
	opts.WipeConfirmation = "yes, wipe /dev/sdb"

	var out bytes.Buffer

	err := provision.NewWithDeps(opts, deps(t, f), nil, &out).Run(context.Background())
	require.Error(t, err)

	var mismatch *safety.ErrConfirmationMismatch

	require.ErrorAs(t, err, &mismatch)
	assert.NotContains(t, f.ops, "partition /dev/sdb", "nothing destructive may run without the exact phrase")
}

func TestRunUnknownDisk(t *testing.T) {
	f := &fakes{}
	opts := options(t)
	opts.Disk = "/dev/sdz"

	var out bytes.Buffer

	err := provision.NewWithDeps(opts, deps(t, f), nil, &out).Run(context.Background())
	assert.ErrorContains(t, err, "disk /dev/sdz not found")
}

func TestRunSystemdBootNeedsUEFI(t *testing.T) {
	f := &fakes{}
	opts := options(t)
	opts.Bootloader = "systemd-boot"

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sys/firmware"), 0o755)) // no efi dir: BIOS
	writeFile(t, root, "proc/meminfo", "MemTotal:       16777216 kB\n")
	writeFile(t, root, "sys/block/sdb/size", "1048576000\n")
	writeFile(t, root, "sys/block/sdb/queue/rotational", "0\n")

	d := deps(t, f)
	d.Prober = probe.NewProber(probe.WithRoot(root))

	opts.Table = "gpt"

	var out bytes.Buffer

	err := provision.NewWithDeps(opts, d, nil, &out).Run(context.Background())
	assert.ErrorContains(t, err, "systemd-boot requires UEFI")
}

func TestRunSkipsCompletedPhase(t *testing.T) {
	f := &fakes{}
	opts := options(t)

	require.NoError(t, state.NewMarker(opts.MarkerPath).Advance(state.MilestonePartitionsReady))

	var out bytes.Buffer

	require.NoError(t, provision.NewWithDeps(opts, deps(t, f), nil, &out).Run(context.Background()))

	assert.NotContains(t, f.ops, "partition /dev/sdb")
	assert.NotContains(t, f.ops, "format /dev/sdb3")
}

func TestCleanup(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "installer.conf")

	cfg := state.New()
	cfg.Set(state.KeyRootPartition, "/dev/sdb3")
	cfg.Set(state.KeySwapPartition, "/dev/sdb2")
	cfg.Set(state.KeyHomePartition, "/dev/sdb4")
	cfg.Set(state.KeyPartitionScheme, "separate-home")
	require.NoError(t, cfg.Save(configPath))

	f := &fakes{}

	require.NoError(t, provision.Cleanup(provision.Options{
		ConfigPath: configPath,
		Target:     "/mnt/install",
	}, f, t.Logf))

	assert.Equal(t, []string{"deactivate"}, f.ops)
}

func TestCleanupNothingPersisted(t *testing.T) {
	f := &fakes{}

	require.NoError(t, provision.Cleanup(provision.Options{
		ConfigPath: filepath.Join(t.TempDir(), "missing.conf"),
	}, f, t.Logf))

	assert.Empty(t, f.ops)
}
