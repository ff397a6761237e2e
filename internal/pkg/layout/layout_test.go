// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package layout_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgelinux/installer/internal/pkg/layout"
)

func TestSwapSize(t *testing.T) {
	for _, test := range []struct {
		name string

		ramSize uint64

		expected uint64
	}{
		{
			name:     "16GiB",
			ramSize:  16 * layout.GiB,
			expected: 18 * layout.GiB,
		},
		{
			name:     "64GiB",
			ramSize:  64 * layout.GiB,
			expected: 66 * layout.GiB,
		},
		{
			name:     "128GiB",
			ramSize:  128 * layout.GiB,
			expected: 5 * layout.GiB,
		},
		{
			name:     "not quite 8GiB as the firmware reports it",
			ramSize:  8*layout.GiB - 200*layout.MiB,
			expected: 10 * layout.GiB,
		},
		{
			name:     "no RAM at all still gets the floor",
			ramSize:  0,
			expected: 2 * layout.GiB,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, layout.SwapSize(test.ramSize))
		})
	}
}

func TestPlanInvariants(t *testing.T) {
	// the central invariant must hold over the whole input space, not just
	// the happy paths
	for _, diskGiB := range []uint64{20, 30, 63, 64, 120, 500, 4096} {
		for _, ramGiB := range []uint64{1, 4, 16, 64, 256} {
			for _, scheme := range []layout.Scheme{layout.SchemeSingle, layout.SchemeSeparateHome, layout.SchemeBtrfsSubvolumes} {
				for _, mode := range []layout.BootMode{layout.BootModeUEFI, layout.BootModeBIOS} {
					fs := layout.FilesystemExt4
					if scheme == layout.SchemeBtrfsSubvolumes {
						fs = layout.FilesystemBtrfs
					}

					table := layout.TableTypeGPT
					if mode == layout.BootModeBIOS && diskGiB%2 == 0 {
						table = layout.TableTypeMBR
					}

					plan, err := layout.Plan(layout.Request{
						DiskSize:   diskGiB * layout.GiB,
						RAMSize:    ramGiB * layout.GiB,
						BootMode:   mode,
						TableType:  table,
						Scheme:     scheme,
						Filesystem: fs,
					})

					if err != nil {
						// small disks legitimately reject separate-home;
						// anything else is a bug
						assert.IsType(t, &layout.ValidationError{}, err)

						continue
					}

					require.NoError(t, plan.Validate())

					var prevEnd, total uint64

					for _, e := range plan.Entries {
						assert.GreaterOrEqual(t, e.StartMiB, prevEnd)

						if !e.RestOfDisk {
							prevEnd = e.EndMiB()
							total += e.SizeMiB
						}
					}

					assert.LessOrEqual(t, total*layout.MiB, diskGiB*layout.GiB)
				}
			}
		}
	}
}

func TestPlanSeparateHome(t *testing.T) {
	plan, err := layout.Plan(layout.Request{
		DiskSize:   500 * layout.GiB,
		RAMSize:    16 * layout.GiB,
		BootMode:   layout.BootModeUEFI,
		TableType:  layout.TableTypeGPT,
		Scheme:     layout.SchemeSeparateHome,
		Filesystem: layout.FilesystemExt4,
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(18*layout.GiB), plan.SwapSize)
	assert.False(t, plan.SchemeForced)

	require.Len(t, plan.Entries, 4)

	efi, swap, root, home := plan.Entries[0], plan.Entries[1], plan.Entries[2], plan.Entries[3]

	assert.Equal(t, layout.RoleEFI, efi.Role)
	assert.Equal(t, uint64(1024), efi.SizeMiB)
	assert.Equal(t, uint64(1), efi.StartMiB)

	assert.Equal(t, layout.RoleSwap, swap.Role)
	assert.Equal(t, efi.EndMiB(), swap.StartMiB)

	// 500 * 128/512 = 125 GiB suggested root
	assert.Equal(t, layout.RoleRoot, root.Role)
	assert.Equal(t, uint64(125*1024), root.SizeMiB)
	assert.Equal(t, swap.EndMiB(), root.StartMiB)

	// home consumes the rest of the disk, no computed end offset
	assert.Equal(t, layout.RoleHome, home.Role)
	assert.True(t, home.RestOfDisk)
	assert.Equal(t, root.EndMiB(), home.StartMiB)
}

func TestPlanSeparateHomeOverride(t *testing.T) {
	for _, test := range []struct {
		name string

		rootSizeGiB uint64

		expectedErr string
	}{
		{
			name:        "valid override",
			rootSizeGiB: 200,
		},
		{
			name:        "below minimum",
			rootSizeGiB: 32,
			expectedErr: "below the 64 GiB minimum",
		},
		{
			name:        "leaves no room for home",
			rootSizeGiB: 495,
			expectedErr: "leaves less than 10 GiB for home",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			plan, err := layout.Plan(layout.Request{
				DiskSize:    500 * layout.GiB,
				RAMSize:     16 * layout.GiB,
				BootMode:    layout.BootModeUEFI,
				TableType:   layout.TableTypeGPT,
				Scheme:      layout.SchemeSeparateHome,
				Filesystem:  layout.FilesystemExt4,
				RootSizeGiB: test.rootSizeGiB,
			})

			if test.expectedErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), test.expectedErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.rootSizeGiB*1024, plan.Lookup(layout.RoleRoot).SizeMiB)
		})
	}
}

func TestPlanSwapOverride(t *testing.T) {
	t.Run("override replaces derived size", func(t *testing.T) {
		plan, err := layout.Plan(layout.Request{
			DiskSize:    500 * layout.GiB,
			RAMSize:     16 * layout.GiB,
			BootMode:    layout.BootModeUEFI,
			TableType:   layout.TableTypeGPT,
			Scheme:      layout.SchemeSingle,
			Filesystem:  layout.FilesystemExt4,
			SwapSizeGiB: 8,
		})
		require.NoError(t, err)

		assert.Equal(t, uint64(8*layout.GiB), plan.SwapSize)
		assert.Equal(t, uint64(8*1024), plan.Lookup(layout.RoleSwap).SizeMiB)
		assert.False(t, plan.SwapCapped)
	})

	t.Run("small-disk cap still applies", func(t *testing.T) {
		plan, err := layout.Plan(layout.Request{
			DiskSize:    30 * layout.GiB,
			RAMSize:     8 * layout.GiB,
			BootMode:    layout.BootModeUEFI,
			TableType:   layout.TableTypeGPT,
			Scheme:      layout.SchemeSingle,
			Filesystem:  layout.FilesystemExt4,
			SwapSizeGiB: 4,
		})
		require.NoError(t, err)

		assert.Equal(t, uint64(2*layout.GiB), plan.SwapSize)
		assert.True(t, plan.SwapCapped)
	})

	t.Run("override rescues a big-RAM mid-size disk", func(t *testing.T) {
		// RAM-derived swap (66 GiB) would not leave room for root here.
		req := layout.Request{
			DiskSize:   64 * layout.GiB,
			RAMSize:    64 * layout.GiB,
			BootMode:   layout.BootModeUEFI,
			TableType:  layout.TableTypeGPT,
			Scheme:     layout.SchemeSingle,
			Filesystem: layout.FilesystemExt4,
		}

		_, err := layout.Plan(req)
		require.Error(t, err)

		var verr *layout.ValidationError

		require.ErrorAs(t, err, &verr)

		req.SwapSizeGiB = 8

		plan, err := layout.Plan(req)
		require.NoError(t, err)
		assert.Equal(t, uint64(8*layout.GiB), plan.SwapSize)
	})

	t.Run("absurd override is rejected", func(t *testing.T) {
		_, err := layout.Plan(layout.Request{
			DiskSize:    500 * layout.GiB,
			RAMSize:     16 * layout.GiB,
			BootMode:    layout.BootModeUEFI,
			TableType:   layout.TableTypeGPT,
			Scheme:      layout.SchemeSingle,
			Filesystem:  layout.FilesystemExt4,
			SwapSizeGiB: 495,
		})

		var verr *layout.ValidationError

		require.ErrorAs(t, err, &verr)
		assert.Contains(t, err.Error(), "leave less than 10 GiB for the root filesystem")
	})
}

func TestPlanSmallDisk(t *testing.T) {
	plan, err := layout.Plan(layout.Request{
		DiskSize:   30 * layout.GiB,
		RAMSize:    8 * layout.GiB,
		BootMode:   layout.BootModeUEFI,
		TableType:  layout.TableTypeGPT,
		Scheme:     layout.SchemeSeparateHome,
		Filesystem: layout.FilesystemExt4,
	})
	require.NoError(t, err)

	// forced to single, surfaced, never silent
	assert.Equal(t, layout.SchemeSingle, plan.Scheme)
	assert.True(t, plan.SchemeForced)

	assert.Equal(t, uint64(2*layout.GiB), plan.SwapSize)
	assert.True(t, plan.SwapCapped)

	require.Len(t, plan.Entries, 3)

	assert.Equal(t, uint64(512), plan.Entries[0].SizeMiB)

	root := plan.Lookup(layout.RoleRoot)
	require.NotNil(t, root)
	assert.True(t, root.RestOfDisk)
	assert.Nil(t, plan.Lookup(layout.RoleHome))
}

func TestPlanBIOS(t *testing.T) {
	for _, test := range []struct {
		name string

		table layout.TableType

		expectedRoles []layout.Role
	}{
		{
			name:          "gpt",
			table:         layout.TableTypeGPT,
			expectedRoles: []layout.Role{layout.RoleBIOSBoot, layout.RoleBoot, layout.RoleSwap, layout.RoleRoot},
		},
		{
			name:          "mbr",
			table:         layout.TableTypeMBR,
			expectedRoles: []layout.Role{layout.RoleBoot, layout.RoleSwap, layout.RoleRoot},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			plan, err := layout.Plan(layout.Request{
				DiskSize:   120 * layout.GiB,
				RAMSize:    8 * layout.GiB,
				BootMode:   layout.BootModeBIOS,
				TableType:  test.table,
				Scheme:     layout.SchemeSingle,
				Filesystem: layout.FilesystemXFS,
			})
			require.NoError(t, err)

			roles := make([]layout.Role, 0, len(plan.Entries))
			for _, e := range plan.Entries {
				roles = append(roles, e.Role)
			}

			assert.Equal(t, test.expectedRoles, roles)

			if test.table == layout.TableTypeMBR {
				boot := plan.Lookup(layout.RoleBoot)
				assert.True(t, boot.Bootable)
				assert.EqualValues(t, layout.MBRTypeFAT32LBA, boot.MBRType)
			} else {
				assert.Equal(t, layout.FilesystemNone, plan.Lookup(layout.RoleBIOSBoot).Filesystem)
			}
		})
	}
}

func TestPlanValidation(t *testing.T) {
	for _, test := range []struct {
		name string

		req layout.Request

		expectedErr string
	}{
		{
			name: "disk too small",
			req: layout.Request{
				DiskSize:   10 * layout.GiB,
				RAMSize:    4 * layout.GiB,
				Filesystem: layout.FilesystemExt4,
			},
			expectedErr: "smaller than the 20 GiB minimum",
		},
		{
			name: "mbr under uefi",
			req: layout.Request{
				DiskSize:   100 * layout.GiB,
				RAMSize:    4 * layout.GiB,
				BootMode:   layout.BootModeUEFI,
				TableType:  layout.TableTypeMBR,
				Filesystem: layout.FilesystemExt4,
			},
			expectedErr: "only legal when booting via BIOS",
		},
		{
			name: "subvolumes without btrfs",
			req: layout.Request{
				DiskSize:   100 * layout.GiB,
				RAMSize:    4 * layout.GiB,
				BootMode:   layout.BootModeUEFI,
				Scheme:     layout.SchemeBtrfsSubvolumes,
				Filesystem: layout.FilesystemExt4,
			},
			expectedErr: "requires the btrfs filesystem",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := layout.Plan(test.req)
			require.Error(t, err)

			var validationErr *layout.ValidationError

			assert.ErrorAs(t, err, &validationErr)
			assert.Contains(t, err.Error(), test.expectedErr)
		})
	}
}
