// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgelinux/installer/internal/pkg/provision"
	"github.com/forgelinux/installer/internal/pkg/state"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "installer",
	Short: "Interactive disk provisioning for system installation",
	Long: `The installer probes the machine, plans a partition layout for a chosen
disk, and executes it: partition table, filesystems, mounts and swap.
The resulting configuration is persisted for the downstream installation
phases.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var options = provision.Options{}

func init() {
	rootCmd.PersistentFlags().StringVar(&options.Disk, "disk", "", "The path to the disk to install to")
	rootCmd.PersistentFlags().StringVar(&options.Filesystem, "filesystem", "", "The root filesystem type (ext4, btrfs, xfs)")
	rootCmd.PersistentFlags().StringVar(&options.Scheme, "scheme", "", "The partition scheme (single, separate-home, btrfs-subvolumes)")
	rootCmd.PersistentFlags().StringVar(&options.Table, "table", "", "The partition table type (gpt, mbr); mbr is only legal under BIOS")
	rootCmd.PersistentFlags().StringVar(&options.Bootloader, "bootloader", "", "The bootloader to record (grub, systemd-boot)")
	rootCmd.PersistentFlags().Uint64Var(&options.RootSizeGiB, "root-size", 0, "Root partition size in GiB for the separate-home scheme")
	rootCmd.PersistentFlags().Uint64Var(&options.SwapSizeGiB, "swap-size", 0, "Swap partition size in GiB; 0 derives it from RAM")
	rootCmd.PersistentFlags().StringVar(&options.Target, "target", provision.DefaultTarget, "The directory the provisioned tree is mounted on")
	rootCmd.PersistentFlags().StringVar(&options.ConfigPath, "config", state.DefaultPath, "The path of the persisted installer configuration")
	rootCmd.PersistentFlags().StringVar(&options.MarkerPath, "marker", state.DefaultMarkerPath, "The path of the progress marker file")
}
