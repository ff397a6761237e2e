// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/forgelinux/installer/internal/pkg/provision"
)

// provisionCmd represents the provision command.
var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Partition, format and mount the chosen disk",
	Long: `Runs the full provisioning flow: probe the machine, validate the chosen
disk, compute and show the partition layout, and after an exact typed
confirmation write the partition table, create the filesystems, mount
the target tree and persist the configuration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
		defer stop()

		return provision.New(options, cmd.InOrStdin(), cmd.OutOrStdout()).Run(ctx)
	},
}

func init() {
	provisionCmd.Flags().StringVar(&options.WipeConfirmation, "yes-wipe-disk", "",
		"Skip the interactive confirmation by passing the exact wipe phrase")

	rootCmd.AddCommand(provisionCmd)
}
