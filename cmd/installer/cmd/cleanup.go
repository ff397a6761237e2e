// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/forgelinux/installer/internal/pkg/mount"
	"github.com/forgelinux/installer/internal/pkg/provision"
)

// cleanupCmd represents the cleanup command.
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Unmount and deactivate a previous provisioning attempt",
	Long: `Best-effort teardown: re-reads the persisted configuration and unmounts
the target tree and disables swap. Already inactive mounts are skipped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return provision.Cleanup(options, mount.New(log.Printf), log.Printf)
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}
