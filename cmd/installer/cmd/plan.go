// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/forgelinux/installer/internal/pkg/provision"
)

// planCmd represents the plan command.
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute and print the partition layout without touching the disk",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return provision.New(options, cmd.InOrStdin(), cmd.OutOrStdout()).DryRun(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
}
