// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgelinux/installer/internal/pkg/state"
)

// statusCmd represents the status command.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the persisted configuration and progress marker",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		milestone, err := state.NewMarker(options.MarkerPath).Read()
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "progress: %s\n", milestone)

		cfg, err := state.Load(options.ConfigPath)
		if err != nil {
			return err
		}

		if len(cfg.Keys()) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no configuration persisted")

			return nil
		}

		cmd.OutOrStdout().Write(cfg.Encode()) //nolint:errcheck

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
