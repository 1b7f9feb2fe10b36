package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the PIN and all data",
	Long: `Delete the registered PIN, every transaction and category, the
failed-attempt counter, the theme and the audit log.

This cannot be undone. It is the only way forward after a forgotten PIN
or corrupted PIN settings.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetForce && !confirm(cmd, "Delete ALL finvault data? This cannot be undone.") {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
			return nil
		}
		sess.Lock()
		if err := v.Reset(cmdContext(cmd)); err != nil {
			return friendlyError(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "All data deleted. Run 'finvault init' to start again.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "Skip confirmation prompt")
}
