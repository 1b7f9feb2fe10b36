package main

import (
	"fmt"

	"github.com/forest6511/finvault/pkg/vault"

	"github.com/spf13/cobra"
)

var themeCmd = &cobra.Command{
	Use:       "theme [light|dark]",
	Short:     "Show or set the display theme",
	ValidArgs: []string{vault.ThemeLight, vault.ThemeDark},
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmdContext(cmd)
		if len(args) == 0 {
			theme, err := v.Theme(ctx)
			if err != nil {
				return friendlyError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), theme)
			return nil
		}
		if err := v.SetTheme(ctx, args[0]); err != nil {
			return friendlyError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Theme set to %s\n", args[0])
		return nil
	},
}
