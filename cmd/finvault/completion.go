package main

import (
	"github.com/spf13/cobra"

	"github.com/forest6511/finvault/pkg/importer"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate completion script for your shell",
	Long: `To load completions:

Bash:
  $ source <(finvault completion bash)

  # To load for each session (Linux):
  $ finvault completion bash > ~/.local/share/bash-completion/completions/finvault

Zsh:
  # Ensure completion is enabled:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  $ finvault completion zsh > ~/.zsh/completions/_finvault

Fish:
  $ finvault completion fish > ~/.config/fish/completions/finvault.fish

PowerShell:
  PS> finvault completion powershell >> $PROFILE

Transaction and category ids are not completed: that would need the PIN.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(out)
		case "zsh":
			return cmd.Root().GenZshCompletion(out)
		case "fish":
			return cmd.Root().GenFishCompletion(out, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

// completeEntryType completes --type flags.
func completeEntryType(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{"income\tmoney in", "expense\tmoney out"}, cobra.ShellCompDirectiveNoFileComp
}

// completeExportFormat completes audit export --format.
func completeExportFormat(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{"json", "csv"}, cobra.ShellCompDirectiveNoFileComp
}

// completeImportSource completes tx import --source.
func completeImportSource(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return importer.ValidSources(), cobra.ShellCompDirectiveNoFileComp
}

// registerCompletionFunctions runs from main once every command's flags
// exist.
func registerCompletionFunctions() {
	for _, cmd := range []*cobra.Command{txAddCmd, txEditCmd, txListCmd, txImportCmd, categoryAddCmd, categoryEditCmd, categoryListCmd} {
		_ = cmd.RegisterFlagCompletionFunc("type", completeEntryType)
	}
	_ = auditExportCmd.RegisterFlagCompletionFunc("format", completeExportFormat)
	_ = txImportCmd.RegisterFlagCompletionFunc("source", completeImportSource)

	for _, cmd := range []*cobra.Command{txEditCmd, txDeleteCmd, categoryEditCmd, categoryDeleteCmd} {
		cmd.ValidArgsFunction = cobra.NoFileCompletions
	}
}
