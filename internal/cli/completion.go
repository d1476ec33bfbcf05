package cli

import (
	"github.com/spf13/cobra"
)

func newCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion <shell>",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for ldifexport.

To load completions:

Bash:
  $ source <(ldifexport completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ ldifexport completion bash > /etc/bash_completion.d/ldifexport

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ ldifexport completion zsh > "${fpath[1]}/_ldifexport"

Fish:
  $ ldifexport completion fish > ~/.config/fish/completions/ldifexport.fish

PowerShell:
  PS> ldifexport completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> ldifexport completion powershell > ldifexport.ps1
  # and source this file from your PowerShell profile.
`,
		// Override parent PersistentPreRunE: completion needs no config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Args:              cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs:         []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()

			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(w, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(w)
			case "fish":
				return cmd.Root().GenFishCompletion(w, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(w)
			}

			return nil
		},
	}

	return cmd
}

// registerFlagCompletions offers the fixed values of the enum flags and
// restricts file completion for the profile and source arguments.
func registerFlagCompletions(cmd *cobra.Command) {
	_ = cmd.RegisterFlagCompletionFunc("conflict",
		cobra.FixedCompletions([]string{"fail", "append", "overwrite"}, cobra.ShellCompDirectiveNoFileComp))
	_ = cmd.RegisterFlagCompletionFunc("on-filter-error",
		cobra.FixedCompletions([]string{"abort", "skip"}, cobra.ShellCompDirectiveNoFileComp))
	_ = cmd.MarkFlagFilename("profile", "yaml", "yml", "json")
	_ = cmd.MarkFlagFilename("signing-key-file")
	_ = cmd.RegisterFlagCompletionFunc("summary-format",
		cobra.FixedCompletions([]string{"yaml", "json"}, cobra.ShellCompDirectiveNoFileComp))

	cmd.ValidArgsFunction = func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		return []string{"yaml", "yml", "json", "gz"}, cobra.ShellCompDirectiveFilterFileExt
	}
}
