package cli

import (
	"github.com/spf13/cobra"
)

func newCompletionCmd(rootCmd *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish]",
		Short: "Generate shell completion script",
		Long: `Generate shell completion script for xs.

To load completions:

Bash:
  $ source <(xs completion bash)
  # Or add to ~/.bashrc:
  $ echo 'source <(xs completion bash)' >> ~/.bashrc

Zsh:
  $ source <(xs completion zsh)
  # Or add to ~/.zshrc:
  $ echo 'source <(xs completion zsh)' >> ~/.zshrc

Fish:
  $ xs completion fish | source
  # Or add to config:
  $ xs completion fish > ~/.config/fish/completions/xs.fish
`,
		ValidArgs:             []string{"bash", "zsh", "fish"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return rootCmd.GenBashCompletion(out)
			case "zsh":
				return rootCmd.GenZshCompletion(out)
			default:
				return rootCmd.GenFishCompletion(out, true)
			}
		},
	}
}
