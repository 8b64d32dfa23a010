package cmd

import (
	"github.com/spf13/cobra"
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "parley",
		Short:         "parley: rate-limited LLM conversations between simulated agents",
		Long:          "parley runs small social simulations where agents wander a plaza, form conversations by proximity and take turns speaking lines produced by rate-limited LLM providers.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.wire(cmd.Context(), configPath, logLevel, cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a parley.toml config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(a),
		newValidateCmd(a),
		newInitCmd(a),
	)

	return rootCmd
}
