package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "voicetime",
		Short:         "Track how long members spend in a Discord voice channel",
		Long:          "voicetime keeps a bot in one Discord voice channel, accumulates the time every member spends there, persists the totals to a JSON file and answers /time, /status, /top and /reset.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newShowCmd(),
	)

	return rootCmd
}
