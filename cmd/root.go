package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "af",
		Short:         "Agent Fleet CLI (af): orchestrate coding agents in a shared tmux session",
		Long:          "af coordinates a fleet of isolated coding-agent workspaces (one git worktree per agent), lays their panes out in a shared tmux session, and dispatches commands to one or all of them.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newFleetCmd(app),
		newProvisionCmd(app),
		newTeardownCmd(app),
		newSyncCmd(app),
		newStartCmd(app),
		newKillCmd(app),
		newHeyCmd(app),
		newBroadcastCmd(app),
		newStatusCmd(app),
		newConfigCmd(app),
	)

	return rootCmd
}
