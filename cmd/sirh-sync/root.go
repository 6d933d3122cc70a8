package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func execute() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sirh-sync",
		Short:         "Synchronize SIRH session rosters into course enrolments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newTokenCmd())

	return cmd
}
