package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var limitCmd = &cobra.Command{
	Use:   "limit <n>",
	Short: "Sets the file limit of the running watchdog",
	Long:  "Sets the file limit of the running watchdog. The new limit applies from the next check on and is not saved across restarts.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid limit %q: must be a non-negative integer", args[0])
		}
		if err := newControlClient().SetLimit(cmd.Context(), uint32(n)); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "File limit set to %d\n", n)
		return err
	},
}

var quitCmd = &cobra.Command{
	Use:   "quit",
	Short: "Stops the running watchdog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return newControlClient().Quit(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(limitCmd)
	rootCmd.AddCommand(quitCmd)
}
