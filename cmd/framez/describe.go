package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var describeCmd = &cobra.Command{
	Use:   "describe [process-list]",
	Short: "Set up a process list and print its datasets and frame layout as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chain, err := loadChain(args)
		if err != nil {
			return err
		}
		defer chain.Close()

		if err := chain.Setup(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), chain.Describe())
		return nil
	},
}
