package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/tasktrace/config"
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "List the environment variables a trace session reads.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.Describe())
	},
}

func init() {
	rootCmd.AddCommand(envCmd)
}
