package main

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tasktrace",
	Short: "tasktrace works with the trace archives of task-parallel programs.",
	Long: `tasktrace works with the trace archives of task-parallel programs. ` +
		`It can summarise an archive, record a demo trace and list the ` +
		`environment variables a trace session reads.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
