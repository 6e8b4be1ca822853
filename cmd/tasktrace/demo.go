package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sarchlab/tasktrace/config"
	"github.com/sarchlab/tasktrace/logging"
	"github.com/sarchlab/tasktrace/serial"
	"github.com/sarchlab/tasktrace/trace"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Record the trace of a small task-parallel Fibonacci program.",
	Long: `Record the trace of a small task-parallel Fibonacci program ` +
		`through the serial API. Options not given as flags are read from ` +
		`the environment, see "tasktrace env".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts, err := config.Load(configFile)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("trace-path") {
			opts.TracePath, _ = cmd.Flags().GetString("trace-path")
		}

		if cmd.Flags().Changed("name") {
			opts.TraceName, _ = cmd.Flags().GetString("name")
		}

		n, _ := cmd.Flags().GetInt("n")

		return runDemo(opts, n, cmd.OutOrStdout())
	},
}

var configFile string

func init() {
	rootCmd.AddCommand(demoCmd)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Read the session options from this file.")

	demoCmd.Flags().String("trace-path", "trace",
		"The directory in which the archive is created.")
	demoCmd.Flags().String("name", "demo", "The archive name prefix.")
	demoCmd.Flags().Int("n", 8, "The Fibonacci number to compute.")
}

func runDemo(opts config.Options, n int, out io.Writer) error {
	if n < 0 {
		return fmt.Errorf("n must not be negative, got %d", n)
	}

	logger := logging.ConfigureOutput(out, opts.LogLevel)

	sess, err := serial.Initialise(opts, logger)
	if err != nil {
		return err
	}

	sess.WithOutput(out)

	result, err := tracedFib(sess, n)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "fib(%d) = %d\n", n, result)

	return sess.Finalise()
}

func tracedFib(sess *serial.Session, n int) (int, error) {
	if err := sess.ThreadsBegin(); err != nil {
		return 0, err
	}

	if err := sess.SingleBegin(); err != nil {
		return 0, err
	}

	result, err := fib(sess, n)
	if err != nil {
		return 0, err
	}

	if err := sess.SingleEnd(); err != nil {
		return 0, err
	}

	return result, sess.ThreadsEnd()
}

func fib(sess *serial.Session, n int) (int, error) {
	if n < 2 {
		return n, nil
	}

	var a, b int

	for i, dst := range []*int{&a, &b} {
		if err := sess.TaskBegin(); err != nil {
			return 0, err
		}

		v, err := fib(sess, n-1-i)
		if err != nil {
			return 0, err
		}

		*dst = v

		if err := sess.TaskEnd(); err != nil {
			return 0, err
		}
	}

	if err := sess.SynchroniseTasks(trace.SyncChildren); err != nil {
		return 0, err
	}

	return a + b, nil
}
