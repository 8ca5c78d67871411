// Package cli implements the rankwatch command line.
package cli

import (
	"context"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Execute runs the rankwatch command line with args, excluding the program
// name, and writes console output to stdout and logs to stderr.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cmd := NewCommand(stdout, stderr)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// NewCommand builds the command tree. Running the root command without a
// subcommand analyzes a query like the run subcommand does.
func NewCommand(stdout, stderr io.Writer) *cobra.Command {
	var opts Options

	root := &cobra.Command{
		Use:   "rankwatch",
		Short: "Track where domains rank in search engine results",
		Long: `rankwatch fetches the result pages of a search query, stores them next to
each other, extracts every organic and sponsored listing in rank order and
reports per host how often and how high it appears.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := newViper(cmd.Flags())
			if err != nil {
				return err
			}
			if opts, err = loadOptions(v); err != nil {
				return err
			}
			if opts.NoColor {
				color.NoColor = true
			}
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	registerFlags(root.PersistentFlags())

	run := func(cmd *cobra.Command, _ []string) error {
		return runAnalysis(cmd.Context(), opts, stdout, stderr)
	}
	root.RunE = run

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Fetch, analyze and report a query (default)",
		Args:  cobra.NoArgs,
		RunE:  run,
	})
	root.AddCommand(&cobra.Command{
		Use:   "history",
		Short: "Show how the highlighted hosts ranked across stored runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showHistory(cmd.Context(), opts, stdout, stderr)
		},
	})

	return root
}
