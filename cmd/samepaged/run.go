package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func newRunCmd() *cobra.Command {
	var flags serviceFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the merging service",
		Long: `The run command starts the scanner and the statistics reporter and runs
until interrupted.

Example:
  samepaged run --metrics-addr :2112 --health-addr :50051
  samepaged run --kafka-brokers broker:9092 --archive-s3-bucket my-bucket`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), &flags, cmd.OutOrStdout(), nil)
		},
	}
	flags.register(cmd.Flags(), true)
	return cmd
}
