package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/samepage/internal/stats"
)

func init() {
	rootCmd.AddCommand(newArchiveCmd())
}

func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect the statistics archive",
	}
	cmd.AddCommand(newArchiveCatCmd())
	return cmd
}

func newArchiveCatCmd() *cobra.Command {
	var (
		store   storeFlags
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "cat",
		Short: "Print every archived snapshot",
		Long: `The cat command decodes every archived statistics batch and prints the
snapshots in time order as CSV, or as a verbose dump with --verbose.

Example:
  samepaged archive cat --archive-dir ./stats
  samepaged archive cat --archive-s3-bucket my-bucket --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.open(cmd.Context())
			if err != nil {
				return err
			}
			if s == nil {
				return errors.New("no archive configured")
			}

			snaps, err := stats.ReadArchive(cmd.Context(), s)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !verbose {
				fmt.Fprintln(out, stats.CSVHeader)
			}
			for _, snap := range snaps {
				if verbose {
					if err := snap.Format(out); err != nil {
						return err
					}
					continue
				}
				fmt.Fprintln(out, snap.CSV())
			}
			return nil
		},
	}
	store.register(cmd.Flags())
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print verbose dumps instead of CSV")
	return cmd
}
