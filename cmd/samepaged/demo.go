package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/samepage"
)

type demoFlags struct {
	pages         int
	fill          uint8
	suboptimal    bool
	duration      time.Duration
	printInterval time.Duration
}

func init() {
	rootCmd.AddCommand(newDemoCmd())
}

func newDemoCmd() *cobra.Command {
	var (
		flags serviceFlags
		demo  demoFlags
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the service against a synthetic workload",
		Long: `The demo command allocates a region, fills every page with the same byte
and prints statistics while the scanner merges the pages. With --suboptimal
the last byte of every page differs, so no two pages can be merged.

Example:
  samepaged demo --pages 4096
  samepaged demo --pages 4096 --suboptimal --duration 10s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if demo.duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, demo.duration)
				defer cancel()
			}
			return serve(ctx, &flags, cmd.OutOrStdout(), demo.workload(cmd.OutOrStdout()))
		},
	}
	flags.register(cmd.Flags(), false)
	cmd.Flags().IntVar(&demo.pages, "pages", 1024, "Pages in the demo region")
	cmd.Flags().Uint8Var(&demo.fill, "fill", 0xFE, "Byte every page is filled with")
	cmd.Flags().BoolVar(&demo.suboptimal, "suboptimal", false, "Make the last byte of every page unique")
	cmd.Flags().DurationVar(&demo.duration, "duration", 0, "Stop after this long (0 = until interrupted)")
	cmd.Flags().DurationVar(&demo.printInterval, "print-interval", time.Second, "Time between statistics dumps")
	return cmd
}

func (d demoFlags) workload(out io.Writer) workload {
	return func(ctx context.Context, m *samepage.Manager) error {
		r, err := m.Allocate(ctx, samepage.Request{
			Type:  samepage.TypeRegion,
			Size:  int64(d.pages * samepage.PageSize),
			Flags: samepage.ProtRW,
		})
		if err != nil {
			return err
		}
		defer func() { _ = m.Release(context.WithoutCancel(ctx), r) }()

		if err := fillRegion(ctx, r, d.fill, d.suboptimal); err != nil {
			return err
		}

		t := time.NewTicker(d.printInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return m.Snapshot().Format(out)
			case <-t.C:
				if err := m.Snapshot().Format(out); err != nil {
					return err
				}
			}
		}
	}
}

// fillRegion writes fill to every page of r. With suboptimal set, the last
// byte of page i is set to byte(i).
func fillRegion(ctx context.Context, r *samepage.Region, fill byte, suboptimal bool) error {
	buf := bytes.Repeat([]byte{fill}, samepage.PageSize)
	for i := 0; i < r.Pages(); i++ {
		if suboptimal {
			buf[samepage.PageSize-1] = byte(i)
		}
		if _, err := r.WriteAt(ctx, buf, uint64(i*samepage.PageSize)); err != nil {
			return fmt.Errorf("fill page %d: %w", i, err)
		}
	}
	return nil
}
