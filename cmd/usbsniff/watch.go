package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/banshee-data/usbsniff/internal/hostlink"
)

// errWatchDone stops a subscription after --count frames.
var errWatchDone = errors.New("watch: frame count reached")

func newWatchCmd() *cobra.Command {
	var (
		clientID    string
		count       int
		recordsOnly bool
	)
	cmd := &cobra.Command{
		Use:   "watch ADDR",
		Short: "Print the records streamed by a capture's gRPC publisher",
		Long: `Subscribe to the gRPC frame publisher of a running capture (started with
capture --grpc ADDR) and print every frame and record it receives.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p := newRecordPrinter(cmd.OutOrStdout(), recordsOnly)
			err := hostlink.Subscribe(ctx, args[0], clientID, func(f hostlink.StreamedFrame) error {
				if f.Dropped > 0 {
					p.gap(f.Dropped)
				}
				p.frame(f.Frame)
				if count > 0 && p.frames >= count {
					return errWatchDone
				}
				return nil
			})
			if err != nil && !errors.Is(err, errWatchDone) && !errors.Is(err, context.Canceled) {
				p.w.Flush()
				return err
			}
			return p.finish()
		},
	}
	cmd.Flags().StringVar(&clientID, "client-id", "usbsniff-watch", "name reported to the publisher")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "stop after this many frames (0 = until interrupted)")
	cmd.Flags().BoolVar(&recordsOnly, "records-only", false, "omit frame headers and summary")
	return cmd
}
