package main

import (
	"bufio"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/banshee-data/usbsniff/internal/framing"
	"github.com/banshee-data/usbsniff/internal/transport"
)

// recordPrinter writes frames and the records they carry as text.
type recordPrinter struct {
	w           *bufio.Writer
	dec         framing.Decoder
	frames      int
	recordsOnly bool
}

func newRecordPrinter(w io.Writer, recordsOnly bool) *recordPrinter {
	return &recordPrinter{w: bufio.NewWriter(w), recordsOnly: recordsOnly}
}

func (p *recordPrinter) frame(f transport.Frame) {
	if !p.recordsOnly {
		fmt.Fprintf(p.w, "frame %d ts=%d len=%d words=%d\n", p.frames, f.Timestamp, f.Length, f.Words())
	}
	p.frames++
	for _, d := range p.dec.Feed(f.Payload) {
		fmt.Fprintf(p.w, "%12d %s\n", d.Time, d.Record)
	}
}

// gap restarts decoding after missed frames; a record cut by the gap is
// lost.
func (p *recordPrinter) gap(missed uint64) {
	if !p.recordsOnly {
		fmt.Fprintf(p.w, "# %d frames missed, decoder restarted\n", missed)
	}
	p.dec = framing.Decoder{}
}

// finish writes the summary and reports a record cut off by the end of
// input.
func (p *recordPrinter) finish() error {
	if !p.recordsOnly {
		fmt.Fprintf(p.w, "# %d frames, %d padding bytes, end time %d\n", p.frames, p.dec.Padding(), p.dec.Time())
	}
	err := p.dec.Close()
	if ferr := p.w.Flush(); err == nil {
		err = ferr
	}
	return err
}

func newDecodeCmd(a *app) *cobra.Command {
	var (
		mux         bool
		recordsOnly bool
	)
	cmd := &cobra.Command{
		Use:   "decode PATH",
		Short: "Print the records carried by a frame file or recorded log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newRecordPrinter(cmd.OutOrStdout(), recordsOnly)
			err := eachFrame(args[0], mux, a.cfg.Limits(), func(f transport.Frame) error {
				p.frame(f)
				return nil
			})
			if err != nil {
				p.w.Flush()
				return err
			}
			return p.finish()
		},
	}
	cmd.Flags().BoolVar(&mux, "mux", false, "input frames carry mux headers")
	cmd.Flags().BoolVar(&recordsOnly, "records-only", false, "omit frame headers and summary")
	return cmd
}
