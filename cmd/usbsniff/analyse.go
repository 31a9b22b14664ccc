package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/usbsniff/internal/monitoring"
	"github.com/banshee-data/usbsniff/internal/report"
)

func newAnalyseCmd(a *app) *cobra.Command {
	var (
		mux      bool
		pngPath  string
		htmlPath string
	)
	cmd := &cobra.Command{
		Use:     "analyse PATH",
		Aliases: []string{"analyze"},
		Short:   "Summarise frame sizes, flush gaps and record mix",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := report.NewCollector()
			if err := eachFrame(args[0], mux, a.cfg.Limits(), c.WriteFrame); err != nil {
				return err
			}
			if pngPath != "" {
				if err := writeFile(pngPath, c.WriteSizeHistogram); err != nil {
					return err
				}
				monitoring.Logf("analyse: wrote %s", pngPath)
			}
			if htmlPath != "" {
				err := writeFile(htmlPath, func(w io.Writer) error {
					return c.WriteRecordChart(w, "Record mix: "+args[0])
				})
				if err != nil {
					return err
				}
				monitoring.Logf("analyse: wrote %s", htmlPath)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(c.Summary())
		},
	}
	cmd.Flags().BoolVar(&mux, "mux", false, "input frames carry mux headers")
	cmd.Flags().StringVar(&pngPath, "png", "", "write a frame size histogram PNG")
	cmd.Flags().StringVar(&htmlPath, "html", "", "write a record mix chart HTML page")
	return cmd
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
