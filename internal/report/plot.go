package report

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ErrNoFrames is returned when there is nothing to plot.
var ErrNoFrames = errors.New("report: no frames")

// MaxChartFrames bounds the number of bars in the HTML chart.
const MaxChartFrames = 500

// EChartsAssetsHost is where the HTML chart loads echarts from.
var EChartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// WriteSizeHistogram writes a PNG histogram of frame sizes in words.
func (c *Collector) WriteSizeHistogram(w io.Writer) error {
	sizes := c.FrameSizes()
	if len(sizes) == 0 {
		return ErrNoFrames
	}
	p := plot.New()
	p.Title.Text = "Frame size"
	p.X.Label.Text = "payload words"
	p.Y.Label.Text = "frames"

	bins := 20
	if len(sizes) < bins {
		bins = len(sizes)
	}
	h, err := plotter.NewHist(plotter.Values(sizes), bins)
	if err != nil {
		return fmt.Errorf("histogram: %w", err)
	}
	h.LineStyle.Width = vg.Points(1)
	p.Add(h)

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// WriteRecordChart writes an HTML page with a stacked bar chart of the
// record mix per frame. Only the first MaxChartFrames frames are shown.
func (c *Collector) WriteRecordChart(w io.Writer, title string) error {
	frames := c.PerFrame()
	if len(frames) == 0 {
		return ErrNoFrames
	}
	if len(frames) > MaxChartFrames {
		frames = frames[:MaxChartFrames]
	}

	x := make([]string, len(frames))
	series := map[string][]opts.BarData{}
	names := []string{"data", "control", "event", "overflow"}
	for i, f := range frames {
		x[i] = strconv.FormatUint(f.Seq, 10)
		series["data"] = append(series["data"], opts.BarData{Value: f.Mix.Data})
		series["control"] = append(series["control"], opts.BarData{Value: f.Mix.Control})
		series["event"] = append(series["event"], opts.BarData{Value: f.Mix.Event})
		series["overflow"] = append(series["overflow"], opts.BarData{Value: f.Mix.Overflow})
	}

	s := c.Summary()
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "600px", AssetsHost: EChartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("frames=%d records=%d words=%d", s.Frames, s.Records.Total(), s.Words)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "records"}),
	)
	bar.SetXAxis(x)
	for _, name := range names {
		bar.AddSeries(name, series[name], charts.WithBarChartOpts(opts.BarChart{Stack: "records"}))
	}

	page := components.NewPage()
	page.SetAssetsHost(EChartsAssetsHost)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}
