package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/eventseg/internal/featureio"
	"github.com/banshee-data/eventseg/internal/segmentation"
)

// WriteHTML renders an interactive page with the feature trajectories and
// the decoded global mode sequence.
func WriteHTML(w io.Writer, t *featureio.Table, modes []segmentation.Mode, segments []segmentation.Segment, title string) error {
	frames := make([]int, t.Frames())
	for i := range frames {
		frames[i] = i
	}

	features := charts.NewLine()
	features.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("frames=%d segments=%d", t.Frames(), len(segments))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame", NameLocation: "middle", NameGap: 25}),
	)
	features.SetXAxis(frames)
	for i, col := range t.Columns {
		data := make([]opts.LineData, len(col))
		for f, v := range col {
			data[f] = opts.LineData{Value: v}
		}
		features.AddSeries(t.Names[i], data, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}

	modeData := make([]opts.LineData, len(modes))
	for f, m := range modes {
		modeData[f] = opts.LineData{Value: int(m), Name: m.String()}
	}
	modeLine := charts.NewLine()
	modeLine.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "240px"}),
		charts.WithTitleOpts(opts.Title{Title: "Global mode", Subtitle: "1=off 2=onset 3=on"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 1, Max: 3}),
	)
	modeFrames := make([]int, len(modes))
	for i := range modeFrames {
		modeFrames[i] = i
	}
	modeLine.SetXAxis(modeFrames).
		AddSeries("mode", modeData, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(features, modeLine)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}
