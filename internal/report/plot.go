package report

import (
	"fmt"
	"image/color"
	"io"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/eventseg/internal/featureio"
	"github.com/banshee-data/eventseg/internal/segmentation"
)

// Default PNG size.
const (
	plotWidth  = 14 * vg.Inch
	plotHeight = 8 * vg.Inch
)

// segmentShade fills detected events behind the feature lines.
var segmentShade = color.RGBA{R: 255, G: 190, B: 40, A: 70}

// WritePNG draws the feature trajectories with detected segments shaded,
// and the global mode sequence below them, as one PNG image.
func WritePNG(w io.Writer, t *featureio.Table, modes []segmentation.Mode, segments []segmentation.Segment, title string) error {
	featPlot, err := featurePlot(t, segments, title)
	if err != nil {
		return err
	}
	modePlot, err := modeSequencePlot(modes)
	if err != nil {
		return err
	}

	img := vgimg.New(plotWidth, plotHeight)
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: 2, Cols: 1, PadY: vg.Millimeter * 4, PadTop: vg.Millimeter * 2, PadBottom: vg.Millimeter * 2}
	canvases := plot.Align([][]*plot.Plot{{featPlot}, {modePlot}}, tiles, dc)
	featPlot.Draw(canvases[0][0])
	modePlot.Draw(canvases[1][0])

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

// SavePNG writes the WritePNG image to path.
func SavePNG(path string, t *featureio.Table, modes []segmentation.Mode, segments []segmentation.Segment, title string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WritePNG(f, t, modes, segments, title); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func featurePlot(t *featureio.Table, segments []segmentation.Segment, title string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Feature value"

	lo, hi := 0.0, 1.0
	for i, col := range t.Columns {
		cmin, cmax := featureio.Extents(col)
		if i == 0 || cmin < lo {
			lo = cmin
		}
		if i == 0 || cmax > hi {
			hi = cmax
		}
	}
	if hi <= lo {
		hi = lo + 1
	}

	for _, seg := range segments {
		x0, x1 := float64(seg.Start), float64(seg.End)
		poly, err := plotter.NewPolygon(plotter.XYs{{X: x0, Y: lo}, {X: x1, Y: lo}, {X: x1, Y: hi}, {X: x0, Y: hi}})
		if err != nil {
			return nil, err
		}
		poly.Color = segmentShade
		poly.LineStyle.Width = 0
		p.Add(poly)
	}

	for i, col := range t.Columns {
		if len(col) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(col))
		for f, v := range col {
			pts[f] = plotter.XY{X: float64(f), Y: v}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", t.Names[i], err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(t.Names[i], line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

func modeSequencePlot(modes []segmentation.Mode) (*plot.Plot, error) {
	p := plot.New()
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Global mode"
	p.Y.Min, p.Y.Max = 0.5, 3.5
	p.Y.Tick.Marker = plot.ConstantTicks{
		{Value: float64(segmentation.ModeOff), Label: segmentation.ModeOff.String()},
		{Value: float64(segmentation.ModeOnset), Label: segmentation.ModeOnset.String()},
		{Value: float64(segmentation.ModeOn), Label: segmentation.ModeOn.String()},
	}

	if len(modes) == 0 {
		return p, nil
	}
	// Hold each mode for its whole frame.
	pts := make(plotter.XYs, 0, 2*len(modes))
	for f, m := range modes {
		pts = append(pts, plotter.XY{X: float64(f), Y: float64(m)}, plotter.XY{X: float64(f + 1), Y: float64(m)})
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.Width = vg.Points(1.5)
	p.Add(line)
	return p, nil
}
