// Package plot renders pipeline charts to PNG files with gonum/plot.
package plot

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"batteryflow/domain/core"
	"batteryflow/ports"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Renderer implements ports.PlotRendererPort
type Renderer struct{}

// NewRenderer creates a PNG renderer
func NewRenderer() *Renderer {
	return &Renderer{}
}

// LinePlot draws each series as a connected line
func (r *Renderer) LinePlot(path string, spec ports.ChartSpec, series ...ports.Series) error {
	p := newXYPlot(spec)
	for i, s := range series {
		pts, err := points(s)
		if err != nil {
			return err
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return core.NewDataFormatError(s.Label, err.Error())
		}
		l.LineStyle.Width = vg.Points(1)
		l.LineStyle.Color = seriesColor(i)
		p.Add(l)
		if s.Label != "" {
			p.Legend.Add(s.Label, l)
		}
	}
	return save(p, path, spec.Width, spec.Height)
}

// ScatterPlot draws each series as circle markers
func (r *Renderer) ScatterPlot(path string, spec ports.ChartSpec, series ...ports.Series) error {
	p := newXYPlot(spec)
	for i, s := range series {
		pts, err := points(s)
		if err != nil {
			return err
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return core.NewDataFormatError(s.Label, err.Error())
		}
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(2)
		sc.GlyphStyle.Color = seriesColor(i)
		p.Add(sc)
		if s.Label != "" {
			p.Legend.Add(s.Label, sc)
		}
	}
	return save(p, path, spec.Width, spec.Height)
}

// Heatmap draws a square matrix on a diverging blue-red scale over [-1, 1]
// with every cell annotated to two decimals
func (r *Renderer) Heatmap(path string, spec ports.HeatmapSpec) error {
	n := len(spec.Labels)
	if n == 0 || len(spec.Values) != n {
		return core.NewInvalidArgumentError("heatmap", fmt.Sprintf("%d labels for %d rows", n, len(spec.Values)))
	}
	for i, row := range spec.Values {
		if len(row) != n {
			return core.NewInvalidArgumentError("heatmap", fmt.Sprintf("row %d has %d values, expected %d", i, len(row), n))
		}
	}

	p := plot.New()
	p.Title.Text = spec.Title

	cmap := moreland.SmoothBlueRed()
	cmap.SetMin(-1)
	cmap.SetMax(1)
	hm := plotter.NewHeatMap(matrixGrid(spec.Values), cmap.Palette(255))
	hm.Min, hm.Max = -1, 1
	hm.NaN = color.Gray{Y: 200}
	p.Add(hm)

	var xys plotter.XYs
	var text []string
	for r, row := range spec.Values {
		for c, v := range row {
			xys = append(xys, plotter.XY{X: float64(c), Y: float64(n - 1 - r)})
			if math.IsNaN(v) {
				text = append(text, "nan")
			} else {
				text = append(text, fmt.Sprintf("%.2f", v))
			}
		}
	}
	labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: text})
	if err != nil {
		return core.NewDataFormatError("heatmap labels", err.Error())
	}
	for i := range labels.TextStyle {
		labels.TextStyle[i].XAlign = draw.XCenter
		labels.TextStyle[i].YAlign = draw.YCenter
	}
	p.Add(labels)

	xTicks := make([]plot.Tick, n)
	yTicks := make([]plot.Tick, n)
	for i, name := range spec.Labels {
		xTicks[i] = plot.Tick{Value: float64(i), Label: name}
		yTicks[i] = plot.Tick{Value: float64(n - 1 - i), Label: name}
	}
	p.X.Tick.Marker = plot.ConstantTicks(xTicks)
	p.Y.Tick.Marker = plot.ConstantTicks(yTicks)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight

	return save(p, path, spec.Width, spec.Height)
}

func newXYPlot(spec ports.ChartSpec) *plot.Plot {
	p := plot.New()
	p.Title.Text = spec.Title
	p.X.Label.Text = spec.XLabel
	p.Y.Label.Text = spec.YLabel
	p.Legend.Top = true
	p.Add(plotter.NewGrid())
	return p
}

// points converts a series, skipping points with a null coordinate
func points(s ports.Series) (plotter.XYs, error) {
	if len(s.X) != len(s.Y) {
		return nil, core.NewInvalidArgumentError(s.Label, fmt.Sprintf("%d x values for %d y values", len(s.X), len(s.Y)))
	}
	pts := make(plotter.XYs, 0, len(s.X))
	for i := range s.X {
		if math.IsNaN(s.X[i]) || math.IsNaN(s.Y[i]) || math.IsInf(s.X[i], 0) || math.IsInf(s.Y[i], 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: s.X[i], Y: s.Y[i]})
	}
	if len(pts) == 0 {
		return nil, core.NewDataFormatError(s.Label, "no finite points to plot")
	}
	return pts, nil
}

func seriesColor(i int) color.Color {
	palette := []color.Color{
		color.RGBA{R: 31, G: 119, B: 180, A: 255},
		color.RGBA{R: 255, G: 127, B: 14, A: 255},
		color.RGBA{R: 44, G: 160, B: 44, A: 255},
		color.RGBA{R: 214, G: 39, B: 40, A: 255},
	}
	return palette[i%len(palette)]
}

// save writes the plot through a temp file in the target directory and renames it into place.
// The temp file is closed on every path and removed when anything fails.
func save(p *plot.Plot, path string, widthIn, heightIn float64) (err error) {
	if widthIn <= 0 {
		widthIn = 10
	}
	if heightIn <= 0 {
		heightIn = 5
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format == "" {
		format = "png"
	}

	wt, err := p.WriterTo(vg.Length(widthIn)*vg.Inch, vg.Length(heightIn)*vg.Inch, format)
	if err != nil {
		return core.NewInvalidArgumentError("plot format", err.Error())
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return core.NewResourceError(dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".plot-*."+format)
	if err != nil {
		return core.NewResourceError(path, err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if _, err = wt.WriteTo(tmp); err != nil {
		tmp.Close()
		return core.NewResourceError(path, err)
	}
	if err = tmp.Close(); err != nil {
		return core.NewResourceError(path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return core.NewResourceError(path, err)
	}
	return nil
}

// matrixGrid adapts a square matrix to plotter.GridXYZ with row 0 drawn at the top
type matrixGrid [][]float64

func (g matrixGrid) Dims() (c, r int)   { return len(g), len(g) }
func (g matrixGrid) Z(c, r int) float64 { return g[len(g)-1-r][c] }
func (g matrixGrid) X(c int) float64    { return float64(c) }
func (g matrixGrid) Y(r int) float64    { return float64(r) }
