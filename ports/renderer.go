package ports

// Series is a named set of points drawn on one chart
type Series struct {
	Label string
	X     []float64
	Y     []float64
}

// ChartSpec describes axes and titles of an XY chart
type ChartSpec struct {
	Title  string
	XLabel string
	YLabel string
	Width  float64 // inches
	Height float64 // inches
}

// HeatmapSpec describes an annotated square matrix chart
type HeatmapSpec struct {
	Title  string
	Labels []string
	Values [][]float64
	Width  float64
	Height float64
}

// PlotRendererPort writes charts to image files.
// An implementation must not leave a partial file at path when it fails.
type PlotRendererPort interface {
	LinePlot(path string, spec ChartSpec, series ...Series) error
	ScatterPlot(path string, spec ChartSpec, series ...Series) error
	Heatmap(path string, spec HeatmapSpec) error
}
