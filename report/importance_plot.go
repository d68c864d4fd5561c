// Package report renders feature-importance charts.
package report

import (
	"image/color"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/YuminosukeSato/forestkit/inspection"
	"github.com/YuminosukeSato/forestkit/pkg/errors"
)

// Chart dimensions.
var (
	Width     = 6 * vg.Inch
	RowHeight = 0.35 * vg.Inch
)

var barColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}

// newImportancePlot builds a horizontal bar chart, most important feature on
// top.
func newImportancePlot(features []inspection.FeatureScore) (*plot.Plot, error) {
	if len(features) == 0 {
		return nil, errors.NewValueError("PlotFeatureImportance", "no features to plot")
	}

	n := len(features)
	values := make(plotter.Values, n)
	names := make([]string, n)
	for i, f := range features {
		values[n-1-i] = f.Importance
		names[n-1-i] = f.Name
	}

	p := plot.New()
	p.Title.Text = "Feature importance"
	p.X.Label.Text = "Mean decrease in impurity"
	p.X.Min = 0

	bars, err := plotter.NewBarChart(values, RowHeight*0.7)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build bar chart")
	}
	bars.Horizontal = true
	bars.Color = barColor
	bars.LineStyle.Width = 0

	p.Add(bars, plotter.NewGrid())
	p.NominalY(names...)
	return p, nil
}

func chartHeight(n int) vg.Length {
	return vg.Length(n)*RowHeight + 1.2*vg.Inch
}

// WriteFeatureImportance renders the ranking as a PNG to w.
func WriteFeatureImportance(w io.Writer, features []inspection.FeatureScore) error {
	p, err := newImportancePlot(features)
	if err != nil {
		return err
	}
	canvas := vgimg.New(Width, chartHeight(len(features)))
	p.Draw(draw.New(canvas))
	if _, err := (vgimg.PngCanvas{Canvas: canvas}).WriteTo(w); err != nil {
		return errors.Wrap(err, "failed to encode png")
	}
	return nil
}

// PlotFeatureImportance writes the ranking as a PNG file at path, creating
// the parent directory when missing.
func PlotFeatureImportance(features []inspection.FeatureScore, path string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create plot directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrapf(cerr, "failed to close %s", path)
		}
	}()
	return WriteFeatureImportance(f, features)
}
