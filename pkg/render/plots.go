package render

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"hyperspec/internal/models"
)

// MeanSpectrumPlot plots the per-band mean of the table's rows against
// wavelength. With withStd set, the mean ± one standard deviation bounds
// are drawn as well.
func MeanSpectrumPlot(path string, table *models.SpectralTable, wavelengths []float64, withStd bool) error {
	mean := make([]float64, table.Bands)
	std := make([]float64, table.Bands)
	column := make([]float64, table.NumRows)
	for b := 0; b < table.Bands; b++ {
		for i := 0; i < table.NumRows; i++ {
			column[i] = table.At(i, b)
		}
		mean[b] = stat.Mean(column, nil)
		if withStd && table.NumRows > 1 {
			std[b] = stat.StdDev(column, nil)
		}
	}

	p := plot.New()
	p.Title.Text = "Average spectrum"
	p.X.Label.Text = "Wavelength (nm)"
	p.Y.Label.Text = "Reflectance"

	meanLine, err := plotter.NewLine(toXYs(wavelengths, mean))
	if err != nil {
		return fmt.Errorf("failed to build mean line: %v", err)
	}
	meanLine.Color = color.RGBA{B: 180, A: 255}
	p.Add(meanLine)
	p.Legend.Add("mean", meanLine)

	if withStd {
		p.Title.Text = "Average spectrum with standard deviation"
		upper := make([]float64, table.Bands)
		lower := make([]float64, table.Bands)
		for b := range mean {
			upper[b] = mean[b] + std[b]
			lower[b] = mean[b] - std[b]
		}
		for _, bound := range [][]float64{upper, lower} {
			line, err := plotter.NewLine(toXYs(wavelengths, bound))
			if err != nil {
				return fmt.Errorf("failed to build std line: %v", err)
			}
			line.Color = color.RGBA{R: 180, G: 180, B: 180, A: 255}
			line.Dashes = []vg.Length{vg.Points(3), vg.Points(3)}
			p.Add(line)
		}
	}

	return savePlot(path, p)
}

// SpectraPlot plots every row of the table as one line against
// wavelength, used for the retained subsample.
func SpectraPlot(path, title string, table *models.SpectralTable, wavelengths []float64) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Wavelength (nm)"
	p.Y.Label.Text = "Reflectance"

	for i := 0; i < table.NumRows; i++ {
		line, err := plotter.NewLine(toXYs(wavelengths, table.Row(i)))
		if err != nil {
			return fmt.Errorf("failed to build spectrum line %d: %v", i, err)
		}
		// Cycle hues so neighboring packages stay distinguishable
		line.Color = color.RGBA{
			R: uint8(60 + (i*67)%180),
			G: uint8(60 + (i*131)%180),
			B: uint8(60 + (i*29)%180),
			A: 255,
		}
		p.Add(line)
	}

	return savePlot(path, p)
}

func toXYs(xs, ys []float64) plotter.XYs {
	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i].X = xs[i]
		pts[i].Y = ys[i]
	}
	return pts
}

func savePlot(path string, p *plot.Plot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}
	if err := p.Save(7*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %v", path, err)
	}
	return nil
}
