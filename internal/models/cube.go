package models

import (
	"fmt"
)

// Cube represents a hyperspectral data cube indexed by (row, column, band).
type Cube struct {
	// Data is the cube data as a 1D array in row-major pixel order,
	// with the band axis varying fastest:
	// Data[(row*Cols+col)*Bands+band]
	Data []float64

	// Rows is the number of image rows (ENVI "lines")
	Rows int

	// Cols is the number of image columns (ENVI "samples")
	Cols int

	// Bands is the number of spectral bands
	Bands int

	// Wavelengths holds the band center wavelengths in nanometers.
	// Its length always equals Bands.
	Wavelengths []float64
}

// NewCube allocates a zeroed cube with the given dimensions and wavelengths.
// The wavelength sequence must have exactly one entry per band.
func NewCube(rows, cols, bands int, wavelengths []float64) (*Cube, error) {
	if rows <= 0 || cols <= 0 || bands <= 0 {
		return nil, fmt.Errorf("invalid cube dimensions %dx%dx%d", rows, cols, bands)
	}
	if len(wavelengths) != bands {
		return nil, fmt.Errorf("wavelength count %d does not match band count %d",
			len(wavelengths), bands)
	}
	wl := make([]float64, bands)
	copy(wl, wavelengths)
	return &Cube{
		Data:        make([]float64, rows*cols*bands),
		Rows:        rows,
		Cols:        cols,
		Bands:       bands,
		Wavelengths: wl,
	}, nil
}

// At returns the reflectance value at (row, col, band).
func (c *Cube) At(row, col, band int) float64 {
	return c.Data[(row*c.Cols+col)*c.Bands+band]
}

// Set stores a reflectance value at (row, col, band).
func (c *Cube) Set(row, col, band int, v float64) {
	c.Data[(row*c.Cols+col)*c.Bands+band] = v
}

// Spectrum returns the full band vector of the pixel at (row, col)
// as a view into the cube's backing array.
func (c *Cube) Spectrum(row, col int) []float64 {
	start := (row*c.Cols + col) * c.Bands
	return c.Data[start : start+c.Bands]
}

// Mask is a boolean per-pixel selector with the same spatial extent
// as the cube it was derived from.
type Mask struct {
	// Bits holds the selector in row-major order: Bits[row*Cols+col]
	Bits []bool

	// Rows and Cols are the spatial dimensions
	Rows, Cols int
}

// NewMask allocates an all-false mask with the given spatial extent.
func NewMask(rows, cols int) *Mask {
	return &Mask{
		Bits: make([]bool, rows*cols),
		Rows: rows,
		Cols: cols,
	}
}

// At reports whether the pixel at (row, col) is selected.
func (m *Mask) At(row, col int) bool {
	return m.Bits[row*m.Cols+col]
}

// Set marks the pixel at (row, col).
func (m *Mask) Set(row, col int, v bool) {
	m.Bits[row*m.Cols+col] = v
}

// Count returns the number of selected pixels.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}
