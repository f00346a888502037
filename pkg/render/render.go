// Package render produces the diagnostic imagery for one extraction run:
// a false-color view of the cube, a region-mask overlay, and line plots
// of the filtered and subsampled spectra.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"hyperspec/internal/models"
)

// FalseColor renders the cube as an RGB image by spreading three bands
// across the band axis and stretching each to its own min/max range.
func FalseColor(cube *models.Cube) *image.RGBA {
	// Red from the upper, green from the middle, blue from the lower
	// part of the spectrum
	bands := [3]int{
		cube.Bands * 3 / 4,
		cube.Bands / 2,
		cube.Bands / 4,
	}

	img := image.NewRGBA(image.Rect(0, 0, cube.Cols, cube.Rows))
	var channels [3][]uint8
	for i, b := range bands {
		channels[i] = stretchBand(cube, b)
	}

	for r := 0; r < cube.Rows; r++ {
		for c := 0; c < cube.Cols; c++ {
			i := r*cube.Cols + c
			img.SetRGBA(c, r, color.RGBA{
				R: channels[0][i],
				G: channels[1][i],
				B: channels[2][i],
				A: 255,
			})
		}
	}

	return img
}

// stretchBand maps one band's values onto [0, 255] with a min/max
// stretch. NaN values render as black.
func stretchBand(cube *models.Cube, band int) []uint8 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for r := 0; r < cube.Rows; r++ {
		for c := 0; c < cube.Cols; c++ {
			v := cube.At(r, c, band)
			if math.IsNaN(v) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	span := hi - lo
	if span <= 0 || math.IsInf(span, 0) {
		span = 1
	}

	out := make([]uint8, cube.Rows*cube.Cols)
	for r := 0; r < cube.Rows; r++ {
		for c := 0; c < cube.Cols; c++ {
			v := cube.At(r, c, band)
			if math.IsNaN(v) {
				continue
			}
			out[r*cube.Cols+c] = uint8(math.Max(0, math.Min(255, (v-lo)/span*255)))
		}
	}
	return out
}

// Overlay renders the cube in false color with mask-selected pixels
// blended toward red.
func Overlay(cube *models.Cube, mask *models.Mask) *image.RGBA {
	base := FalseColor(cube)

	// Alpha channel carrying the mask, used to composite a uniform red
	// layer over the base render
	alpha := image.NewAlpha(base.Bounds())
	for r := 0; r < mask.Rows; r++ {
		for c := 0; c < mask.Cols; c++ {
			if mask.At(r, c) {
				alpha.SetAlpha(c, r, color.Alpha{A: 160})
			}
		}
	}

	red := image.NewUniform(color.RGBA{R: 220, A: 255})
	draw.DrawMask(base, base.Bounds(), red, image.Point{}, alpha, image.Point{}, draw.Over)

	return base
}

// SavePNG writes an image as PNG, creating parent directories as needed.
func SavePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %v", path, err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode %s: %v", path, err)
	}
	return nil
}
