// Package calibration converts raw push-broom hyperspectral cubes into
// reflectance cubes using white and dark reference captures.
package calibration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"hyperspec/internal/models"
)

// ShapeMismatchError reports a reference cube that cannot be reconciled
// with the raw cube it is supposed to calibrate.
type ShapeMismatchError struct {
	// Role names the offending cube ("white" or "dark")
	Role string

	// Want and Got describe the expected and actual extents
	Want, Got string
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%s reference shape %s does not match raw cube shape %s",
		e.Role, e.Got, e.Want)
}

// Resample scales a reference cube to the given spatial extent using
// order-1 (bilinear) interpolation, independently along the row and
// column axes. The band axis is never rescaled. Resampling a cube to
// its own extent returns the cube unchanged.
func Resample(ref *models.Cube, rows, cols int) *models.Cube {
	if ref.Rows == rows && ref.Cols == cols {
		return ref
	}

	out, _ := models.NewCube(rows, cols, ref.Bands, ref.Wavelengths)

	// Sample positions map the destination grid onto the source grid,
	// clamped at the borders.
	for r := 0; r < rows; r++ {
		srcR := (float64(r)+0.5)*float64(ref.Rows)/float64(rows) - 0.5
		r0, fr := splitCoord(srcR, ref.Rows)

		for c := 0; c < cols; c++ {
			srcC := (float64(c)+0.5)*float64(ref.Cols)/float64(cols) - 0.5
			c0, fc := splitCoord(srcC, ref.Cols)

			r1 := min(r0+1, ref.Rows-1)
			c1 := min(c0+1, ref.Cols-1)

			for b := 0; b < ref.Bands; b++ {
				top := ref.At(r0, c0, b)*(1-fc) + ref.At(r0, c1, b)*fc
				bottom := ref.At(r1, c0, b)*(1-fc) + ref.At(r1, c1, b)*fc
				out.Set(r, c, b, top*(1-fr)+bottom*fr)
			}
		}
	}

	return out
}

// splitCoord splits a fractional source coordinate into a clamped integer
// base index and the interpolation weight toward the next index.
func splitCoord(v float64, extent int) (int, float64) {
	if v <= 0 {
		return 0, 0
	}
	if v >= float64(extent-1) {
		return extent - 1, 0
	}
	base := math.Floor(v)
	return int(base), v - base
}

// Calibrate converts a raw cube to reflectance:
//
//	calibrated = (raw - dark) / (white - dark)
//
// clamped elementwise to [0, 1]. References whose spatial extent differs
// from the raw cube are first resampled to match; band counts must
// already agree across all three cubes.
//
// Where white equals dark the quotient follows IEEE semantics: +Inf
// clamps to 1, -Inf clamps to 0, and NaN (zero over zero) propagates.
// NaN stays consistent downstream, since NaN ratios never pass the mask
// threshold and NaN row means never pass the quality filter.
func Calibrate(raw, white, dark *models.Cube) (*models.Cube, error) {
	if white.Bands != raw.Bands {
		return nil, &ShapeMismatchError{
			Role: "white",
			Want: shapeString(raw),
			Got:  shapeString(white),
		}
	}
	if dark.Bands != raw.Bands {
		return nil, &ShapeMismatchError{
			Role: "dark",
			Want: shapeString(raw),
			Got:  shapeString(dark),
		}
	}

	white = Resample(white, raw.Rows, raw.Cols)
	dark = Resample(dark, raw.Rows, raw.Cols)

	// Resample guarantees matching extents for well-formed cubes; a
	// malformed reference (truncated data) still fails here.
	if len(white.Data) != len(raw.Data) {
		return nil, &ShapeMismatchError{Role: "white", Want: shapeString(raw), Got: shapeString(white)}
	}
	if len(dark.Data) != len(raw.Data) {
		return nil, &ShapeMismatchError{Role: "dark", Want: shapeString(raw), Got: shapeString(dark)}
	}

	out, err := models.NewCube(raw.Rows, raw.Cols, raw.Bands, raw.Wavelengths)
	if err != nil {
		return nil, err
	}

	numerator := out.Data
	floats.SubTo(numerator, raw.Data, dark.Data)

	denominator := make([]float64, len(raw.Data))
	floats.SubTo(denominator, white.Data, dark.Data)

	floats.Div(numerator, denominator)

	// Clamp to [0, 1]. The comparisons are written so NaN falls through
	// both and propagates.
	for i, v := range numerator {
		if v > 1 {
			numerator[i] = 1
		} else if v < 0 {
			numerator[i] = 0
		}
	}

	return out, nil
}

func shapeString(c *models.Cube) string {
	return fmt.Sprintf("%dx%dx%d", c.Rows, c.Cols, c.Bands)
}
