// Package extraction derives a region-of-interest mask from a two-band
// reflectance ratio and reduces the masked pixel spectra to a filtered,
// randomly grouped and subsampled table of spectral packages.
package extraction

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/sampleuv"

	"hyperspec/internal/models"
)

// Params controls one extraction run. The zero GroupSize means "group all
// filtered rows", collapsing grouping into a single averaged spectrum.
type Params struct {
	// RatioThreshold is the band-ratio cutoff for the region mask
	RatioThreshold float64

	// QualityThreshold is the minimum across-band mean reflectance a
	// pixel spectrum must reach to survive filtering
	QualityThreshold float64

	// GroupSize is the number of permuted rows averaged into one
	// spectral package; 0 averages all filtered rows into one package
	GroupSize int

	// SampleFraction is the fraction of grouped rows retained in the
	// final subsample
	SampleFraction float64

	// Seed seeds the permutation and subsampling generators
	Seed uint64

	// NumeratorNM and DenominatorNM are the target band centers for the
	// ratio, in nanometers
	NumeratorNM   float64
	DenominatorNM float64
}

// DefaultParams returns the extraction parameters used by the pipeline
// unless overridden by configuration.
func DefaultParams() Params {
	return Params{
		RatioThreshold:   1.5,
		QualityThreshold: 0.01,
		GroupSize:        0,
		SampleFraction:   0.03,
		Seed:             42,
		NumeratorNM:      751,
		DenominatorNM:    676,
	}
}

// Result holds every artifact of one extraction run.
type Result struct {
	// Mask is the ratio-derived region-of-interest selector
	Mask *models.Mask

	// Filtered is the quality-filtered spectral table
	Filtered *models.SpectralTable

	// Grouped holds one averaged spectral package per row
	Grouped *models.SpectralTable

	// Subsample is the final randomly retained fraction of Grouped
	Subsample *models.SpectralTable

	// Diagnostics summarizes the run for reporting
	Diagnostics models.Diagnostics
}

// EmptyRegionError reports a mask that selected no pixels.
type EmptyRegionError struct {
	// Threshold is the ratio cutoff that produced the empty mask
	Threshold float64
}

func (e *EmptyRegionError) Error() string {
	return fmt.Sprintf("band ratio mask selected no pixels at threshold %g", e.Threshold)
}

// InsufficientDataError reports a group size no filtered table can fill.
type InsufficientDataError struct {
	GroupSize int
	Rows      int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("group size %d exceeds the %d available filtered rows",
		e.GroupSize, e.Rows)
}

// NearestBand returns the index of the band whose center wavelength is
// closest to target. Ties resolve to the lowest index.
func NearestBand(wavelengths []float64, target float64) int {
	best := 0
	bestDist := math.Abs(wavelengths[0] - target)
	for i := 1; i < len(wavelengths); i++ {
		d := math.Abs(wavelengths[i] - target)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// BuildMask marks every pixel whose reflectance ratio between the
// numerator and denominator bands exceeds the threshold. NaN and Inf
// ratios follow IEEE comparison semantics, so NaN never passes.
func BuildMask(cube *models.Cube, numBand, denBand int, threshold float64) *models.Mask {
	mask := models.NewMask(cube.Rows, cube.Cols)
	for r := 0; r < cube.Rows; r++ {
		for c := 0; c < cube.Cols; c++ {
			ratio := cube.At(r, c, numBand) / cube.At(r, c, denBand)
			if ratio > threshold {
				mask.Set(r, c, true)
			}
		}
	}
	return mask
}

// BuildTable collects the full spectrum of every mask-selected pixel into
// a table, one row per pixel. Pixels are enumerated in row-major order
// (all columns of row 0 before row 1); this ordering is part of the
// reproducibility contract, since it decides which rows land in which
// random group for a fixed seed.
func BuildTable(cube *models.Cube, mask *models.Mask) *models.SpectralTable {
	table := models.NewSpectralTable(cube.Bands)
	for r := 0; r < cube.Rows; r++ {
		for c := 0; c < cube.Cols; c++ {
			if mask.At(r, c) {
				table.Append(cube.Spectrum(r, c))
			}
		}
	}
	return table
}

// FilterTable keeps the rows whose across-band mean reflectance is at
// least minMean, preserving row order. Rows with NaN means are dropped.
func FilterTable(table *models.SpectralTable, minMean float64) *models.SpectralTable {
	out := models.NewSpectralTable(table.Bands)
	for i := 0; i < table.NumRows; i++ {
		row := table.Row(i)
		if stat.Mean(row, nil) >= minMean {
			out.Append(row)
		}
	}
	return out
}

// GroupRows randomly permutes the table's row order with rng, partitions
// the permuted sequence into consecutive blocks of groupSize rows, and
// averages each block per column into one spectral package. A trailing
// partial block is discarded. groupSize 0 means all rows form one block.
func GroupRows(table *models.SpectralTable, groupSize int, rng *rand.Rand) (*models.SpectralTable, error) {
	if groupSize == 0 {
		groupSize = table.NumRows
	}
	if groupSize > table.NumRows || table.NumRows == 0 {
		return nil, &InsufficientDataError{GroupSize: groupSize, Rows: table.NumRows}
	}

	perm := rng.Perm(table.NumRows)
	numGroups := table.NumRows / groupSize

	out := models.NewSpectralTable(table.Bands)
	acc := make([]float64, table.Bands)
	for g := 0; g < numGroups; g++ {
		for i := range acc {
			acc[i] = 0
		}
		for j := g * groupSize; j < (g+1)*groupSize; j++ {
			floats.Add(acc, table.Row(perm[j]))
		}
		floats.Scale(1/float64(groupSize), acc)
		out.Append(acc)
	}

	return out, nil
}

// Subsample retains floor(rows * fraction) rows of the table, drawn
// uniformly without replacement with rng, reindexed from zero in draw
// order.
func Subsample(table *models.SpectralTable, fraction float64, rng *rand.Rand) *models.SpectralTable {
	k := int(float64(table.NumRows) * fraction)
	out := models.NewSpectralTable(table.Bands)
	if k <= 0 {
		return out
	}

	idxs := make([]int, k)
	sampleuv.WithoutReplacement(idxs, table.NumRows, rng)
	for _, i := range idxs {
		out.Append(table.Row(i))
	}
	return out
}

// Extract runs the full masking, filtering, grouping and subsampling
// sequence over one calibrated cube.
//
// The run is deterministic for a fixed seed: the permutation and the
// subsample draw each use their own locally constructed generator seeded
// with Params.Seed, so concurrent extractions never share generator
// state and the subsample does not depend on how much randomness the
// permutation consumed.
func Extract(cube *models.Cube, params Params) (*Result, error) {
	numBand := NearestBand(cube.Wavelengths, params.NumeratorNM)
	denBand := NearestBand(cube.Wavelengths, params.DenominatorNM)

	mask := BuildMask(cube, numBand, denBand, params.RatioThreshold)
	masked := mask.Count()
	if masked == 0 {
		return nil, &EmptyRegionError{Threshold: params.RatioThreshold}
	}

	table := BuildTable(cube, mask)
	filtered := FilterTable(table, params.QualityThreshold)

	grouped, err := GroupRows(filtered, params.GroupSize, rand.New(rand.NewSource(params.Seed)))
	if err != nil {
		return nil, err
	}

	subsample := Subsample(grouped, params.SampleFraction, rand.New(rand.NewSource(params.Seed)))

	return &Result{
		Mask:      mask,
		Filtered:  filtered,
		Grouped:   grouped,
		Subsample: subsample,
		Diagnostics: models.Diagnostics{
			MaskedPixels:          masked,
			TableRows:             table.NumRows,
			FilteredRows:          filtered.NumRows,
			DroppedRows:           table.NumRows - filtered.NumRows,
			GroupedRows:           grouped.NumRows,
			SubsampleRows:         subsample.NumRows,
			NumeratorBand:         numBand,
			DenominatorBand:       denBand,
			NumeratorWavelength:   cube.Wavelengths[numBand],
			DenominatorWavelength: cube.Wavelengths[denBand],
		},
	}, nil
}
