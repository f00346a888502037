package models

// SpectralTable is a row-per-pixel, column-per-band table of spectra.
// Unlike a cube it has no spatial structure: each row is one spectrum,
// in whatever order the producing stage defined.
type SpectralTable struct {
	// Data is the table in row-major order: Data[row*Bands+band]
	Data []float64

	// NumRows is the number of spectra in the table
	NumRows int

	// Bands is the number of columns (spectral bands)
	Bands int
}

// NewSpectralTable returns an empty table with the given band count.
func NewSpectralTable(bands int) *SpectralTable {
	return &SpectralTable{Bands: bands}
}

// Append adds one spectrum as a new row. The spectrum is copied.
func (t *SpectralTable) Append(spectrum []float64) {
	t.Data = append(t.Data, spectrum...)
	t.NumRows++
}

// Row returns row i as a view into the table's backing array.
func (t *SpectralTable) Row(i int) []float64 {
	return t.Data[i*t.Bands : (i+1)*t.Bands]
}

// At returns the value at (row, band).
func (t *SpectralTable) At(row, band int) float64 {
	return t.Data[row*t.Bands+band]
}

// Diagnostics summarizes one extraction run. It is a plain data record;
// rendering it as a report is the reporting collaborator's job.
type Diagnostics struct {
	// MaskedPixels is the number of pixels selected by the ratio mask
	MaskedPixels int

	// TableRows is the spectral table row count before quality filtering
	TableRows int

	// FilteredRows is the row count after quality filtering
	FilteredRows int

	// DroppedRows is TableRows - FilteredRows
	DroppedRows int

	// GroupedRows is the number of averaged spectral packages
	GroupedRows int

	// SubsampleRows is the number of packages retained in the final sample
	SubsampleRows int

	// NumeratorBand and DenominatorBand are the selected band indexes
	NumeratorBand   int
	DenominatorBand int

	// NumeratorWavelength and DenominatorWavelength are the corresponding
	// band centers in nanometers
	NumeratorWavelength   float64
	DenominatorWavelength float64
}
