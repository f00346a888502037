// Package report persists the tabular and textual artifacts of an
// extraction run: the subsample CSV and the plain-text summary.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"hyperspec/internal/models"
)

// WriteCSV writes a spectral table as CSV with one column per band,
// headed by the band center wavelengths formatted to two decimal places.
func WriteCSV(path string, table *models.SpectralTable, wavelengths []float64) error {
	if len(wavelengths) != table.Bands {
		return fmt.Errorf("wavelength count %d does not match table band count %d",
			len(wavelengths), table.Bands)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %v", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)

	header := make([]string, table.Bands)
	for i, wl := range wavelengths {
		header[i] = strconv.FormatFloat(wl, 'f', 2, 64)
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	record := make([]string, table.Bands)
	for i := 0; i < table.NumRows; i++ {
		row := table.Row(i)
		for j, v := range row {
			record[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %v", i, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %v", err)
	}
	return nil
}

// WriteReport renders the diagnostics record of one image as plain text.
func WriteReport(path, imageName string, d models.Diagnostics) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}

	text := fmt.Sprintf(`Extraction report for %s
========================================
Ratio bands: %.2f nm (band %d) / %.2f nm (band %d)
Pixels under mask: %d
Spectral table rows: %d
Rows after quality filter: %d (dropped %d)
Averaged spectral packages: %d
Packages retained in subsample: %d
`,
		imageName,
		d.NumeratorWavelength, d.NumeratorBand,
		d.DenominatorWavelength, d.DenominatorBand,
		d.MaskedPixels,
		d.TableRows,
		d.FilteredRows, d.DroppedRows,
		d.GroupedRows,
		d.SubsampleRows,
	)

	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write report: %v", err)
	}
	return nil
}
