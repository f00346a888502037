// Package batch discovers hyperspectral images under an input root and
// drives calibration and extraction over them, one independent run per
// image. Per-image failures are collected and reported without aborting
// the remaining images.
package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"hyperspec/internal/models"
	"hyperspec/pkg/calibration"
	"hyperspec/pkg/config"
	"hyperspec/pkg/envi"
	"hyperspec/pkg/extraction"
	"hyperspec/pkg/render"
	"hyperspec/pkg/report"
)

// MissingInputError reports a sample directory lacking one of the
// raw/white/dark roles. The directory is skipped, not fatal.
type MissingInputError struct {
	// Dir is the sample directory
	Dir string

	// Role is the missing role: "raw", "white" or "dark"
	Role string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("directory %s has no %s capture", e.Dir, e.Role)
}

// Failure records one image that could not be processed.
type Failure struct {
	// Image is the path of the failed input
	Image string

	// Err is the reason
	Err error
}

// Summary reports the outcome of one batch stage.
type Summary struct {
	// Processed is the number of images completed successfully
	Processed int

	// Skipped is the number of sample directories skipped for missing inputs
	Skipped int

	// Failures lists the images that errored
	Failures []Failure
}

// Runner walks an input tree and processes every discovered image.
type Runner struct {
	// cfg holds the pipeline configuration
	cfg *config.Config

	// inputRoot and outputRoot bound the filesystem surface of a run;
	// each image writes only inside its own output subdirectory
	inputRoot  string
	outputRoot string
}

// NewRunner creates a batch runner over the given roots.
func NewRunner(inputRoot, outputRoot string, cfg *config.Config) *Runner {
	return &Runner{
		cfg:        cfg,
		inputRoot:  inputRoot,
		outputRoot: outputRoot,
	}
}

// sample groups the three capture roles found in one leaf directory.
type sample struct {
	dir   string
	raw   string
	white string
	dark  string
}

// CalibrateAll walks the input tree, groups each leaf directory's header
// files into raw/white/dark roles by filename marker, calibrates every
// raw capture and persists the reflectance cube under
// <outputRoot>/calibrated/<image>/. Directories missing a role are
// skipped with a message; per-image failures do not stop the batch.
func (r *Runner) CalibrateAll() (*Summary, error) {
	if err := os.MkdirAll(r.outputRoot, 0755); err != nil {
		return nil, fmt.Errorf("output root is not writable: %v", err)
	}

	samples, skipped, err := r.collectSamples()
	if err != nil {
		return nil, err
	}

	summary := &Summary{Skipped: skipped}

	type calResult struct {
		raw string
		err error
	}

	jobs := make(chan sample)
	results := make(chan calResult)

	workers := r.cfg.Batch.Workers
	for w := 0; w < workers; w++ {
		go func() {
			for s := range jobs {
				results <- calResult{raw: s.raw, err: r.calibrateOne(s)}
			}
		}()
	}

	go func() {
		for _, s := range samples {
			jobs <- s
		}
		close(jobs)
	}()

	for range samples {
		res := <-results
		if res.err != nil {
			fmt.Printf("calibration of %s failed: %v\n", res.raw, res.err)
			summary.Failures = append(summary.Failures, Failure{Image: res.raw, Err: res.err})
			continue
		}
		summary.Processed++
	}

	return summary, nil
}

// collectSamples finds every directory under the input root holding
// header files and splits its contents into capture roles.
func (r *Runner) collectSamples() ([]sample, int, error) {
	headersByDir := make(map[string][]string)
	err := filepath.WalkDir(r.inputRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, envi.HeaderExt) {
			dir := filepath.Dir(path)
			headersByDir[dir] = append(headersByDir[dir], path)
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to walk input root: %v", err)
	}
	if len(headersByDir) == 0 {
		return nil, 0, fmt.Errorf("no %s files found under %s", envi.HeaderExt, r.inputRoot)
	}

	dirs := make([]string, 0, len(headersByDir))
	for dir := range headersByDir {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	var samples []sample
	skipped := 0
	for _, dir := range dirs {
		headers := headersByDir[dir]
		sort.Strings(headers)

		var s sample
		s.dir = dir
		var raws []string
		for _, h := range headers {
			name := filepath.Base(h)
			switch {
			case strings.Contains(name, r.cfg.Calibration.WhiteMarker):
				s.white = h
			case strings.Contains(name, r.cfg.Calibration.DarkMarker):
				s.dark = h
			default:
				raws = append(raws, h)
			}
		}

		missing := ""
		switch {
		case len(raws) == 0:
			missing = "raw"
		case s.white == "":
			missing = "white"
		case s.dark == "":
			missing = "dark"
		}
		if missing != "" {
			fmt.Printf("skipping %v\n", &MissingInputError{Dir: dir, Role: missing})
			skipped++
			continue
		}

		// A directory may hold several raw captures sharing one
		// reference pair; each raw is its own image.
		for _, raw := range raws {
			samples = append(samples, sample{dir: dir, raw: raw, white: s.white, dark: s.dark})
		}
	}

	return samples, skipped, nil
}

// calibrateOne loads one raw/white/dark triple, calibrates it and writes
// the reflectance cube.
func (r *Runner) calibrateOne(s sample) error {
	raw, err := envi.Read(s.raw)
	if err != nil {
		return fmt.Errorf("failed to load raw cube: %v", err)
	}
	white, err := envi.Read(s.white)
	if err != nil {
		return fmt.Errorf("failed to load white reference: %v", err)
	}
	dark, err := envi.Read(s.dark)
	if err != nil {
		return fmt.Errorf("failed to load dark reference: %v", err)
	}

	calibrated, err := calibration.Calibrate(raw, white, dark)
	if err != nil {
		return err
	}

	name := imageName(s.raw)
	out := filepath.Join(r.outputRoot, "calibrated", name, name+"_calibrated.dat")
	if err := envi.Write(out, calibrated); err != nil {
		return err
	}

	return nil
}

// ExtractAll treats every header file under the input root as one
// calibrated image and runs extraction on each, persisting renders,
// plots, the subsample CSV and the report under
// <outputRoot>/<parent_dir_name>/.
func (r *Runner) ExtractAll() (*Summary, error) {
	if err := os.MkdirAll(r.outputRoot, 0755); err != nil {
		return nil, fmt.Errorf("output root is not writable: %v", err)
	}

	var images []string
	err := filepath.WalkDir(r.inputRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, envi.HeaderExt) {
			images = append(images, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk input root: %v", err)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("no %s files found under %s", envi.HeaderExt, r.inputRoot)
	}
	sort.Strings(images)

	summary := &Summary{}

	type extResult struct {
		image string
		err   error
	}

	jobs := make(chan string)
	results := make(chan extResult)

	workers := r.cfg.Batch.Workers
	for w := 0; w < workers; w++ {
		go func() {
			for image := range jobs {
				results <- extResult{image: image, err: r.extractOne(image)}
			}
		}()
	}

	go func() {
		for _, image := range images {
			jobs <- image
		}
		close(jobs)
	}()

	completed := 0
	for range images {
		res := <-results
		completed++
		if res.err != nil {
			fmt.Printf("extraction of %s failed: %v\n", res.image, res.err)
			summary.Failures = append(summary.Failures, Failure{Image: res.image, Err: res.err})
			continue
		}
		summary.Processed++
		fmt.Printf("\rExtracting: %d/%d images", completed, len(images))
	}
	fmt.Println()

	return summary, nil
}

// extractOne runs extraction over one calibrated cube and persists every
// per-image artifact into the image's own output subdirectory.
func (r *Runner) extractOne(headerPath string) error {
	cube, err := envi.Read(headerPath)
	if err != nil {
		return fmt.Errorf("failed to load cube: %v", err)
	}

	params := extraction.Params{
		RatioThreshold:   r.cfg.Extraction.RatioThreshold,
		QualityThreshold: r.cfg.Extraction.QualityThreshold,
		GroupSize:        r.cfg.Extraction.GroupSize,
		SampleFraction:   r.cfg.Extraction.SampleFraction,
		Seed:             r.cfg.Extraction.Seed,
		NumeratorNM:      r.cfg.Extraction.NumeratorNM,
		DenominatorNM:    r.cfg.Extraction.DenominatorNM,
	}

	result, err := extraction.Extract(cube, params)
	if err != nil {
		return err
	}

	name := imageName(headerPath)
	outDir := filepath.Join(r.outputRoot, filepath.Base(filepath.Dir(headerPath)))

	if r.cfg.Batch.SaveRenders {
		if err := r.saveRenders(outDir, name, cube, result); err != nil {
			return err
		}
	}

	csvPath := filepath.Join(outDir, name+"_averaged_spectra.csv")
	if err := report.WriteCSV(csvPath, result.Subsample, cube.Wavelengths); err != nil {
		return err
	}

	reportPath := filepath.Join(outDir, name+"_report.txt")
	if err := report.WriteReport(reportPath, name, result.Diagnostics); err != nil {
		return err
	}

	return nil
}

// saveRenders writes the false-color views and spectra plots for one image.
func (r *Runner) saveRenders(outDir, name string, cube *models.Cube, result *extraction.Result) error {
	if err := render.SavePNG(filepath.Join(outDir, name+"_original.png"),
		render.FalseColor(cube)); err != nil {
		return err
	}
	if err := render.SavePNG(filepath.Join(outDir, name+"_mask_overlay.png"),
		render.Overlay(cube, result.Mask)); err != nil {
		return err
	}
	if err := render.MeanSpectrumPlot(filepath.Join(outDir, name+"_average_spectra_filtered.png"),
		result.Filtered, cube.Wavelengths, false); err != nil {
		return err
	}
	if err := render.MeanSpectrumPlot(filepath.Join(outDir, name+"_average_spectra_std_filtered.png"),
		result.Filtered, cube.Wavelengths, true); err != nil {
		return err
	}
	if err := render.SpectraPlot(filepath.Join(outDir, name+"_selected_3_percent_spectra.png"),
		"Selected spectral packages", result.Subsample, cube.Wavelengths); err != nil {
		return err
	}
	return nil
}

// imageName derives the image name from a header path by stripping the
// header extension and any remaining data-file extension.
func imageName(headerPath string) string {
	base := strings.TrimSuffix(filepath.Base(headerPath), envi.HeaderExt)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
