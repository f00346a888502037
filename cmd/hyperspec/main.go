package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"hyperspec/pkg/batch"
	"hyperspec/pkg/config"
)

func main() {
	// Parse command line arguments
	inputRoot := flag.String("input", "", "Root directory containing hyperspectral captures")
	outputRoot := flag.String("output", "output", "Root directory for pipeline artifacts")
	mode := flag.String("mode", "run", "Pipeline stage: calibrate, extract or run (both)")
	configPath := flag.String("config", "hyperspec.yaml", "Path to the YAML configuration file")
	workers := flag.Int("workers", 0, "Number of images processed concurrently (default: config value)")
	flag.Parse()

	// Validate inputs
	if *inputRoot == "" {
		flag.Usage()
		os.Exit(1)
	}

	// Load configuration, falling back to defaults when the file is absent
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *workers > 0 {
		cfg.Batch.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("PUSH-BROOM HYPERSPECTRAL CALIBRATION AND SPECTRA EXTRACTION")
	fmt.Println("================================")

	startTime := time.Now()

	switch *mode {
	case "calibrate":
		runCalibration(*inputRoot, *outputRoot, cfg)
	case "extract":
		runExtraction(*inputRoot, *outputRoot, cfg)
	case "run":
		runCalibration(*inputRoot, *outputRoot, cfg)
		// Extraction consumes the calibrated cubes written by stage one
		calibratedRoot := filepath.Join(*outputRoot, "calibrated")
		runExtraction(calibratedRoot, *outputRoot, cfg)
	default:
		log.Fatalf("Unknown mode %q: expected calibrate, extract or run", *mode)
	}

	fmt.Printf("\nPipeline finished in %.2f seconds\n", time.Since(startTime).Seconds())
}

// runCalibration drives the calibration stage and prints its summary.
// Per-image failures are reported by the runner and do not end the
// process; only a configuration-level failure is fatal.
func runCalibration(inputRoot, outputRoot string, cfg *config.Config) {
	fmt.Println("\nStage 1: Calibrating raw captures against white/dark references...")

	runner := batch.NewRunner(inputRoot, outputRoot, cfg)
	summary, err := runner.CalibrateAll()
	if err != nil {
		log.Fatalf("Calibration stage failed: %v", err)
	}

	printSummary("Calibration", summary)
}

// runExtraction drives the extraction stage and prints its summary.
func runExtraction(inputRoot, outputRoot string, cfg *config.Config) {
	fmt.Println("\nStage 2: Extracting spectral packages from calibrated cubes...")

	runner := batch.NewRunner(inputRoot, outputRoot, cfg)
	summary, err := runner.ExtractAll()
	if err != nil {
		log.Fatalf("Extraction stage failed: %v", err)
	}

	printSummary("Extraction", summary)
}

func printSummary(stage string, summary *batch.Summary) {
	fmt.Printf("\n%s summary:\n", stage)
	fmt.Printf("- Images processed: %d\n", summary.Processed)
	if summary.Skipped > 0 {
		fmt.Printf("- Directories skipped: %d\n", summary.Skipped)
	}
	if len(summary.Failures) > 0 {
		fmt.Printf("- Failures: %d\n", len(summary.Failures))
		for _, f := range summary.Failures {
			fmt.Printf("  %s: %v\n", f.Image, f.Err)
		}
	}
}
