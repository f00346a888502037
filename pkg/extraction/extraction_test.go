package extraction

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"golang.org/x/exp/rand"

	"hyperspec/internal/models"
)

// makeCube builds a test cube filled by the given pattern function.
func makeCube(t *testing.T, rows, cols int, wavelengths []float64, pattern func(r, c, b int) float64) *models.Cube {
	t.Helper()
	cube, err := models.NewCube(rows, cols, len(wavelengths), wavelengths)
	if err != nil {
		t.Fatalf("Failed to create cube: %v", err)
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			for b := 0; b < len(wavelengths); b++ {
				cube.Set(r, c, b, pattern(r, c, b))
			}
		}
	}
	return cube
}

// scenarioCube builds the 4x4x3 cube used by the end-to-end tests:
// six pixels carry a 751/676 ratio above 1.5, the rest sit at ratio 1.
func scenarioCube(t *testing.T) *models.Cube {
	t.Helper()
	boosted := map[[2]int]bool{
		{0, 0}: true, {0, 3}: true,
		{1, 1}: true, {2, 2}: true,
		{3, 0}: true, {3, 3}: true,
	}
	return makeCube(t, 4, 4, []float64{676, 751, 900}, func(r, c, b int) float64 {
		switch b {
		case 0:
			return 0.2
		case 1:
			if boosted[[2]int{r, c}] {
				return 0.5
			}
			return 0.2
		default:
			return 0.3
		}
	})
}

func scenarioParams() Params {
	p := DefaultParams()
	p.QualityThreshold = 0
	p.GroupSize = 2
	p.SampleFraction = 0.5
	return p
}

func TestNearestBand(t *testing.T) {
	t.Run("Exact", func(t *testing.T) {
		if got := NearestBand([]float64{675, 676, 677}, 676); got != 1 {
			t.Errorf("NearestBand = %d, want 1", got)
		}
	})

	t.Run("Nearest", func(t *testing.T) {
		if got := NearestBand([]float64{600, 700, 800}, 751); got != 1 {
			t.Errorf("NearestBand = %d, want 1", got)
		}
	})

	t.Run("TieTakesLowestIndex", func(t *testing.T) {
		if got := NearestBand([]float64{675, 677}, 676); got != 0 {
			t.Errorf("NearestBand = %d, want 0 on a tie", got)
		}
	})
}

func TestBuildMask(t *testing.T) {
	cube := scenarioCube(t)
	mask := BuildMask(cube, 1, 0, 1.5)

	if got := mask.Count(); got != 6 {
		t.Fatalf("Mask selected %d pixels, want 6", got)
	}
	if !mask.At(1, 1) {
		t.Error("Expected pixel (1,1) to be selected")
	}
	if mask.At(0, 1) {
		t.Error("Did not expect pixel (0,1) to be selected")
	}
}

func TestBuildMaskNaNIsFalse(t *testing.T) {
	// A zero denominator over a zero numerator yields NaN, which must
	// never pass the threshold comparison
	cube := makeCube(t, 2, 2, []float64{676, 751}, func(r, c, b int) float64 { return 0 })
	mask := BuildMask(cube, 1, 0, 1.5)
	if got := mask.Count(); got != 0 {
		t.Errorf("Mask selected %d pixels, want 0 for all-NaN ratios", got)
	}
}

func TestBuildTableRowMajorOrder(t *testing.T) {
	// Tag each pixel with a unique value so table rows identify their pixel
	cube := makeCube(t, 3, 3, []float64{676, 751}, func(r, c, b int) float64 {
		return float64(r*3 + c)
	})
	mask := models.NewMask(3, 3)
	mask.Set(2, 0, true)
	mask.Set(0, 1, true)
	mask.Set(1, 2, true)

	table := BuildTable(cube, mask)
	if table.NumRows != 3 {
		t.Fatalf("Table rows = %d, want 3", table.NumRows)
	}

	// Row-major enumeration visits (0,1), (1,2), (2,0)
	want := []float64{1, 5, 6}
	for i, w := range want {
		if got := table.At(i, 0); got != w {
			t.Errorf("Row %d tag = %g, want %g", i, got, w)
		}
	}
}

func TestFilterTable(t *testing.T) {
	table := models.NewSpectralTable(2)
	table.Append([]float64{0.4, 0.6}) // mean 0.5
	table.Append([]float64{0.0, 0.1}) // mean 0.05
	table.Append([]float64{0.2, 0.2}) // mean 0.2

	t.Run("Threshold", func(t *testing.T) {
		filtered := FilterTable(table, 0.1)
		if filtered.NumRows != 2 {
			t.Fatalf("Filtered rows = %d, want 2", filtered.NumRows)
		}
		// Order preserved from the source table
		if filtered.At(0, 0) != 0.4 || filtered.At(1, 0) != 0.2 {
			t.Error("Filtering did not preserve source row order")
		}
	})

	t.Run("Monotonic", func(t *testing.T) {
		prev := table.NumRows + 1
		for _, threshold := range []float64{0, 0.1, 0.3, 0.6} {
			n := FilterTable(table, threshold).NumRows
			if n > prev {
				t.Fatalf("Raising threshold to %g increased row count %d -> %d", threshold, prev, n)
			}
			prev = n
		}
	})

	t.Run("NaNRowsDropped", func(t *testing.T) {
		withNaN := models.NewSpectralTable(2)
		withNaN.Append([]float64{math.NaN(), 0.9})
		withNaN.Append([]float64{0.5, 0.5})
		filtered := FilterTable(withNaN, 0.0)
		if filtered.NumRows != 1 {
			t.Fatalf("Filtered rows = %d, want 1 (NaN mean must not pass)", filtered.NumRows)
		}
	})
}

func TestGroupRows(t *testing.T) {
	table := models.NewSpectralTable(2)
	for i := 0; i < 7; i++ {
		table.Append([]float64{float64(i), float64(i) * 2})
	}

	t.Run("RemainderDropped", func(t *testing.T) {
		grouped, err := GroupRows(table, 3, rand.New(rand.NewSource(42)))
		if err != nil {
			t.Fatalf("GroupRows failed: %v", err)
		}
		if grouped.NumRows != 2 {
			t.Errorf("Grouped rows = %d, want 2 (7 rows / group size 3)", grouped.NumRows)
		}
	})

	t.Run("ZeroMeansSingleGroup", func(t *testing.T) {
		grouped, err := GroupRows(table, 0, rand.New(rand.NewSource(42)))
		if err != nil {
			t.Fatalf("GroupRows failed: %v", err)
		}
		if grouped.NumRows != 1 {
			t.Fatalf("Grouped rows = %d, want 1", grouped.NumRows)
		}
		// A single group averages every row regardless of permutation
		if math.Abs(grouped.At(0, 0)-3) > 1e-12 {
			t.Errorf("Group mean = %g, want 3", grouped.At(0, 0))
		}
	})

	t.Run("GroupSizeTooLarge", func(t *testing.T) {
		_, err := GroupRows(table, 8, rand.New(rand.NewSource(42)))
		var insufficient *InsufficientDataError
		if !errors.As(err, &insufficient) {
			t.Fatalf("GroupRows error = %v, want InsufficientDataError", err)
		}
	})
}

func TestSubsample(t *testing.T) {
	table := models.NewSpectralTable(1)
	for i := 0; i < 10; i++ {
		table.Append([]float64{float64(i)})
	}

	t.Run("FloorCount", func(t *testing.T) {
		out := Subsample(table, 0.35, rand.New(rand.NewSource(42)))
		if out.NumRows != 3 {
			t.Errorf("Subsample rows = %d, want 3", out.NumRows)
		}
	})

	t.Run("WithoutReplacement", func(t *testing.T) {
		out := Subsample(table, 0.9, rand.New(rand.NewSource(42)))
		seen := make(map[float64]bool)
		for i := 0; i < out.NumRows; i++ {
			v := out.At(i, 0)
			if seen[v] {
				t.Fatalf("Row %g drawn twice", v)
			}
			seen[v] = true
		}
	})

	t.Run("ZeroRows", func(t *testing.T) {
		out := Subsample(table, 0.05, rand.New(rand.NewSource(42)))
		if out.NumRows != 0 {
			t.Errorf("Subsample rows = %d, want 0 for floor(10*0.05)", out.NumRows)
		}
	})
}

// TestExtractEndToEnd runs the documented synthetic scenario: a 4x4x3
// cube with six ratio-selected pixels, group size 2 and sample fraction
// 0.5 must reduce to 6 filtered rows, 3 packages and 1 retained package.
func TestExtractEndToEnd(t *testing.T) {
	result, err := Extract(scenarioCube(t), scenarioParams())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	d := result.Diagnostics
	if d.MaskedPixels != 6 {
		t.Errorf("Masked pixels = %d, want 6", d.MaskedPixels)
	}
	if d.NumeratorBand != 1 || d.DenominatorBand != 0 {
		t.Errorf("Selected bands = (%d, %d), want (1, 0)", d.NumeratorBand, d.DenominatorBand)
	}
	if result.Filtered.NumRows != 6 {
		t.Errorf("Filtered rows = %d, want 6", result.Filtered.NumRows)
	}
	if result.Grouped.NumRows != 3 {
		t.Errorf("Grouped rows = %d, want 3", result.Grouped.NumRows)
	}
	if result.Subsample.NumRows != 1 {
		t.Errorf("Subsample rows = %d, want 1", result.Subsample.NumRows)
	}
	if d.DroppedRows != 0 {
		t.Errorf("Dropped rows = %d, want 0 at quality threshold 0", d.DroppedRows)
	}
}

// TestExtractDeterminism verifies the reproducibility contract: the same
// cube, parameters and seed must produce identical artifacts.
func TestExtractDeterminism(t *testing.T) {
	first, err := Extract(scenarioCube(t), scenarioParams())
	if err != nil {
		t.Fatalf("First extract failed: %v", err)
	}
	second, err := Extract(scenarioCube(t), scenarioParams())
	if err != nil {
		t.Fatalf("Second extract failed: %v", err)
	}

	if !reflect.DeepEqual(first.Mask, second.Mask) {
		t.Error("Masks differ between runs")
	}
	if !reflect.DeepEqual(first.Filtered, second.Filtered) {
		t.Error("Filtered tables differ between runs")
	}
	if !reflect.DeepEqual(first.Grouped, second.Grouped) {
		t.Error("Grouped tables differ between runs")
	}
	if !reflect.DeepEqual(first.Subsample, second.Subsample) {
		t.Error("Subsample tables differ between runs")
	}
}

func TestExtractRowCountInvariants(t *testing.T) {
	// A 10x10 cube where every pixel passes the mask
	cube := makeCube(t, 10, 10, []float64{676, 751}, func(r, c, b int) float64 {
		if b == 1 {
			return 0.8
		}
		return 0.2
	})

	params := DefaultParams()
	params.GroupSize = 7
	params.SampleFraction = 0.4

	result, err := Extract(cube, params)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	filtered := result.Filtered.NumRows
	grouped := result.Grouped.NumRows
	if grouped != filtered/params.GroupSize {
		t.Errorf("Grouped rows = %d, want %d", grouped, filtered/params.GroupSize)
	}
	wantSub := int(float64(grouped) * params.SampleFraction)
	if result.Subsample.NumRows != wantSub {
		t.Errorf("Subsample rows = %d, want %d", result.Subsample.NumRows, wantSub)
	}
}

func TestExtractEmptyRegion(t *testing.T) {
	// Uniform bands give ratio 1 everywhere, below the threshold
	cube := makeCube(t, 4, 4, []float64{676, 751}, func(r, c, b int) float64 { return 0.5 })

	_, err := Extract(cube, DefaultParams())
	var empty *EmptyRegionError
	if !errors.As(err, &empty) {
		t.Fatalf("Extract error = %v, want EmptyRegionError", err)
	}
}

func TestExtractInsufficientData(t *testing.T) {
	params := scenarioParams()
	params.GroupSize = 50 // more than the six masked pixels

	_, err := Extract(scenarioCube(t), params)
	var insufficient *InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("Extract error = %v, want InsufficientDataError", err)
	}
}
