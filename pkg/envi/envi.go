// Package envi reads and writes hyperspectral cubes in the ENVI format:
// a flat binary data file accompanied by a plain-text header carrying the
// spatial dimensions, band count, data type, interleave and the ordered
// band center wavelengths.
package envi

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"hyperspec/internal/models"
)

// HeaderExt is the extension of ENVI header files. The batch driver treats
// every file with this extension as one image.
const HeaderExt = ".hdr"

// ENVI data type codes for the subset of types this package decodes.
const (
	typeUint8   = 1
	typeInt16   = 2
	typeFloat32 = 4
	typeUint16  = 12
)

// Header holds the fields parsed from an ENVI header file.
type Header struct {
	// Samples is the number of columns per line
	Samples int

	// Lines is the number of image rows
	Lines int

	// Bands is the number of spectral bands
	Bands int

	// DataType is the ENVI data type code (1, 2, 4 or 12)
	DataType int

	// Interleave is one of "bsq", "bil" or "bip"
	Interleave string

	// HeaderOffset is the number of bytes to skip at the start of the data file
	HeaderOffset int

	// BigEndian is true when "byte order = 1"
	BigEndian bool

	// Wavelengths holds the band centers in nanometers, one per band
	Wavelengths []float64
}

// ReadHeader parses an ENVI header file. It fails when a required field is
// missing or when the wavelength list length does not match the band count.
func ReadHeader(path string) (*Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %v", err)
	}

	fields, err := parseFields(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse header %s: %v", path, err)
	}

	h := &Header{Interleave: "bsq"}

	// Required numeric fields
	for _, req := range []struct {
		key string
		dst *int
	}{
		{"samples", &h.Samples},
		{"lines", &h.Lines},
		{"bands", &h.Bands},
		{"data type", &h.DataType},
	} {
		raw, ok := fields[req.key]
		if !ok {
			return nil, fmt.Errorf("header %s is missing required field %q", path, req.key)
		}
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("header %s field %q: %v", path, req.key, err)
		}
		*req.dst = v
	}

	if raw, ok := fields["interleave"]; ok {
		h.Interleave = strings.ToLower(strings.TrimSpace(raw))
	}
	switch h.Interleave {
	case "bsq", "bil", "bip":
	default:
		return nil, fmt.Errorf("header %s has unsupported interleave %q", path, h.Interleave)
	}

	if raw, ok := fields["header offset"]; ok {
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("header %s field \"header offset\": %v", path, err)
		}
		h.HeaderOffset = v
	}

	if raw, ok := fields["byte order"]; ok {
		h.BigEndian = strings.TrimSpace(raw) == "1"
	}

	if raw, ok := fields["wavelength"]; ok {
		wl, err := parseFloatList(raw)
		if err != nil {
			return nil, fmt.Errorf("header %s wavelength list: %v", path, err)
		}
		h.Wavelengths = wl
	}
	if h.Wavelengths == nil {
		return nil, fmt.Errorf("header %s is missing the wavelength list", path)
	}
	if len(h.Wavelengths) != h.Bands {
		return nil, fmt.Errorf("header %s declares %d bands but lists %d wavelengths",
			path, h.Bands, len(h.Wavelengths))
	}

	return h, nil
}

// parseFields splits ENVI header text into a lowercase key -> raw value map.
// Values wrapped in braces may span multiple lines.
func parseFields(text string) (map[string]string, error) {
	fields := make(map[string]string)
	lines := strings.Split(text, "\n")

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || line == "ENVI" {
			continue
		}

		eq := strings.Index(line, "=")
		if eq < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:eq]))
		value := strings.TrimSpace(line[eq+1:])

		// Brace-wrapped values continue until the closing brace
		if strings.HasPrefix(value, "{") && !strings.Contains(value, "}") {
			for i+1 < len(lines) {
				i++
				value += " " + strings.TrimSpace(lines[i])
				if strings.Contains(lines[i], "}") {
					break
				}
			}
			if !strings.Contains(value, "}") {
				return nil, fmt.Errorf("unterminated brace list for field %q", key)
			}
		}

		fields[key] = value
	}

	return fields, nil
}

// parseFloatList parses a brace-wrapped, comma-separated list of floats.
func parseFloatList(raw string) ([]float64, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "{")
	raw = strings.TrimSuffix(raw, "}")

	parts := strings.Split(raw, ",")
	values := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float %q: %v", p, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// dataFileFor locates the binary cube file belonging to a header file.
// By convention the data file is the header path with ".hdr" stripped,
// possibly with a different extension.
func dataFileFor(headerPath string) (string, error) {
	base := strings.TrimSuffix(headerPath, HeaderExt)

	// "image.dat.hdr" style: stripping .hdr yields the data path directly
	if info, err := os.Stat(base); err == nil && !info.IsDir() {
		return base, nil
	}

	// "image.hdr" + "image.dat" style
	for _, ext := range []string{".dat", ".raw", ".img", ".bin"} {
		candidate := base + ext
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no data file found for header %s", headerPath)
}

// Read loads the cube described by an ENVI header file. The companion data
// file is located next to the header by stripping the .hdr extension.
func Read(headerPath string) (*models.Cube, error) {
	h, err := ReadHeader(headerPath)
	if err != nil {
		return nil, err
	}

	dataPath, err := dataFileFor(headerPath)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cube data: %v", err)
	}
	if h.HeaderOffset > 0 {
		if h.HeaderOffset > len(raw) {
			return nil, fmt.Errorf("header offset %d exceeds data size %d", h.HeaderOffset, len(raw))
		}
		raw = raw[h.HeaderOffset:]
	}

	sampleSize, err := sampleSizeFor(h.DataType)
	if err != nil {
		return nil, fmt.Errorf("cube %s: %v", dataPath, err)
	}

	n := h.Lines * h.Samples * h.Bands
	if len(raw) < n*sampleSize {
		return nil, fmt.Errorf("cube %s holds %d bytes, expected at least %d",
			dataPath, len(raw), n*sampleSize)
	}

	cube, err := models.NewCube(h.Lines, h.Samples, h.Bands, h.Wavelengths)
	if err != nil {
		return nil, err
	}

	var order binary.ByteOrder = binary.LittleEndian
	if h.BigEndian {
		order = binary.BigEndian
	}

	decode := func(i int) float64 {
		off := i * sampleSize
		switch h.DataType {
		case typeUint8:
			return float64(raw[off])
		case typeInt16:
			return float64(int16(order.Uint16(raw[off:])))
		case typeUint16:
			return float64(order.Uint16(raw[off:]))
		default: // typeFloat32
			return float64(math.Float32frombits(order.Uint32(raw[off:])))
		}
	}

	// Map the on-disk interleave onto the cube's (row, col, band) layout
	i := 0
	switch h.Interleave {
	case "bsq":
		for b := 0; b < h.Bands; b++ {
			for r := 0; r < h.Lines; r++ {
				for c := 0; c < h.Samples; c++ {
					cube.Set(r, c, b, decode(i))
					i++
				}
			}
		}
	case "bil":
		for r := 0; r < h.Lines; r++ {
			for b := 0; b < h.Bands; b++ {
				for c := 0; c < h.Samples; c++ {
					cube.Set(r, c, b, decode(i))
					i++
				}
			}
		}
	case "bip":
		for r := 0; r < h.Lines; r++ {
			for c := 0; c < h.Samples; c++ {
				for b := 0; b < h.Bands; b++ {
					cube.Set(r, c, b, decode(i))
					i++
				}
			}
		}
	}

	return cube, nil
}

// sampleSizeFor returns the byte width of one sample of an ENVI data type.
func sampleSizeFor(dataType int) (int, error) {
	switch dataType {
	case typeUint8:
		return 1, nil
	case typeInt16, typeUint16:
		return 2, nil
	case typeFloat32:
		return 4, nil
	default:
		return 0, fmt.Errorf("unsupported ENVI data type %d", dataType)
	}
}

// Write persists a cube as little-endian float32 BSQ under dataPath,
// with a generated header at dataPath+".hdr" carrying the cube's
// wavelengths. Existing files at either path are overwritten.
func Write(dataPath string, cube *models.Cube) error {
	if err := os.MkdirAll(filepath.Dir(dataPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}

	buf := make([]byte, cube.Rows*cube.Cols*cube.Bands*4)
	i := 0
	for b := 0; b < cube.Bands; b++ {
		for r := 0; r < cube.Rows; r++ {
			for c := 0; c < cube.Cols; c++ {
				binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(cube.At(r, c, b))))
				i++
			}
		}
	}
	if err := os.WriteFile(dataPath, buf, 0644); err != nil {
		return fmt.Errorf("failed to write cube data: %v", err)
	}

	var sb strings.Builder
	sb.WriteString("ENVI\n")
	fmt.Fprintf(&sb, "samples = %d\n", cube.Cols)
	fmt.Fprintf(&sb, "lines = %d\n", cube.Rows)
	fmt.Fprintf(&sb, "bands = %d\n", cube.Bands)
	sb.WriteString("header offset = 0\n")
	sb.WriteString("data type = 4\n")
	sb.WriteString("interleave = bsq\n")
	sb.WriteString("byte order = 0\n")
	sb.WriteString("wavelength = {")
	for j, wl := range cube.Wavelengths {
		if j > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%.2f", wl)
	}
	sb.WriteString("}\n")

	if err := os.WriteFile(dataPath+HeaderExt, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write header: %v", err)
	}

	return nil
}
