package datasets

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// pcdCloud is a decoded Point Cloud Data file: a dense count×stride float32
// matrix plus the field names from the header. The scanner app writes
// (x, y, z, c) clouds, but the decoder accepts any field layout.
type pcdCloud struct {
	fields []string
	stride int
	count  int
	data   []float32 // row-major, len == count*stride
}

// xyz returns the point's first three coordinates.
func (c *pcdCloud) xyz(i int) (x, y, z float32) {
	row := c.data[i*c.stride:]
	return row[0], row[1], row[2]
}

// readPCD decodes a PCD v0.7 file in "ascii" or "binary" (little-endian)
// format. Empty clouds and unsupported encodings are errors; callers treat
// decode errors as "sample unavailable".
func readPCD(path string) (*pcdCloud, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open point cloud %s", path)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	cloud := &pcdCloud{count: -1}
	var sizes []int
	var types []string
	width, height := -1, -1
	format := ""

	for format == "" {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, errors.Wrapf(err, "truncated PCD header in %s", path)
		}
		tokens := strings.Fields(line)
		if len(tokens) < 2 || strings.HasPrefix(tokens[0], "#") {
			continue
		}
		switch strings.ToUpper(tokens[0]) {
		case "FIELDS":
			cloud.fields = tokens[1:]
		case "SIZE":
			sizes, err = atoiAll(tokens[1:])
			if err != nil {
				return nil, errors.Wrapf(err, "bad SIZE in %s", path)
			}
		case "TYPE":
			types = tokens[1:]
		case "COUNT":
			counts, err := atoiAll(tokens[1:])
			if err != nil {
				return nil, errors.Wrapf(err, "bad COUNT in %s", path)
			}
			for _, c := range counts {
				if c != 1 {
					return nil, errors.Errorf("%s: multi-count fields are not supported", path)
				}
			}
		case "WIDTH":
			width, err = strconv.Atoi(tokens[1])
			if err != nil {
				return nil, errors.Wrapf(err, "bad WIDTH in %s", path)
			}
		case "HEIGHT":
			height, err = strconv.Atoi(tokens[1])
			if err != nil {
				return nil, errors.Wrapf(err, "bad HEIGHT in %s", path)
			}
		case "POINTS":
			cloud.count, err = strconv.Atoi(tokens[1])
			if err != nil {
				return nil, errors.Wrapf(err, "bad POINTS in %s", path)
			}
		case "DATA":
			format = tokens[1]
		}
	}

	cloud.stride = len(cloud.fields)
	if cloud.stride == 0 {
		return nil, errors.Errorf("%s: header declares no fields", path)
	}
	if cloud.count < 0 && width > 0 && height > 0 {
		cloud.count = width * height
	}
	if cloud.count <= 0 {
		return nil, errors.Errorf("%s: empty point cloud", path)
	}
	if len(sizes) != cloud.stride || len(types) != cloud.stride {
		return nil, errors.Errorf("%s: FIELDS/SIZE/TYPE lengths disagree", path)
	}

	cloud.data = make([]float32, cloud.count*cloud.stride)
	switch format {
	case "ascii":
		if err := readPCDASCII(r, cloud); err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", path)
		}
	case "binary":
		if err := readPCDBinary(r, cloud, sizes, types); err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", path)
		}
	default:
		return nil, errors.Errorf("%s: unsupported DATA format %q", path, format)
	}
	return cloud, nil
}

func readPCDASCII(r *bufio.Reader, cloud *pcdCloud) error {
	for i := 0; i < cloud.count; i++ {
		line, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		values := strings.Fields(line)
		if len(values) != cloud.stride {
			return errors.Errorf("point %d has %d values, want %d", i, len(values), cloud.stride)
		}
		for j, s := range values {
			v, err := strconv.ParseFloat(s, 32)
			if err != nil {
				return errors.Wrapf(err, "point %d field %s", i, cloud.fields[j])
			}
			cloud.data[i*cloud.stride+j] = float32(v)
		}
	}
	return nil
}

func readPCDBinary(r *bufio.Reader, cloud *pcdCloud, sizes []int, types []string) error {
	rowBytes := 0
	for _, s := range sizes {
		rowBytes += s
	}
	row := make([]byte, rowBytes)
	for i := 0; i < cloud.count; i++ {
		if _, err := io.ReadFull(r, row); err != nil {
			return errors.Wrapf(err, "point %d", i)
		}
		off := 0
		for j := range cloud.fields {
			v, err := decodeScalar(row[off:off+sizes[j]], types[j])
			if err != nil {
				return errors.Wrapf(err, "point %d field %s", i, cloud.fields[j])
			}
			cloud.data[i*cloud.stride+j] = v
			off += sizes[j]
		}
	}
	return nil
}

// decodeScalar converts one little-endian field value to float32. typ is the
// PCD TYPE letter: F (float), I (signed), U (unsigned).
func decodeScalar(b []byte, typ string) (float32, error) {
	switch typ {
	case "F":
		switch len(b) {
		case 4:
			return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
		case 8:
			return float32(math.Float64frombits(binary.LittleEndian.Uint64(b))), nil
		}
	case "I":
		switch len(b) {
		case 1:
			return float32(int8(b[0])), nil
		case 2:
			return float32(int16(binary.LittleEndian.Uint16(b))), nil
		case 4:
			return float32(int32(binary.LittleEndian.Uint32(b))), nil
		}
	case "U":
		switch len(b) {
		case 1:
			return float32(b[0]), nil
		case 2:
			return float32(binary.LittleEndian.Uint16(b)), nil
		case 4:
			return float32(binary.LittleEndian.Uint32(b)), nil
		}
	}
	return 0, errors.Errorf("unsupported field type %s%d", typ, len(b))
}

func atoiAll(tokens []string) ([]int, error) {
	out := make([]int, len(tokens))
	for i, t := range tokens {
		v, err := strconv.Atoi(t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// loadPointCloud decodes a scan into its raw point matrix truncated to the
// configured target size, cached by path. Scans whose row count or channel
// count do not meet the (target, 4) contract fail to load; there is no
// padding for short clouds.
func (g *DataGenerator) loadPointCloud(path string) ([]float32, error) {
	if cached, ok := g.pointCloudCache[path]; ok {
		return cached, nil
	}
	cloud, err := readPCD(path)
	if err != nil {
		return nil, err
	}
	if cloud.stride != 4 {
		return nil, errors.Errorf("%s: points have %d channels, want 4", path, cloud.stride)
	}
	if cloud.count < g.pointCloudTargetSize {
		return nil, errors.Wrapf(ErrShortPointCloud, "%s has %d points, want %d", path, cloud.count, g.pointCloudTargetSize)
	}
	points := make([]float32, g.pointCloudTargetSize*4)
	copy(points, cloud.data)
	g.pointCloudCache[path] = points
	return points, nil
}
