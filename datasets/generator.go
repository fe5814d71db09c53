package datasets

import (
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	timage "github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// sampleEntry is one subject's slot in the sample dictionary: the ground
// truth targets in the caller's requested order, plus the files whose paths
// contain the subject's QR-code and lie under a "measurements" directory.
type sampleEntry struct {
	targets    []float32
	imagePaths []string
	scanPaths  []string
}

// DataGenerator indexes a dataset root and decodes samples of one modality.
//
// Construction scans the tree, joins measurement records to personal records
// and builds the per-subject sample dictionary; all indexing errors are
// fatal and surface from NewDataGenerator. Decoding happens lazily, cached
// by file path for the generator's lifetime.
type DataGenerator struct {
	datasetPath   string
	inputType     Modality
	outputTargets []string

	imageTargetShape     [2]int // (height, width) before the 90° rotation
	voxelGridTargetShape [3]int
	pointCloudTargetSize int

	// Discovered paths.
	jpgPaths      []string
	pcdPaths      []string
	personalPaths []string
	measurePaths  []string

	qrcodes []string
	samples map[string]*sampleEntry

	// mu serializes Yield/GenerateDataset calls that share the caches below.
	mu              sync.Mutex
	imageCache      map[string]*image.NRGBA
	voxelGridCache  map[string][]float32
	pointCloudCache map[string][]float32

	toTensor *timage.ToTensorConfig
}

// Option configures a DataGenerator under construction.
type Option func(*DataGenerator)

// WithImageTargetShape sets the (height, width) images are resized to before
// the 90° rotation. The materialized arrays are (width, height, 3). Default
// is (160, 90), i.e. (90, 160, 3) arrays.
func WithImageTargetShape(height, width int) Option {
	return func(g *DataGenerator) { g.imageTargetShape = [2]int{height, width} }
}

// WithVoxelGridTargetShape sets the voxel grid resolution. Default 32×32×32.
func WithVoxelGridTargetShape(x, y, z int) Option {
	return func(g *DataGenerator) { g.voxelGridTargetShape = [3]int{x, y, z} }
}

// WithPointCloudTargetSize sets how many points are kept per scan. Scans with
// fewer points fail to load with ErrShortPointCloud. Default 32000.
func WithPointCloudTargetSize(n int) Option {
	return func(g *DataGenerator) { g.pointCloudTargetSize = n }
}

// NewDataGenerator indexes datasetPath for the given input modality and
// ordered list of target fields (e.g. "height", "weight").
func NewDataGenerator(datasetPath string, inputType Modality, outputTargets []string, opts ...Option) (*DataGenerator, error) {
	if _, err := os.Stat(datasetPath); err != nil {
		return nil, errors.Wrapf(err, "dataset path %q must exist", datasetPath)
	}
	if inputType < Image || inputType > PointCloud {
		return nil, errors.Errorf("unknown input modality %d", inputType)
	}
	if len(outputTargets) == 0 {
		return nil, errors.New("at least one output target is required")
	}

	g := &DataGenerator{
		datasetPath:          datasetPath,
		inputType:            inputType,
		outputTargets:        append([]string(nil), outputTargets...),
		imageTargetShape:     DefaultImageTargetShape,
		voxelGridTargetShape: DefaultVoxelGridTargetShape,
		pointCloudTargetSize: DefaultPointCloudTargetSize,
		samples:              make(map[string]*sampleEntry),
		imageCache:           make(map[string]*image.NRGBA),
		voxelGridCache:       make(map[string][]float32),
		pointCloudCache:      make(map[string][]float32),
		toTensor:             timage.ToTensor(dtypes.Uint8),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.imageTargetShape[0] <= 0 || g.imageTargetShape[1] <= 0 {
		return nil, errors.Errorf("invalid image target shape %v", g.imageTargetShape)
	}
	for _, n := range g.voxelGridTargetShape {
		if n <= 0 {
			return nil, errors.Errorf("invalid voxel grid target shape %v", g.voxelGridTargetShape)
		}
	}
	if g.pointCloudTargetSize <= 0 {
		return nil, errors.Errorf("invalid point cloud target size %d", g.pointCloudTargetSize)
	}

	if err := g.discoverPaths(); err != nil {
		return nil, err
	}
	if err := g.findQRCodes(); err != nil {
		return nil, err
	}
	if err := g.buildSampleDictionary(); err != nil {
		return nil, err
	}
	return g, nil
}

// discoverPaths fills the four path lists: person images, person scans, and
// the JSON metadata split into measurement records (path contains
// "measures") and personal records (path does not).
func (g *DataGenerator) discoverPaths() error {
	personRoot := filepath.Join(g.datasetPath, "storage", "person")
	if _, err := os.Stat(personRoot); err == nil {
		g.jpgPaths = nil
		g.pcdPaths = nil
		err = filepath.WalkDir(personRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch strings.ToLower(filepath.Ext(path)) {
			case ".jpg":
				g.jpgPaths = append(g.jpgPaths, path)
			case ".pcd":
				g.pcdPaths = append(g.pcdPaths, path)
			}
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "failed to scan %s", personRoot)
		}
	}

	g.personalPaths = nil
	g.measurePaths = nil
	err := filepath.WalkDir(g.datasetPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.ToLower(filepath.Ext(path)) != ".json" {
			return nil
		}
		if strings.Contains(path, "measures") {
			g.measurePaths = append(g.measurePaths, path)
		} else {
			g.personalPaths = append(g.personalPaths, path)
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to scan %s", g.datasetPath)
	}
	return nil
}

// extractQRCode follows the foreign-key join for one measurement record:
// personId → the unique personal-record path containing it → qrcode.
func (g *DataGenerator) extractQRCode(measure record) (string, error) {
	personID, err := measure.stringValue("personId")
	if err != nil {
		return "", err
	}
	var match string
	matches := 0
	for _, path := range g.personalPaths {
		if strings.Contains(path, personID) {
			match = path
			matches++
		}
	}
	if matches != 1 {
		return "", errors.Wrapf(ErrAmbiguousJoin, "personId %q matched %d personal records", personID, matches)
	}
	personal, err := loadRecord(match)
	if err != nil {
		return "", err
	}
	return personal.stringValue("qrcode")
}

// findQRCodes collects the deduplicated, sorted set of subjects referenced by
// any measurement record.
func (g *DataGenerator) findQRCodes() error {
	seen := make(map[string]bool)
	for _, path := range g.measurePaths {
		measure, err := loadRecord(path)
		if err != nil {
			return err
		}
		qrcode, err := g.extractQRCode(measure)
		if err != nil {
			return errors.Wrapf(err, "measurement record %s", path)
		}
		seen[qrcode] = true
	}
	if len(seen) == 0 {
		return errors.Wrapf(ErrNoSubjects, "under %s", g.datasetPath)
	}
	g.qrcodes = make([]string, 0, len(seen))
	for qrcode := range seen {
		g.qrcodes = append(g.qrcodes, qrcode)
	}
	sort.Strings(g.qrcodes)
	return nil
}

// buildSampleDictionary creates one entry per subject with a manual
// measurement: targets in the requested order plus the matching file lists.
func (g *DataGenerator) buildSampleDictionary() error {
	for _, path := range g.measurePaths {
		measure, err := loadRecord(path)
		if err != nil {
			return err
		}
		kind, err := measure.stringValue("type")
		if err != nil {
			return errors.Wrapf(err, "measurement record %s", path)
		}
		if kind != "manual" {
			continue
		}
		qrcode, err := g.extractQRCode(measure)
		if err != nil {
			return errors.Wrapf(err, "measurement record %s", path)
		}
		// In the future there will be multiple manual measurements per
		// subject; until that is handled, a second one is fatal.
		if _, ok := g.samples[qrcode]; ok {
			return errors.Wrapf(ErrDuplicateManual, "%s (record %s)", qrcode, path)
		}
		targets := make([]float32, len(g.outputTargets))
		for i, name := range g.outputTargets {
			targets[i], err = measure.numberValue(name)
			if err != nil {
				return errors.Wrapf(err, "measurement record %s", path)
			}
		}
		g.samples[qrcode] = &sampleEntry{
			targets:    targets,
			imagePaths: matchingPaths(g.jpgPaths, qrcode),
			scanPaths:  matchingPaths(g.pcdPaths, qrcode),
		}
	}
	return nil
}

// matchingPaths filters paths to those containing the QR-code and lying
// under a "measurements" directory.
func matchingPaths(paths []string, qrcode string) []string {
	var out []string
	for _, path := range paths {
		if strings.Contains(path, qrcode) && strings.Contains(path, "measurements") {
			out = append(out, path)
		}
	}
	return out
}

// modalityPaths returns the entry's file list for the generator's modality.
func (g *DataGenerator) modalityPaths(entry *sampleEntry) []string {
	if g.inputType == Image {
		return entry.imagePaths
	}
	return entry.scanPaths
}

// QRCodes returns the sorted subject identifiers found in the dataset.
func (g *DataGenerator) QRCodes() []string {
	return append([]string(nil), g.qrcodes...)
}

// OutputSize returns the number of target values per sample.
func (g *DataGenerator) OutputSize() int { return len(g.outputTargets) }

// OutputTargets returns the target field names in yield order.
func (g *DataGenerator) OutputTargets() []string {
	return append([]string(nil), g.outputTargets...)
}

// InputType returns the modality selected at construction.
func (g *DataGenerator) InputType() Modality { return g.inputType }

// InputShape returns the per-sample array shape for the selected modality.
// For images this is the post-rotation (width, height, 3) shape, which swaps
// the configured pre-rotation (height, width) pair.
func (g *DataGenerator) InputShape() []int {
	switch g.inputType {
	case Image:
		return []int{g.imageTargetShape[1], g.imageTargetShape[0], 3}
	case VoxelGrid:
		return []int{g.voxelGridTargetShape[0], g.voxelGridTargetShape[1], g.voxelGridTargetShape[2]}
	default:
		return []int{g.pointCloudTargetSize, 4}
	}
}

// Targets returns a copy of the subject's target values, or false when the
// subject has no manual measurement.
func (g *DataGenerator) Targets(qrcode string) ([]float32, bool) {
	entry, ok := g.samples[qrcode]
	if !ok {
		return nil, false
	}
	return append([]float32(nil), entry.targets...), true
}

// Stats are diagnostic counts over the built index.
type Stats struct {
	ImagePaths      int
	ScanPaths       int
	PersonalRecords int
	MeasureRecords  int
	Subjects        int
	ManualSubjects  int
}

// Stats reports discovery and index counts, mostly for CLI diagnostics.
func (g *DataGenerator) Stats() Stats {
	return Stats{
		ImagePaths:      len(g.jpgPaths),
		ScanPaths:       len(g.pcdPaths),
		PersonalRecords: len(g.personalPaths),
		MeasureRecords:  len(g.measurePaths),
		Subjects:        len(g.qrcodes),
		ManualSubjects:  len(g.samples),
	}
}
