// Package datasets loads the Child Growth Monitor scan archive and presents
// it as gomlx train.Dataset batch streams for measurement-prediction models.
//
// A dataset root is a directory tree with person scans under
// `storage/person/**` (JPEG images and PCD point clouds) and JSON metadata
// spread over the tree: measurement records (path contains "measures") and
// personal records (path does not). A measurement record references its
// person through `personId`, and the personal record carries the `qrcode`
// string that uniquely identifies a measured subject. DataGenerator performs
// this join once at construction and keeps a per-subject sample dictionary:
// ground-truth target values plus the image and scan files whose paths
// contain the subject's QR-code.
//
// Three input modalities are supported, selected once at construction:
//
//   - Image: JPEG resized to the configured target shape and rotated 90°
//     clockwise to correct the sensor orientation, yielded as uint8 tensors.
//   - VoxelGrid: point cloud voxelized into a fixed-resolution density grid.
//   - PointCloud: the raw (x, y, z, c) point matrix truncated to a fixed
//     number of rows.
//
// Decoded files are cached by path for the lifetime of the DataGenerator.
// Caches only grow and are not guarded for concurrent writers: a
// DataGenerator and the datasets derived from it are meant to be driven by a
// single training loop at a time.
package datasets

import "github.com/pkg/errors"

// Sentinel errors for the construction-time and decode-time failures callers
// may want to distinguish. All are returned wrapped with path/subject detail.
var (
	// ErrNoSubjects means the dataset root contained no usable measurement
	// records at all.
	ErrNoSubjects = errors.New("no QR-codes found in dataset")

	// ErrDuplicateManual means a subject has more than one manual measurement
	// record. Only one manual measurement per subject is supported; this is a
	// known forward-compatibility gap, kept fatal on purpose.
	ErrDuplicateManual = errors.New("multiple manual measurements for QR-code")

	// ErrAmbiguousJoin means a measurement's personId matched zero or several
	// personal-record paths instead of exactly one.
	ErrAmbiguousJoin = errors.New("personId does not match exactly one personal record")

	// ErrShortPointCloud means a point-cloud file holds fewer points than the
	// configured target size. The loader fails instead of padding.
	ErrShortPointCloud = errors.New("point cloud smaller than target size")
)

// Modality selects which input the generator decodes and yields.
type Modality int

const (
	// Image yields `[batch, width, height, 3]` uint8 image tensors, where
	// (height, width) is the configured pre-rotation ImageTargetShape.
	Image Modality = iota
	// VoxelGrid yields `[batch, x, y, z]` float32 density grids.
	VoxelGrid
	// PointCloud yields `[batch, n, 4]` float32 raw point matrices.
	PointCloud
)

func (m Modality) String() string {
	switch m {
	case Image:
		return "image"
	case VoxelGrid:
		return "voxelgrid"
	case PointCloud:
		return "pointcloud"
	}
	return "unknown"
}

// ParseModality converts the string selector used in configuration files and
// CLI flags into a Modality.
func ParseModality(s string) (Modality, error) {
	switch s {
	case "image":
		return Image, nil
	case "voxelgrid":
		return VoxelGrid, nil
	case "pointcloud":
		return PointCloud, nil
	}
	return 0, errors.Errorf("unknown input modality %q (want image, voxelgrid or pointcloud)", s)
}

// Defaults for the construction parameters, overridable with the With…
// options of NewDataGenerator.
const (
	// DefaultPointCloudTargetSize is the number of points kept per scan.
	DefaultPointCloudTargetSize = 32000
)

var (
	// DefaultImageTargetShape is the (height, width) images are resized to
	// before the 90° rotation; the materialized arrays are (90, 160, 3).
	DefaultImageTargetShape = [2]int{160, 90}

	// DefaultVoxelGridTargetShape is the voxel grid resolution per axis.
	DefaultVoxelGridTargetShape = [3]int{32, 32, 32}
)
