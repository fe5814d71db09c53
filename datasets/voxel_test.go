package datasets

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoxelizeDensity(t *testing.T) {
	// Two points at opposite corners of the bounding box: each contributes
	// half the density, one in the first voxel and one in the last.
	cloud := &pcdCloud{
		fields: []string{"x", "y", "z"},
		stride: 3,
		count:  2,
		data:   []float32{0, 0, 0, 1, 1, 1},
	}
	grid, err := voxelize(cloud, 2, 2, 2)
	require.NoError(t, err)
	require.Len(t, grid, 8)
	assert.Equal(t, float32(0.5), grid[0])
	assert.Equal(t, float32(0.5), grid[7])

	var sum float32
	for _, v := range grid {
		sum += v
	}
	assert.Equal(t, float32(1), sum)
}

func TestVoxelizeUpperBoundary(t *testing.T) {
	// Points exactly on the bounding-box maximum land in the last voxel,
	// not one past it.
	cloud := &pcdCloud{
		fields: []string{"x", "y", "z"},
		stride: 3,
		count:  4,
		data: []float32{
			0, 0, 0,
			3, 3, 3,
			3, 0, 0,
			1.4, 1.4, 1.4,
		},
	}
	grid, err := voxelize(cloud, 3, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, float32(0.25), grid[(2*3+2)*3+2]) // (2,2,2)
	assert.Equal(t, float32(0.25), grid[(2*3+0)*3+0]) // (2,0,0)
	assert.Equal(t, float32(0.25), grid[(1*3+1)*3+1]) // (1,1,1)
	assert.Equal(t, float32(0.25), grid[0])
}

func TestVoxelizeDegenerateCloud(t *testing.T) {
	// All points identical: the bounding box collapses and everything falls
	// into the first voxel.
	cloud := &pcdCloud{
		fields: []string{"x", "y", "z", "c"},
		stride: 4,
		count:  3,
		data: []float32{
			2, 2, 2, 1,
			2, 2, 2, 1,
			2, 2, 2, 1,
		},
	}
	grid, err := voxelize(cloud, 4, 4, 4)
	require.NoError(t, err)
	assert.Equal(t, float32(1), grid[0])
}

func TestVoxelizeNeedsCoordinates(t *testing.T) {
	cloud := &pcdCloud{fields: []string{"x", "y"}, stride: 2, count: 1, data: []float32{1, 2}}
	_, err := voxelize(cloud, 2, 2, 2)
	assert.Error(t, err)
}

func TestLoadVoxelGridCaches(t *testing.T) {
	root := writeBasicDataset(t)
	gen, err := NewDataGenerator(root, VoxelGrid, []string{"height", "weight"},
		WithVoxelGridTargetShape(4, 4, 4))
	require.NoError(t, err)

	scan := filepath.Join(root, "storage", "person", "ABC123", "measurements", "ABC123_pcd_1.pcd")
	first, err := gen.loadVoxelGrid(scan)
	require.NoError(t, err)
	require.Len(t, first, 4*4*4)

	second, err := gen.loadVoxelGrid(scan)
	require.NoError(t, err)
	assert.Same(t, &first[0], &second[0])
}
