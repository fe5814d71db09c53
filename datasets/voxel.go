package datasets

import "github.com/pkg/errors"

// voxelize bins the cloud's points into an nx×ny×nz grid spanning the
// cloud's bounding box and returns the density feature per voxel: the voxel's
// point count divided by the total number of points. Points on the upper
// boundary of an axis fall into the last voxel.
func voxelize(cloud *pcdCloud, nx, ny, nz int) ([]float32, error) {
	if cloud.stride < 3 {
		return nil, errors.Errorf("points have %d channels, need at least x, y, z", cloud.stride)
	}

	minX, minY, minZ := cloud.xyz(0)
	maxX, maxY, maxZ := minX, minY, minZ
	for i := 1; i < cloud.count; i++ {
		x, y, z := cloud.xyz(i)
		minX, maxX = minMax(minX, maxX, x)
		minY, maxY = minMax(minY, maxY, y)
		minZ, maxZ = minMax(minZ, maxZ, z)
	}

	grid := make([]float32, nx*ny*nz)
	for i := 0; i < cloud.count; i++ {
		x, y, z := cloud.xyz(i)
		ix := voxelIndex(x, minX, maxX, nx)
		iy := voxelIndex(y, minY, maxY, ny)
		iz := voxelIndex(z, minZ, maxZ, nz)
		grid[(ix*ny+iy)*nz+iz]++
	}
	total := float32(cloud.count)
	for i := range grid {
		grid[i] /= total
	}
	return grid, nil
}

// voxelIndex maps a coordinate to its cell along one axis. A degenerate axis
// (all points equal) collapses into cell 0.
func voxelIndex(v, lo, hi float32, n int) int {
	if hi <= lo {
		return 0
	}
	i := int(float64(v-lo) / float64(hi-lo) * float64(n))
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

func minMax(lo, hi, v float32) (float32, float32) {
	if v < lo {
		lo = v
	}
	if v > hi {
		hi = v
	}
	return lo, hi
}

// loadVoxelGrid decodes a scan and voxelizes it into the configured grid,
// cached by path. The returned slice is the flat x-major grid.
func (g *DataGenerator) loadVoxelGrid(path string) ([]float32, error) {
	if cached, ok := g.voxelGridCache[path]; ok {
		return cached, nil
	}
	cloud, err := readPCD(path)
	if err != nil {
		return nil, err
	}
	shape := g.voxelGridTargetShape
	grid, err := voxelize(cloud, shape[0], shape[1], shape[2])
	if err != nil {
		return nil, errors.Wrapf(err, "failed to voxelize %s", path)
	}
	g.voxelGridCache[path] = grid
	return grid, nil
}
