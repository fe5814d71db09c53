package datasets

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadImageResizesAndRotates(t *testing.T) {
	root := writeBasicDataset(t)
	gen, err := NewDataGenerator(root, Image, []string{"height", "weight"})
	require.NoError(t, err)

	path := filepath.Join(root, "storage", "person", "ABC123", "measurements", "ABC123_rgb_1.jpg")
	img, err := gen.loadImage(path)
	require.NoError(t, err)
	// Default target shape (160, 90) rotated 90° clockwise: 160 wide, 90
	// tall, regardless of the 16×12 source.
	size := img.Bounds().Size()
	assert.Equal(t, 160, size.X)
	assert.Equal(t, 90, size.Y)
}

func TestLoadImageCacheHit(t *testing.T) {
	root := writeBasicDataset(t)
	gen, err := NewDataGenerator(root, Image, []string{"height", "weight"})
	require.NoError(t, err)

	path := filepath.Join(root, "storage", "person", "ABC123", "measurements", "ABC123_rgb_1.jpg")
	first, err := gen.loadImage(path)
	require.NoError(t, err)
	second, err := gen.loadImage(path)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestLoadImageUnreadable(t *testing.T) {
	root := writeBasicDataset(t)
	gen, err := NewDataGenerator(root, Image, []string{"height", "weight"})
	require.NoError(t, err)

	_, err = gen.loadImage(filepath.Join(root, "missing.jpg"))
	assert.Error(t, err)
}
