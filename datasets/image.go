package datasets

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// loadImage decodes an image, resizes it to the configured pre-rotation
// (height, width) target and rotates it 90° clockwise to correct the sensor
// orientation, cached by path. The result is width wide × height tall in the
// pre-rotation terms, i.e. a (width, height, 3) array.
func (g *DataGenerator) loadImage(path string) (*image.NRGBA, error) {
	if cached, ok := g.imageCache[path]; ok {
		return cached, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open image %s", path)
	}
	defer f.Close()
	src, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode image %s", path)
	}
	img := imaging.Resize(src, g.imageTargetShape[1], g.imageTargetShape[0], imaging.Lanczos)
	img = imaging.Rotate270(img) // 90° clockwise
	g.imageCache[path] = img
	return img, nil
}
