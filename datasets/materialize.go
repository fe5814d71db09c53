package datasets

import (
	"image"
	"os"

	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// GenerateDataset exhaustively decodes every available file of the selected
// modality for the given subjects, in subset order × path-list order. One
// output row per file: the subject's QR-code, the decoded input and the
// subject's target vector.
//
// Subjects without a manual measurement and files that fail to decode are
// reported and skipped; neither is an error. A nil qrcodesToUse means every
// subject in the dataset. A subset with nothing decodable yields zero rows.
func (g *DataGenerator) GenerateDataset(qrcodesToUse []string) (xQRCodes []string, inputs, labels *tensors.Tensor, err error) {
	if qrcodesToUse == nil {
		qrcodesToUse = g.qrcodes
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	bar := progressbar.NewOptions(len(qrcodesToUse),
		progressbar.OptionSetDescription("Materializing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	var imgs []image.Image
	var flat []float32
	var targetsFlat []float32

	for _, qrcode := range qrcodesToUse {
		_ = bar.Add(1)
		entry, ok := g.samples[qrcode]
		if !ok {
			klog.Warningf("no data for QR-code %s, skipping", qrcode)
			continue
		}
		for _, path := range g.modalityPaths(entry) {
			switch g.inputType {
			case Image:
				img, err := g.loadImage(path)
				if err != nil {
					klog.Warningf("skipping %s: %v", path, err)
					continue
				}
				imgs = append(imgs, img)
			case VoxelGrid:
				grid, err := g.loadVoxelGrid(path)
				if err != nil {
					klog.Warningf("skipping %s: %v", path, err)
					continue
				}
				flat = append(flat, grid...)
			case PointCloud:
				points, err := g.loadPointCloud(path)
				if err != nil {
					klog.Warningf("skipping %s: %v", path, err)
					continue
				}
				flat = append(flat, points...)
			}
			xQRCodes = append(xQRCodes, qrcode)
			targetsFlat = append(targetsFlat, entry.targets...)
		}
	}
	_ = bar.Finish()

	n := len(xQRCodes)
	if n == 0 {
		return nil, g.emptyBatch(), tensors.FromShape(shapes.Make(dtypes.Float32, 0, len(g.outputTargets))), nil
	}
	inputs = g.stackInputs(imgs, flat, n)
	labels = tensors.FromFlatDataAndDimensions(targetsFlat, n, len(g.outputTargets))
	return xQRCodes, inputs, labels, nil
}

// emptyBatch builds a zero-row inputs tensor with the modality's sample
// shape, so callers always get consistent dimensions back.
func (g *DataGenerator) emptyBatch() *tensors.Tensor {
	dtype := dtypes.Float32
	if g.inputType == Image {
		dtype = dtypes.Uint8
	}
	dims := append([]int{0}, g.InputShape()...)
	return tensors.FromShape(shapes.Make(dtype, dims...))
}
