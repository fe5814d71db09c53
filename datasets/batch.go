package datasets

import (
	"image"
	"math/rand"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
)

// BatchDataset is an unbounded stream of training batches sampled uniformly
// with replacement from a subject subset. It implements gomlx train.Dataset,
// so it plugs directly into train.Loop.RunSteps; it never returns io.EOF on
// its own.
//
// Subjects without a manual measurement, subjects with no file of the
// selected modality and files that fail to decode are silently redrawn. With
// the default MaxAttempts of 0 this retry never gives up, matching the
// upstream generator: a subset whose samples all fail to decode stalls Yield
// forever. Set WithMaxAttempts to surface an error instead.
//
// Separate BatchDataset instances sample independently but share the owning
// DataGenerator's decode caches; Yield serializes access to them.
type BatchDataset struct {
	name        string
	gen         *DataGenerator
	batchSize   int
	qrcodes     []string
	maxAttempts int
	rng         *rand.Rand
}

var _ train.Dataset = &BatchDataset{}

// BatchOption configures a BatchDataset.
type BatchOption func(*BatchDataset)

// WithSubjects restricts sampling to the given QR-codes. Default: every
// subject in the dataset.
func WithSubjects(qrcodes []string) BatchOption {
	return func(b *BatchDataset) { b.qrcodes = append([]string(nil), qrcodes...) }
}

// WithMaxAttempts makes Yield fail after n consecutive unusable draws
// instead of retrying forever. 0 keeps the indefinite retry.
func WithMaxAttempts(n int) BatchOption {
	return func(b *BatchDataset) { b.maxAttempts = n }
}

// WithSeed makes the sampling sequence deterministic.
func WithSeed(seed int64) BatchOption {
	return func(b *BatchDataset) { b.rng = rand.New(rand.NewSource(seed)) }
}

// Batches creates an infinite batch stream over the generator's samples.
func (g *DataGenerator) Batches(name string, batchSize int, opts ...BatchOption) *BatchDataset {
	b := &BatchDataset{
		name:      name,
		gen:       g,
		batchSize: batchSize,
		qrcodes:   g.qrcodes,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements train.Dataset.
func (b *BatchDataset) Name() string { return b.name }

// Reset implements train.Dataset. The stream is infinite and stateless
// across batches, so there is nothing to rewind.
func (b *BatchDataset) Reset() {}

// Yield implements train.Dataset. It accumulates batchSize decoded samples
// and returns them stacked: one inputs tensor shaped [batch, ...InputShape]
// and one labels tensor shaped [batch, OutputSize].
func (b *BatchDataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	if b.batchSize <= 0 {
		return nil, nil, nil, errors.Errorf("batch size must be positive, got %d", b.batchSize)
	}
	if len(b.qrcodes) == 0 {
		return nil, nil, nil, errors.New("batch dataset has an empty subject subset")
	}

	g := b.gen
	g.mu.Lock()
	defer g.mu.Unlock()

	var imgs []image.Image  // Image modality accumulator.
	var flat []float32      // VoxelGrid / PointCloud accumulator.
	var targetsFlat []float32
	collected := 0
	failures := 0

	for collected < b.batchSize {
		if b.maxAttempts > 0 && failures >= b.maxAttempts {
			return nil, nil, nil, errors.Errorf(
				"dataset %q: no usable sample after %d consecutive attempts", b.name, failures)
		}

		qrcode := b.qrcodes[b.rng.Intn(len(b.qrcodes))]
		entry, ok := g.samples[qrcode]
		if !ok {
			failures++
			continue
		}
		paths := g.modalityPaths(entry)
		if len(paths) == 0 {
			failures++
			continue
		}
		path := paths[b.rng.Intn(len(paths))]

		switch g.inputType {
		case Image:
			img, err := g.loadImage(path)
			if err != nil {
				failures++
				continue
			}
			imgs = append(imgs, img)
		case VoxelGrid:
			grid, err := g.loadVoxelGrid(path)
			if err != nil {
				failures++
				continue
			}
			flat = append(flat, grid...)
		case PointCloud:
			points, err := g.loadPointCloud(path)
			if err != nil {
				failures++
				continue
			}
			flat = append(flat, points...)
		}
		targetsFlat = append(targetsFlat, entry.targets...)
		collected++
		failures = 0
	}

	inputsT := g.stackInputs(imgs, flat, collected)
	labelsT := tensors.FromFlatDataAndDimensions(targetsFlat, collected, len(g.outputTargets))
	return b, []*tensors.Tensor{inputsT}, []*tensors.Tensor{labelsT}, nil
}

// stackInputs assembles the accumulated samples into one batch tensor for
// the generator's modality.
func (g *DataGenerator) stackInputs(imgs []image.Image, flat []float32, n int) *tensors.Tensor {
	switch g.inputType {
	case Image:
		return g.toTensor.Batch(imgs)
	case VoxelGrid:
		shape := g.voxelGridTargetShape
		return tensors.FromFlatDataAndDimensions(flat, n, shape[0], shape[1], shape[2])
	default:
		return tensors.FromFlatDataAndDimensions(flat, n, g.pointCloudTargetSize, 4)
	}
}
