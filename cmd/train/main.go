// train fits a small feed-forward regression model to the manual
// measurements of a Child Growth Monitor dataset. It is mostly a smoke test
// for the data pipeline: any of the three modalities can be fed through the
// same model graph, which flattens the sample and regresses the targets.
package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/gitraj666/cgm-ml/datasets"

	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/gomlx/gopjrt/dtypes"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/simplego"
)

var (
	flagDataset      = flag.String("dataset", "", "Path to the dataset root (required).")
	flagModality     = flag.String("modality", "image", "Input modality: image, voxelgrid or pointcloud.")
	flagTargets      = flag.String("targets", "height,weight", "Comma-separated target fields to regress.")
	flagBatchSize    = flag.Int("batch", 16, "Batch size.")
	flagNumSteps     = flag.Int("steps", 1000, "Number of gradient descent steps to perform.")
	flagLearningRate = flag.Float64("learning_rate", 0.001, "Initial learning rate.")
	flagHiddenNodes  = flag.Int("hidden", 128, "Nodes in the hidden layer.")
	flagSeed         = flag.Int64("seed", 0, "Batch sampling seed, 0 picks one from the clock.")
)

// buildModelGraph returns a model that flattens each sample and regresses
// the targets with one hidden layer. Image batches arrive as uint8 and are
// scaled into [0, 1] first.
func buildModelGraph(outputSize int) func(ctx *context.Context, spec any, inputs []*Node) []*Node {
	return func(ctx *context.Context, spec any, inputs []*Node) []*Node {
		_ = spec
		ctx = ctx.In("model")
		batchSize := inputs[0].Shape().Dimensions[0]

		x := inputs[0]
		if x.DType() == dtypes.Uint8 {
			x = MulScalar(ConvertDType(x, dtypes.Float32), 1.0/255.0)
		}
		x = Reshape(x, batchSize, -1)
		x = layers.Dense(ctx.In("hidden"), x, true, *flagHiddenNodes)
		x = activations.Relu(x)
		predictions := layers.Dense(ctx.In("readout"), x, true, outputSize)
		return []*Node{predictions}
	}
}

func main() {
	flag.Parse()
	if *flagDataset == "" {
		klog.Fatalf("Missing required -dataset flag")
	}
	modality, err := datasets.ParseModality(*flagModality)
	if err != nil {
		klog.Fatalf("Invalid -modality: %v", err)
	}
	targets := strings.Split(*flagTargets, ",")
	for i := range targets {
		targets[i] = strings.TrimSpace(targets[i])
	}

	backend := backends.MustNew()
	fmt.Printf("Backend: %s, %s\n", backend.Name(), backend.Description())

	gen, err := datasets.NewDataGenerator(*flagDataset, modality, targets)
	if err != nil {
		klog.Fatalf("Failed to index dataset: %+v", err)
	}
	stats := gen.Stats()
	fmt.Printf("Subjects: %d (%d with a manual measurement), sample shape %v\n",
		stats.Subjects, stats.ManualSubjects, gen.InputShape())

	var batchOpts []datasets.BatchOption
	if *flagSeed != 0 {
		batchOpts = append(batchOpts, datasets.WithSeed(*flagSeed))
	}
	dataset := gen.Batches("training", *flagBatchSize, batchOpts...)

	ctx := context.New()
	ctx.SetParam(optimizers.ParamLearningRate, *flagLearningRate)

	trainer := train.NewTrainer(backend, ctx, buildModelGraph(gen.OutputSize()),
		losses.MeanSquaredError,
		optimizers.Adam().Done(),
		nil, nil) // trainMetrics, evalMetrics

	loop := train.NewLoop(trainer)
	commandline.AttachProgressBar(loop)

	metrics, err := loop.RunSteps(dataset, *flagNumSteps)
	if err != nil {
		klog.Fatalf("Training failed: %+v", err)
	}
	fmt.Println()
	for i, m := range metrics {
		fmt.Printf("Metric %d: %v\n", i, m.Value())
	}
}
