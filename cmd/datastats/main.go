// datastats indexes a Child Growth Monitor dataset root and reports what a
// training run would see: discovered paths, subjects, per-subject samples
// and a train/validate split preview. With -plot-dir it also renders a
// histogram of each target value over the manual measurements.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/gitraj666/cgm-ml/datasets"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"k8s.io/klog/v2"
)

var (
	flagDataset  = flag.String("dataset", "", "Path to the dataset root (required).")
	flagModality = flag.String("modality", "image", "Input modality: image, voxelgrid or pointcloud.")
	flagTargets  = flag.String("targets", "height,weight", "Comma-separated target fields.")
	flagSplit    = flag.Float64("split", 0.8, "Train fraction for the split preview.")
	flagSeed     = flag.Int64("seed", 42, "Seed for the split preview shuffle.")
	flagPlotDir  = flag.String("plot-dir", "", "If set, write a histogram PNG per target into this directory.")
	flagList     = flag.Bool("list", false, "List every QR-code found.")
)

func main() {
	flag.Parse()
	if *flagDataset == "" {
		fmt.Fprintln(os.Stderr, "usage: datastats -dataset <root> [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	modality, err := datasets.ParseModality(*flagModality)
	if err != nil {
		klog.Fatalf("Invalid -modality: %v", err)
	}
	targets := splitTargets(*flagTargets)
	if len(targets) == 0 {
		klog.Fatalf("No target fields in -targets=%q", *flagTargets)
	}

	gen, err := datasets.NewDataGenerator(*flagDataset, modality, targets)
	if err != nil {
		klog.Fatalf("Failed to index dataset: %+v", err)
	}

	stats := gen.Stats()
	fmt.Printf("Dataset root:      %s\n", *flagDataset)
	fmt.Printf("Modality:          %s (sample shape %v)\n", modality, gen.InputShape())
	fmt.Printf("Targets:           %s\n", strings.Join(targets, ", "))
	fmt.Printf("Image paths:       %d\n", stats.ImagePaths)
	fmt.Printf("Scan paths:        %d\n", stats.ScanPaths)
	fmt.Printf("Personal records:  %d\n", stats.PersonalRecords)
	fmt.Printf("Measure records:   %d\n", stats.MeasureRecords)
	fmt.Printf("Subjects:          %d (%d with a manual measurement)\n", stats.Subjects, stats.ManualSubjects)

	qrcodes := gen.QRCodes()
	if *flagList {
		fmt.Println("QR-codes:")
		for _, qrcode := range qrcodes {
			fmt.Printf("  %s\n", qrcode)
		}
	}

	// Preview the train/validate split a training run with this seed would
	// use.
	shuffled := append([]string(nil), qrcodes...)
	rng := rand.New(rand.NewSource(*flagSeed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	splitIndex := int(*flagSplit * float64(len(shuffled)))
	fmt.Printf("Split preview:     %d train / %d validate (seed %d)\n",
		splitIndex, len(shuffled)-splitIndex, *flagSeed)

	if *flagPlotDir != "" {
		if err := os.MkdirAll(*flagPlotDir, 0o755); err != nil {
			klog.Fatalf("Failed to create -plot-dir: %v", err)
		}
		for i, target := range gen.OutputTargets() {
			values := make(plotter.Values, 0, len(qrcodes))
			for _, qrcode := range qrcodes {
				if sample, ok := gen.Targets(qrcode); ok {
					values = append(values, float64(sample[i]))
				}
			}
			out := filepath.Join(*flagPlotDir, target+"_hist.png")
			if err := plotHistogram(out, target, values); err != nil {
				klog.Fatalf("Failed to plot %s: %v", target, err)
			}
			fmt.Printf("Wrote %s\n", out)
		}
	}
}

func splitTargets(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func plotHistogram(path, target string, values plotter.Values) error {
	p := plot.New()
	p.Title.Text = "Distribution of " + target
	p.X.Label.Text = target
	p.Y.Label.Text = "subjects"

	h, err := plotter.NewHist(values, 16)
	if err != nil {
		return err
	}
	p.Add(h)
	p.Add(plotter.NewGrid())
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
