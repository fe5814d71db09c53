package datasets

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

// TestGenerateDatasetScenario covers the reference single-subject case:
// one manual measurement, one image, image modality.
func TestGenerateDatasetScenario(t *testing.T) {
	root := writeBasicDataset(t)
	gen, err := NewDataGenerator(root, Image, []string{"height", "weight"})
	if err != nil {
		t.Fatalf("NewDataGenerator failed: %v", err)
	}

	xQRCodes, inputs, labels, err := gen.GenerateDataset([]string{"ABC123"})
	if err != nil {
		t.Fatalf("GenerateDataset failed: %v", err)
	}
	if !slices.Equal(xQRCodes, []string{"ABC123"}) {
		t.Fatalf("unexpected x_qrcodes: %v", xQRCodes)
	}
	if got := inputs.Shape().Dimensions; !slices.Equal(got, []int{1, 90, 160, 3}) {
		t.Fatalf("unexpected inputs shape: %v", got)
	}
	rows := labels.Value().([][]float32)
	if len(rows) != 1 || rows[0][0] != 150 || rows[0][1] != 45 {
		t.Fatalf("unexpected y_outputs: %v", rows)
	}
}

func TestGenerateDatasetNoFilesYieldsZeroRows(t *testing.T) {
	root := t.TempDir()
	writeJSON(t, filepath.Join(root, "db", "persons", "person_0001.json"),
		wrapped(map[string]any{"qrcode": "ABC123"}))
	writeJSON(t, filepath.Join(root, "db", "measures", "m_0001.json"),
		wrapped(map[string]any{"type": "manual", "personId": "person_0001", "height": 150, "weight": 45}))

	gen, err := NewDataGenerator(root, Image, []string{"height", "weight"})
	if err != nil {
		t.Fatalf("NewDataGenerator failed: %v", err)
	}
	xQRCodes, inputs, labels, err := gen.GenerateDataset(nil)
	if err != nil {
		t.Fatalf("GenerateDataset failed: %v", err)
	}
	if len(xQRCodes) != 0 {
		t.Fatalf("expected zero rows, got %v", xQRCodes)
	}
	if got := inputs.Shape().Dimensions; !slices.Equal(got, []int{0, 90, 160, 3}) {
		t.Fatalf("unexpected empty inputs shape: %v", got)
	}
	if got := labels.Shape().Dimensions; !slices.Equal(got, []int{0, 2}) {
		t.Fatalf("unexpected empty labels shape: %v", got)
	}
}

func TestGenerateDatasetSkipsUndecodableFiles(t *testing.T) {
	root := writeBasicDataset(t)
	bad := filepath.Join(root, "storage", "person", "ABC123", "measurements", "ABC123_pcd_0.pcd")
	if err := os.WriteFile(bad, []byte("not a point cloud\n"), 0o644); err != nil {
		t.Fatalf("failed to write corrupt scan: %v", err)
	}

	gen, err := NewDataGenerator(root, VoxelGrid, []string{"height", "weight"},
		WithVoxelGridTargetShape(4, 4, 4))
	if err != nil {
		t.Fatalf("NewDataGenerator failed: %v", err)
	}
	xQRCodes, inputs, _, err := gen.GenerateDataset(nil)
	if err != nil {
		t.Fatalf("GenerateDataset failed: %v", err)
	}
	// One good scan and one corrupt scan: exactly one row survives.
	if len(xQRCodes) != 1 {
		t.Fatalf("expected one row, got %v", xQRCodes)
	}
	if got := inputs.Shape().Dimensions; !slices.Equal(got, []int{1, 4, 4, 4}) {
		t.Fatalf("unexpected inputs shape: %v", got)
	}
}

func TestGenerateDatasetDeterministicOrder(t *testing.T) {
	root := writeBasicDataset(t)
	// Second subject with two images.
	writeJSON(t, filepath.Join(root, "db", "persons", "person_0002.json"),
		wrapped(map[string]any{"qrcode": "DEF456"}))
	writeJSON(t, filepath.Join(root, "db", "measures", "m_0002.json"),
		wrapped(map[string]any{"type": "manual", "personId": "person_0002", "height": 98, "weight": 15.5}))
	measurements := filepath.Join(root, "storage", "person", "DEF456", "measurements")
	writeTestJPEG(t, filepath.Join(measurements, "DEF456_rgb_1.jpg"), 16, 12)
	writeTestJPEG(t, filepath.Join(measurements, "DEF456_rgb_2.jpg"), 16, 12)

	gen, err := NewDataGenerator(root, Image, []string{"height", "weight"})
	if err != nil {
		t.Fatalf("NewDataGenerator failed: %v", err)
	}
	// Subset order dictates row order; each subject contributes one row per
	// file.
	xQRCodes, _, labels, err := gen.GenerateDataset([]string{"DEF456", "ABC123"})
	if err != nil {
		t.Fatalf("GenerateDataset failed: %v", err)
	}
	if !slices.Equal(xQRCodes, []string{"DEF456", "DEF456", "ABC123"}) {
		t.Fatalf("unexpected row order: %v", xQRCodes)
	}
	rows := labels.Value().([][]float32)
	if rows[0][0] != 98 || rows[2][0] != 150 {
		t.Fatalf("labels do not follow row order: %v", rows)
	}
}
