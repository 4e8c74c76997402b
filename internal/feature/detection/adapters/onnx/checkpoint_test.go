package onnx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"

	"deepfake_backend/internal/feature/detection/domain"
	"deepfake_backend/internal/feature/detection/preprocess"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestResolveCheckpoint_RawModelFile(t *testing.T) {
	dir := t.TempDir()
	model := writeFile(t, dir, "resnet50_head.onnx", "onnx")

	cp, err := ResolveCheckpoint(model)

	require.NoError(t, err)
	assert.Equal(t, model, cp.ModelPath)
	assert.Equal(t, "input", cp.InputName)
	assert.Equal(t, "output", cp.OutputName)
	assert.Equal(t, []string{"fake", "real"}, cp.Classes)
	assert.Equal(t, preprocess.DefaultImageTransform(), cp.Transform)
	assert.False(t, cp.Wrapped)
}

func TestResolveCheckpoint_WrappedManifest(t *testing.T) {
	t.Run("yaml manifest file", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "weights.onnx", "onnx")
		manifest := writeFile(t, dir, "best_model.yaml", `
model_state: weights.onnx
input_name: pixel_values
output_name: logits
image_size: 256
mean: [0.5, 0.5, 0.5]
std: [0.25, 0.25, 0.25]
`)

		cp, err := ResolveCheckpoint(manifest)

		require.NoError(t, err)
		assert.True(t, cp.Wrapped)
		assert.Equal(t, filepath.Join(dir, "weights.onnx"), cp.ModelPath)
		assert.Equal(t, "pixel_values", cp.InputName)
		assert.Equal(t, "logits", cp.OutputName)
		assert.Equal(t, 256, cp.Transform.Size)
		assert.Equal(t, [3]float32{0.5, 0.5, 0.5}, cp.Transform.Mean)
		assert.Equal(t, [3]float32{0.25, 0.25, 0.25}, cp.Transform.Std)
	})

	t.Run("json manifest inside directory", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "weights.onnx", "onnx")
		writeFile(t, dir, "checkpoint.json", `{"model_state": "weights.onnx", "classes": ["fake", "real"]}`)

		cp, err := ResolveCheckpoint(dir)

		require.NoError(t, err)
		assert.True(t, cp.Wrapped)
		assert.Equal(t, "input", cp.InputName)
		assert.Equal(t, preprocess.DefaultImageSize, cp.Transform.Size)
	})
}

func TestResolveCheckpoint_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
	}{
		{
			name:  "empty path",
			setup: func(t *testing.T) string { return " " },
		},
		{
			name:  "missing file",
			setup: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.onnx") },
		},
		{
			name:  "directory without manifest",
			setup: func(t *testing.T) string { return t.TempDir() },
		},
		{
			name: "manifest without model_state",
			setup: func(t *testing.T) string {
				return writeFile(t, t.TempDir(), "ckpt.yaml", "image_size: 224\n")
			},
		},
		{
			name: "model_state points nowhere",
			setup: func(t *testing.T) string {
				return writeFile(t, t.TempDir(), "ckpt.yaml", "model_state: missing.onnx\n")
			},
		},
		{
			name: "three classes",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "w.onnx", "onnx")
				return writeFile(t, dir, "ckpt.yaml", "model_state: w.onnx\nclasses: [a, b, c]\n")
			},
		},
		{
			name: "short mean",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "w.onnx", "onnx")
				return writeFile(t, dir, "ckpt.yaml", "model_state: w.onnx\nmean: [0.1]\n")
			},
		},
		{
			name: "broken json",
			setup: func(t *testing.T) string {
				return writeFile(t, t.TempDir(), "ckpt.json", "{")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveCheckpoint(tt.setup(t))
			assert.ErrorIs(t, err, domain.ErrModelLoad)
		})
	}
}

func TestValidateImageTopology(t *testing.T) {
	cp := Checkpoint{
		InputName:  "input",
		OutputName: "output",
		Transform:  preprocess.DefaultImageTransform(),
	}
	info := func(name string, dims ...int64) ort.InputOutputInfo {
		return ort.InputOutputInfo{Name: name, Dimensions: ort.NewShape(dims...)}
	}

	tests := []struct {
		name    string
		inputs  []ort.InputOutputInfo
		outputs []ort.InputOutputInfo
		wantErr bool
	}{
		{
			name:    "dynamic batch",
			inputs:  []ort.InputOutputInfo{info("input", -1, 3, 224, 224)},
			outputs: []ort.InputOutputInfo{info("output", -1, 2)},
		},
		{
			name:    "fixed batch",
			inputs:  []ort.InputOutputInfo{info("input", 1, 3, 224, 224)},
			outputs: []ort.InputOutputInfo{info("output", 1, 2)},
		},
		{
			name:    "imagenet head left in place",
			inputs:  []ort.InputOutputInfo{info("input", -1, 3, 224, 224)},
			outputs: []ort.InputOutputInfo{info("output", -1, 1000)},
			wantErr: true,
		},
		{
			name:    "wrong resolution",
			inputs:  []ort.InputOutputInfo{info("input", -1, 3, 299, 299)},
			outputs: []ort.InputOutputInfo{info("output", -1, 2)},
			wantErr: true,
		},
		{
			name:    "missing input name",
			inputs:  []ort.InputOutputInfo{info("images", -1, 3, 224, 224)},
			outputs: []ort.InputOutputInfo{info("output", -1, 2)},
			wantErr: true,
		},
		{
			name:    "missing output name",
			inputs:  []ort.InputOutputInfo{info("input", -1, 3, 224, 224)},
			outputs: []ort.InputOutputInfo{info("logits", -1, 2)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateImageTopology(tt.inputs, tt.outputs, cp)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrModelLoad)
				return
			}
			assert.NoError(t, err)
		})
	}
}
