// Package onnx はONNX Runtimeを使った画像分類モデルと音声分類パイプラインを提供します。
package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
	"gopkg.in/yaml.v3"

	"deepfake_backend/internal/feature/detection/domain"
	"deepfake_backend/internal/feature/detection/preprocess"
)

const (
	defaultImageInputName  = "input"
	defaultImageOutputName = "output"
	imageNumClasses        = 2
)

// manifestNames はディレクトリ指定時に探すチェックポイントマニフェストの候補です。
var manifestNames = []string{"checkpoint.yaml", "checkpoint.yml", "checkpoint.json"}

// Checkpoint は解決済みの画像モデルチェックポイントです。
type Checkpoint struct {
	ModelPath  string
	InputName  string
	OutputName string
	Classes    []string
	Transform  preprocess.ImageTransform
	Wrapped    bool // マニフェスト経由で読み込んだかどうか
}

// checkpointManifest はモデルファイルを包むマニフェストの形式です。
type checkpointManifest struct {
	ModelState string    `yaml:"model_state" json:"model_state"`
	InputName  string    `yaml:"input_name" json:"input_name"`
	OutputName string    `yaml:"output_name" json:"output_name"`
	ImageSize  int       `yaml:"image_size" json:"image_size"`
	Classes    []string  `yaml:"classes" json:"classes"`
	Mean       []float32 `yaml:"mean" json:"mean"`
	Std        []float32 `yaml:"std" json:"std"`
}

// ResolveCheckpoint はチェックポイントのパスを解決します。
// 生のモデルファイル（.onnx）と、model_stateでモデルファイルを指すラップ済みマニフェストの両方に対応します。
func ResolveCheckpoint(path string) (Checkpoint, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Checkpoint{}, fmt.Errorf("%w: checkpoint path is empty", domain.ErrModelLoad)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: checkpoint %s not found: %w", domain.ErrModelLoad, path, err)
	}

	if info.IsDir() {
		for _, name := range manifestNames {
			candidate := filepath.Join(path, name)
			if _, err := os.Stat(candidate); err == nil {
				return loadManifest(candidate)
			}
		}
		return Checkpoint{}, fmt.Errorf("%w: no checkpoint manifest in %s", domain.ErrModelLoad, path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return loadManifest(path)
	}

	return Checkpoint{
		ModelPath:  path,
		InputName:  defaultImageInputName,
		OutputName: defaultImageOutputName,
		Classes:    []string{"fake", "real"},
		Transform:  preprocess.DefaultImageTransform(),
	}, nil
}

func loadManifest(path string) (Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: read manifest: %w", domain.ErrModelLoad, err)
	}

	var m checkpointManifest
	unmarshal := yaml.Unmarshal
	if strings.EqualFold(filepath.Ext(path), ".json") {
		unmarshal = json.Unmarshal
	}
	if err := unmarshal(data, &m); err != nil {
		return Checkpoint{}, fmt.Errorf("%w: parse manifest %s: %w", domain.ErrModelLoad, path, err)
	}
	if strings.TrimSpace(m.ModelState) == "" {
		return Checkpoint{}, fmt.Errorf("%w: manifest %s has no model_state", domain.ErrModelLoad, path)
	}

	modelPath := m.ModelState
	if !filepath.IsAbs(modelPath) {
		modelPath = filepath.Join(filepath.Dir(path), modelPath)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return Checkpoint{}, fmt.Errorf("%w: model_state %s not found: %w", domain.ErrModelLoad, modelPath, err)
	}

	cp := Checkpoint{
		ModelPath:  modelPath,
		InputName:  m.InputName,
		OutputName: m.OutputName,
		Classes:    m.Classes,
		Transform:  preprocess.DefaultImageTransform(),
		Wrapped:    true,
	}
	if cp.InputName == "" {
		cp.InputName = defaultImageInputName
	}
	if cp.OutputName == "" {
		cp.OutputName = defaultImageOutputName
	}
	if len(cp.Classes) == 0 {
		cp.Classes = []string{"fake", "real"}
	}
	if len(cp.Classes) != imageNumClasses {
		return Checkpoint{}, fmt.Errorf("%w: expected %d classes, manifest lists %d", domain.ErrModelLoad, imageNumClasses, len(cp.Classes))
	}
	if m.ImageSize > 0 {
		cp.Transform.Size = m.ImageSize
	}
	if len(m.Mean) > 0 {
		if len(m.Mean) != 3 {
			return Checkpoint{}, fmt.Errorf("%w: mean must have 3 values", domain.ErrModelLoad)
		}
		copy(cp.Transform.Mean[:], m.Mean)
	}
	if len(m.Std) > 0 {
		if len(m.Std) != 3 {
			return Checkpoint{}, fmt.Errorf("%w: std must have 3 values", domain.ErrModelLoad)
		}
		copy(cp.Transform.Std[:], m.Std)
	}
	return cp, nil
}

// ValidateImageTopology はモデルの入出力がバックボーン＋2クラスヘッドの形状と一致するか検証します。
// 動的次元（-1）は任意のサイズとして扱います。
func ValidateImageTopology(inputs, outputs []ort.InputOutputInfo, cp Checkpoint) error {
	in, ok := findInfo(inputs, cp.InputName)
	if !ok {
		return fmt.Errorf("%w: model has no input %q", domain.ErrModelLoad, cp.InputName)
	}
	out, ok := findInfo(outputs, cp.OutputName)
	if !ok {
		return fmt.Errorf("%w: model has no output %q", domain.ErrModelLoad, cp.OutputName)
	}

	size := int64(cp.Transform.Size)
	if !shapeMatches(in.Dimensions, []int64{-1, 3, size, size}) {
		return fmt.Errorf("%w: shape mismatch: input %q is %v, want [N 3 %d %d]", domain.ErrModelLoad, in.Name, in.Dimensions, size, size)
	}
	if !shapeMatches(out.Dimensions, []int64{-1, imageNumClasses}) {
		return fmt.Errorf("%w: shape mismatch: output %q is %v, want [N %d]", domain.ErrModelLoad, out.Name, out.Dimensions, imageNumClasses)
	}
	return nil
}

func findInfo(infos []ort.InputOutputInfo, name string) (ort.InputOutputInfo, bool) {
	for _, info := range infos {
		if info.Name == name {
			return info, true
		}
	}
	return ort.InputOutputInfo{}, false
}

// shapeMatches は want の -1 をワイルドカードとして got と比較します。
func shapeMatches(got ort.Shape, want []int64) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if want[i] < 0 || got[i] < 0 {
			continue
		}
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
