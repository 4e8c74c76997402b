package onnx

import (
	"context"
	"fmt"
	"log/slog"

	ort "github.com/yalue/onnxruntime_go"

	"deepfake_backend/internal/feature/detection/domain"
	"deepfake_backend/internal/feature/detection/preprocess"
	"deepfake_backend/internal/feature/detection/usecase"
	"deepfake_backend/internal/platform/onnxrt"
)

// ImageModel はResNet50バックボーン＋2クラスヘッドのONNXセッションをラップします。
// セッションは起動時に一度だけ作成され、以降は読み取り専用として並行に使われます。
type ImageModel struct {
	session    *ort.DynamicAdvancedSession
	checkpoint Checkpoint
	device     string
}

// ImageModelがImageClassifierを実装していることをコンパイル時に検証します。
var _ usecase.ImageClassifier = (*ImageModel)(nil)

// LoadImageModel はチェックポイントを解決し、形状を検証してからセッションを作成します。
func LoadImageModel(rt *onnxrt.Runtime, checkpointPath string) (*ImageModel, error) {
	cp, err := ResolveCheckpoint(checkpointPath)
	if err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cp.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: inspect %s: %w", domain.ErrModelLoad, cp.ModelPath, err)
	}
	if err := ValidateImageTopology(inputs, outputs, cp); err != nil {
		return nil, err
	}

	session, device, err := rt.NewSession(cp.ModelPath, []string{cp.InputName}, []string{cp.OutputName})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrModelLoad, err)
	}

	if cp.Wrapped {
		slog.Info("loaded checkpoint manifest", "manifest", checkpointPath, "model_state", cp.ModelPath)
	} else {
		slog.Info("loaded plain model file", "model", cp.ModelPath)
	}
	slog.Info("image model ready", "device", device, "image_size", cp.Transform.Size, "classes", cp.Classes)

	return &ImageModel{session: session, checkpoint: cp, device: device}, nil
}

// Transform はチェックポイントに紐づく前処理パラメータを返します。
func (m *ImageModel) Transform() preprocess.ImageTransform {
	return m.checkpoint.Transform
}

// Device はセッションが動作しているデバイス名を返します。
func (m *ImageModel) Device() string {
	return m.device
}

// Logits は1回の順伝播を行います。テンソルはリクエストごとに確保するためロックは不要です。
func (m *ImageModel) Logits(ctx context.Context, input []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	size := int64(m.checkpoint.Transform.Size)
	in, err := ort.NewTensor(ort.NewShape(1, 3, size, size), input)
	if err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, imageNumClasses))
	if err != nil {
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}
	defer out.Destroy()

	if err := m.session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	logits := make([]float32, imageNumClasses)
	copy(logits, out.GetData())
	return logits, nil
}

// Close はセッションを解放します。
func (m *ImageModel) Close() error {
	if m == nil || m.session == nil {
		return nil
	}
	return m.session.Destroy()
}
