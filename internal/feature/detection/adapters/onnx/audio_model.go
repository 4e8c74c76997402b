package onnx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	ort "github.com/yalue/onnxruntime_go"

	"deepfake_backend/internal/feature/detection/domain"
	"deepfake_backend/internal/feature/detection/domain/entity"
	"deepfake_backend/internal/feature/detection/preprocess"
	"deepfake_backend/internal/feature/detection/usecase"
	"deepfake_backend/internal/platform/onnxrt"
)

const (
	audioModelFile        = "model.onnx"
	audioConfigFile       = "config.json"
	audioPreprocessorFile = "preprocessor_config.json"
	audioInputName        = "input_values"
	audioOutputName       = "logits"

	// normalizeEpsilon はwav2vec2特徴抽出のゼロ平均・単位分散正規化で使う値です。
	normalizeEpsilon = 1e-7
)

// AudioPipeline はwav2vec2系の音声分類パイプライン（特徴抽出＋分類）をラップします。
type AudioPipeline struct {
	session     *ort.DynamicAdvancedSession
	labels      []string
	sampleRate  int
	doNormalize bool
	device      string
}

// AudioPipelineがAudioClassifierを実装していることをコンパイル時に検証します。
var _ usecase.AudioClassifier = (*AudioPipeline)(nil)

type modelConfig struct {
	ID2Label map[string]string `json:"id2label"`
}

type preprocessorConfig struct {
	SamplingRate int   `json:"sampling_rate"`
	DoNormalize  *bool `json:"do_normalize"`
}

// LoadAudioPipeline はバンドルディレクトリからパイプラインを読み込みます。
func LoadAudioPipeline(rt *onnxrt.Runtime, bundleDir string) (*AudioPipeline, error) {
	if bundleDir == "" {
		return nil, fmt.Errorf("%w: audio bundle dir is empty", domain.ErrModelLoad)
	}
	modelPath := filepath.Join(bundleDir, audioModelFile)
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: audio model missing at %s: %w", domain.ErrModelLoad, modelPath, err)
	}

	labels, err := LoadLabels(filepath.Join(bundleDir, audioConfigFile))
	if err != nil {
		return nil, fmt.Errorf("%w: load labels: %w", domain.ErrModelLoad, err)
	}

	sampleRate, doNormalize, err := loadPreprocessor(filepath.Join(bundleDir, audioPreprocessorFile))
	if err != nil {
		return nil, fmt.Errorf("%w: load preprocessor config: %w", domain.ErrModelLoad, err)
	}

	_, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: inspect %s: %w", domain.ErrModelLoad, modelPath, err)
	}
	if out, ok := findInfo(outputs, audioOutputName); !ok {
		return nil, fmt.Errorf("%w: audio model has no output %q", domain.ErrModelLoad, audioOutputName)
	} else if !shapeMatches(out.Dimensions, []int64{-1, int64(len(labels))}) {
		return nil, fmt.Errorf("%w: shape mismatch: logits %v for %d labels", domain.ErrModelLoad, out.Dimensions, len(labels))
	}

	session, device, err := rt.NewSession(modelPath, []string{audioInputName}, []string{audioOutputName})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrModelLoad, err)
	}

	slog.Info("audio pipeline ready", "bundle", bundleDir, "device", device, "labels", labels, "sample_rate", sampleRate)
	return &AudioPipeline{
		session:     session,
		labels:      labels,
		sampleRate:  sampleRate,
		doNormalize: doNormalize,
		device:      device,
	}, nil
}

// SampleRate はパイプラインの入力サンプリングレートを返します。
func (p *AudioPipeline) SampleRate() int {
	return p.sampleRate
}

// Classify は波形を分類し、スコア降順のラベル一覧を返します。
func (p *AudioPipeline) Classify(ctx context.Context, waveform []float32) ([]entity.LabelScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(waveform) == 0 {
		return nil, errors.New("waveform is empty")
	}

	values := waveform
	if p.doNormalize {
		values = NormalizeWaveform(waveform)
	}

	in, err := ort.NewTensor(ort.NewShape(1, int64(len(values))), values)
	if err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(p.labels))))
	if err != nil {
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}
	defer out.Destroy()

	if err := p.session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	return RankLabels(p.labels, out.GetData()), nil
}

// Close はセッションを解放します。
func (p *AudioPipeline) Close() error {
	if p == nil || p.session == nil {
		return nil
	}
	return p.session.Destroy()
}

// NormalizeWaveform はゼロ平均・単位分散に正規化した新しいスライスを返します。
func NormalizeWaveform(x []float32) []float32 {
	var mean float64
	for _, v := range x {
		mean += float64(v)
	}
	mean /= float64(len(x))

	var variance float64
	for _, v := range x {
		d := float64(v) - mean
		variance += d * d
	}
	variance /= float64(len(x))

	scale := 1 / math.Sqrt(variance+normalizeEpsilon)
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = float32((float64(v) - mean) * scale)
	}
	return out
}

// RankLabels はロジットにsoftmaxをかけ、スコア降順に並べたラベル一覧を返します。
func RankLabels(labels []string, logits []float32) []entity.LabelScore {
	n := len(labels)
	if len(logits) < n {
		n = len(logits)
	}
	probs := usecase.Softmax(logits[:n])

	out := make([]entity.LabelScore, n)
	for i := 0; i < n; i++ {
		out[i] = entity.LabelScore{Label: labels[i], Score: float32(probs[i])}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// LoadLabels はconfig.jsonのid2labelをインデックス順のスライスに変換します。
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg modelConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.ID2Label) == 0 {
		return nil, errors.New("id2label is empty")
	}

	out := make([]string, len(cfg.ID2Label))
	for k, v := range cfg.ID2Label {
		idx, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("invalid label index %q: %w", k, err)
		}
		if idx < 0 || idx >= len(out) {
			return nil, fmt.Errorf("label index %d out of range", idx)
		}
		out[idx] = v
	}
	return out, nil
}

// loadPreprocessor は特徴抽出の設定を読み込みます。ファイルが無い場合はデフォルトを返します。
func loadPreprocessor(path string) (int, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return preprocess.TargetSampleRate, true, nil
		}
		return 0, false, err
	}

	var cfg preprocessorConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return 0, false, err
	}
	rate := cfg.SamplingRate
	if rate <= 0 {
		rate = preprocess.TargetSampleRate
	}
	normalize := true
	if cfg.DoNormalize != nil {
		normalize = *cfg.DoNormalize
	}
	return rate, normalize, nil
}
