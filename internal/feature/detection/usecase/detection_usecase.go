// Package usecase はdetectionフィーチャーのビジネスロジックを実装します。
package usecase

import (
	"context"
	"fmt"
	"strings"

	"deepfake_backend/internal/feature/detection/domain"
	"deepfake_backend/internal/feature/detection/domain/entity"
	"deepfake_backend/internal/feature/detection/preprocess"
)

const (
	// DefaultMaxImageSize は画像アップロードの最大サイズ（10MB）です。
	DefaultMaxImageSize = 10 * 1024 * 1024
	// DefaultMaxAudioSize は音声アップロードの最大サイズ（50MB）です。
	DefaultMaxAudioSize = 50 * 1024 * 1024

	imageClassReal = 1
)

// ImageClassifier は前処理済みテンソルに対して順伝播を行う画像分類モデルです。
// Goの慣例に従い、インターフェースは利用者（usecase）側で定義します。
type ImageClassifier interface {
	// Transform はモデルが学習時に使った前処理パラメータを返します。
	Transform() preprocess.ImageTransform
	// Logits はNCHWテンソルに対して1回の順伝播を行い、ロジットを返します。
	Logits(ctx context.Context, input []float32) ([]float32, error)
}

// AudioClassifier は特徴抽出と分類を一括で行う音声分類パイプラインです。
type AudioClassifier interface {
	// SampleRate はパイプラインが期待するサンプリングレートを返します。
	SampleRate() int
	// Classify はモノラル波形を分類し、スコア降順のラベル一覧を返します。
	Classify(ctx context.Context, waveform []float32) ([]entity.LabelScore, error)
}

// Detector は判定ユースケースの公開インターフェースです。
// キャッシュや履歴記録はこのインターフェースをデコレートします。
type Detector interface {
	PredictImage(ctx context.Context, up entity.Upload) (entity.Result, error)
	PredictAudio(ctx context.Context, up entity.Upload) (entity.Result, error)
	AudioAvailable() bool
}

// Limits はアップロードサイズの上限です。0以下の値はデフォルトに置き換えます。
type Limits struct {
	MaxImageBytes int64
	MaxAudioBytes int64
}

func (l Limits) withDefaults() Limits {
	if l.MaxImageBytes <= 0 {
		l.MaxImageBytes = DefaultMaxImageSize
	}
	if l.MaxAudioBytes <= 0 {
		l.MaxAudioBytes = DefaultMaxAudioSize
	}
	return l
}

// detectionUsecase は画像・音声の判定ロジックを提供します。
type detectionUsecase struct {
	image  ImageClassifier
	audio  AudioClassifier
	limits Limits
}

var _ Detector = (*detectionUsecase)(nil)

// NewDetectionUsecase はdetectionUsecaseの新しいインスタンスを生成します。
// audio がnilの場合、音声判定は常にプレースホルダー結果を返します。
func NewDetectionUsecase(image ImageClassifier, audio AudioClassifier, limits Limits) *detectionUsecase {
	return &detectionUsecase{image: image, audio: audio, limits: limits.withDefaults()}
}

// AudioAvailable は音声パイプラインがロード済みかどうかを返します。
func (u *detectionUsecase) AudioAvailable() bool {
	return u.audio != nil
}

// PredictImage はアップロード画像を判定します。
func (u *detectionUsecase) PredictImage(ctx context.Context, up entity.Upload) (entity.Result, error) {
	if err := CheckContentType(entity.KindImage, up.ContentType); err != nil {
		return entity.Result{}, err
	}
	if err := checkSize(up.Data, u.limits.MaxImageBytes); err != nil {
		return entity.Result{}, err
	}

	input, err := preprocess.ImageTensor(up.Data, u.image.Transform())
	if err != nil {
		return entity.Result{}, fmt.Errorf("%w: %w", domain.ErrInference, err)
	}

	logits, err := u.image.Logits(ctx, input)
	if err != nil {
		return entity.Result{}, fmt.Errorf("%w: %w", domain.ErrInference, err)
	}
	if len(logits) != 2 {
		return entity.Result{}, fmt.Errorf("%w: expected 2 logits, got %d", domain.ErrInference, len(logits))
	}

	probs := Softmax(logits)
	class, p := ArgMax(probs)

	verdict := entity.VerdictFake
	if class == imageClassReal {
		verdict = entity.VerdictReal
	}
	return entity.Result{
		Verdict:    verdict,
		Confidence: RoundPercent(p),
		Status:     entity.StatusOf(verdict),
	}, nil
}

// PredictAudio はアップロード音声を判定します。
// 音声パイプラインが無い場合は入力に関係なくプレースホルダー結果を返します。
func (u *detectionUsecase) PredictAudio(ctx context.Context, up entity.Upload) (entity.Result, error) {
	if err := CheckContentType(entity.KindAudio, up.ContentType); err != nil {
		return entity.Result{}, err
	}
	if u.audio == nil {
		return entity.Unavailable(), nil
	}
	if err := checkSize(up.Data, u.limits.MaxAudioBytes); err != nil {
		return entity.Result{}, err
	}

	waveform, err := preprocess.LoadAudio(up.Data, u.audio.SampleRate())
	if err != nil {
		return entity.Result{}, fmt.Errorf("%w: %w", domain.ErrInference, err)
	}

	scores, err := u.audio.Classify(ctx, waveform)
	if err != nil {
		return entity.Result{}, fmt.Errorf("%w: %w", domain.ErrInference, err)
	}
	if len(scores) == 0 {
		return entity.Result{}, fmt.Errorf("%w: pipeline returned no labels", domain.ErrInference)
	}

	top := scores[0]
	verdict := VerdictFromLabel(top.Label)
	return entity.Result{
		Verdict:    verdict,
		Confidence: RoundPercent(float64(top.Score)),
		Status:     entity.StatusOf(verdict),
	}, nil
}

// CheckContentType は申告されたMIMEタイプが期待するファミリーかを検証します。
func CheckContentType(kind entity.Kind, contentType string) error {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), string(kind)+"/") {
		return nil
	}
	switch kind {
	case entity.KindImage:
		return fmt.Errorf("%w: file must be an image", domain.ErrInvalidContentType)
	default:
		return fmt.Errorf("%w: file must be an audio file", domain.ErrInvalidContentType)
	}
}

func checkSize(data []byte, limit int64) error {
	if len(data) == 0 {
		return domain.ErrEmptyUpload
	}
	if int64(len(data)) > limit {
		return fmt.Errorf("%w: maximum is %d bytes", domain.ErrUploadTooLarge, limit)
	}
	return nil
}
