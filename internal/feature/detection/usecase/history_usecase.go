package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"deepfake_backend/internal/feature/detection/domain/entity"
)

const (
	// DefaultHistoryLimit は履歴取得のデフォルト件数です。
	DefaultHistoryLimit = 50
	// MaxHistoryLimit は履歴取得の最大件数です。
	MaxHistoryLimit = 500
)

// HistoryRepository は判定履歴の永続化レイヤーを抽象化します。
type HistoryRepository interface {
	// Create は判定履歴を1件保存します。
	Create(ctx context.Context, rec *entity.DetectionRecord) error
	// Recent は新しい順に最大limit件の履歴を返します。
	Recent(ctx context.Context, limit int) ([]entity.DetectionRecord, error)
}

// historyUsecase は判定履歴の参照を提供します。
type historyUsecase struct {
	repo HistoryRepository
}

// NewHistoryUsecase はhistoryUsecaseの新しいインスタンスを生成します。
func NewHistoryUsecase(repo HistoryRepository) *historyUsecase {
	return &historyUsecase{repo: repo}
}

// Recent は新しい順に判定履歴を返します。
func (u *historyUsecase) Recent(ctx context.Context, limit int) ([]entity.DetectionRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	return u.repo.Recent(ctx, limit)
}

// RecordingDetector はDetectorをデコレートし、成功した判定を履歴に記録します。
// 記録はベストエフォートで、保存に失敗しても判定結果はそのまま返します。
type RecordingDetector struct {
	inner Detector
	repo  HistoryRepository
	now   func() time.Time
}

var _ Detector = (*RecordingDetector)(nil)

// NewRecordingDetector はRecordingDetectorの新しいインスタンスを生成します。
func NewRecordingDetector(inner Detector, repo HistoryRepository) *RecordingDetector {
	return &RecordingDetector{inner: inner, repo: repo, now: time.Now}
}

// AudioAvailable は内部のDetectorに委譲します。
func (d *RecordingDetector) AudioAvailable() bool {
	return d.inner.AudioAvailable()
}

// PredictImage は画像判定を行い、結果を記録します。
func (d *RecordingDetector) PredictImage(ctx context.Context, up entity.Upload) (entity.Result, error) {
	res, err := d.inner.PredictImage(ctx, up)
	if err == nil {
		d.record(ctx, entity.KindImage, up, res)
	}
	return res, err
}

// PredictAudio は音声判定を行い、結果を記録します。
func (d *RecordingDetector) PredictAudio(ctx context.Context, up entity.Upload) (entity.Result, error) {
	res, err := d.inner.PredictAudio(ctx, up)
	if err == nil {
		d.record(ctx, entity.KindAudio, up, res)
	}
	return res, err
}

func (d *RecordingDetector) record(ctx context.Context, kind entity.Kind, up entity.Upload, res entity.Result) {
	// プレースホルダーはモデルの判定ではないので記録しない
	if res.Verdict == entity.VerdictUnavailable {
		return
	}
	rec := &entity.DetectionRecord{
		ID:          uuid.NewString(),
		Kind:        kind,
		Filename:    up.Filename,
		ContentType: up.ContentType,
		SizeBytes:   int64(len(up.Data)),
		Digest:      Digest(up.Data),
		Prediction:  res.Verdict.Label(),
		Confidence:  res.Confidence,
		Status:      res.Status,
		CreatedAt:   d.now(),
	}
	if err := d.repo.Create(ctx, rec); err != nil {
		slog.Warn("failed to record detection", "error", err, "kind", kind, "id", rec.ID)
	}
}
