// Package handler はdetectionフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"deepfake_backend/internal/api"
	"deepfake_backend/internal/feature/detection/domain"
	"deepfake_backend/internal/feature/detection/domain/entity"
)

const (
	// formField はアップロードファイルのmultipartフィールド名です。
	formField = "file"
	// MultipartOverhead はリクエストボディ上限にファイル上限へ上乗せする余裕です。
	MultipartOverhead = 1 << 20
)

// DetectionUsecase は画像・音声判定のユースケースインターフェースを定義します。
// Goの慣例に従い、インターフェースは利用者（handler）側で定義します。
type DetectionUsecase interface {
	PredictImage(ctx context.Context, up entity.Upload) (entity.Result, error)
	PredictAudio(ctx context.Context, up entity.Upload) (entity.Result, error)
}

// UploadLimits はハンドラーが読み込むファイルサイズの上限です。
// 上限+1バイトまで読み、超過判定はユースケースに任せます。
type UploadLimits struct {
	MaxImageBytes int64
	MaxAudioBytes int64
}

// DetectionHandler は判定エンドポイントのHTTPリクエストを処理します。
type DetectionHandler struct {
	uc     DetectionUsecase
	limits UploadLimits
}

// NewDetectionHandler はDetectionHandlerの新しいインスタンスを生成します。
func NewDetectionHandler(uc DetectionUsecase, limits UploadLimits) *DetectionHandler {
	return &DetectionHandler{uc: uc, limits: limits}
}

// PredictImage はアップロード画像のディープフェイク判定を行います。
//
// エンドポイント: POST /predict
// Content-Type: multipart/form-data
// フィールド: file（画像ファイル、最大10MB）
func (h *DetectionHandler) PredictImage(c *gin.Context) {
	up, ok := h.readUpload(c, h.limits.MaxImageBytes)
	if !ok {
		return
	}

	res, err := h.uc.PredictImage(c.Request.Context(), up)
	if err != nil {
		h.writeError(c, entity.KindImage, up, err)
		return
	}
	slog.Info("画像判定が完了", "filename", up.Filename, "prediction", res.Verdict.Label(), "confidence", res.Confidence)
	c.JSON(http.StatusOK, toPredictionResponse(res))
}

// PredictAudio はアップロード音声のディープフェイク判定を行います。
//
// エンドポイント: POST /predict_audio
// Content-Type: multipart/form-data
// フィールド: file（WAV/MP3/FLAC、最大50MB）
func (h *DetectionHandler) PredictAudio(c *gin.Context) {
	up, ok := h.readUpload(c, h.limits.MaxAudioBytes)
	if !ok {
		return
	}

	res, err := h.uc.PredictAudio(c.Request.Context(), up)
	if err != nil {
		h.writeError(c, entity.KindAudio, up, err)
		return
	}
	slog.Info("音声判定が完了", "filename", up.Filename, "prediction", res.Verdict.Label(), "confidence", res.Confidence)
	c.JSON(http.StatusOK, toPredictionResponse(res))
}

// readUpload はmultipartのfileフィールドを読み込みます。失敗時はレスポンスを書き込んでfalseを返します。
func (h *DetectionHandler) readUpload(c *gin.Context, limit int64) (entity.Upload, bool) {
	// 一時ファイルへ書き出す前にボディ全体を打ち切る
	if limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+MultipartOverhead)
	}

	file, err := c.FormFile(formField)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		slog.Warn("リクエストボディが上限を超過", "limit", tooLarge.Limit, "remote_addr", c.ClientIP())
		c.JSON(http.StatusRequestEntityTooLarge, api.ErrorResponse{Error: "File is too large"})
		return entity.Upload{}, false
	}
	if err != nil {
		slog.Warn("アップロードファイルの取得に失敗", "error", err, "remote_addr", c.ClientIP())
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "file is required"})
		return entity.Upload{}, false
	}

	data, err := readLimited(file, limit)
	if err != nil {
		slog.Error("アップロードファイルの読み込みに失敗", "error", err, "filename", file.Filename)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to read uploaded file"})
		return entity.Upload{}, false
	}

	return entity.Upload{
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Data:        data,
	}, true
}

func readLimited(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("アップロードファイルのクローズに失敗", "error", err)
		}
	}()

	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit+1)
	}
	return io.ReadAll(r)
}

// writeError はドメインエラーをHTTPステータスにマッピングします。
func (h *DetectionHandler) writeError(c *gin.Context, kind entity.Kind, up entity.Upload, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidContentType):
		slog.Warn("Content-Typeが不正", "kind", kind, "content_type", up.ContentType, "filename", up.Filename)
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: contentTypeMessage(kind)})
	case errors.Is(err, domain.ErrEmptyUpload):
		slog.Warn("空のファイルがアップロードされた", "kind", kind, "filename", up.Filename)
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "File is empty"})
	case errors.Is(err, domain.ErrUploadTooLarge):
		slog.Warn("ファイルサイズが上限を超過", "kind", kind, "filename", up.Filename, "error", err)
		c.JSON(http.StatusRequestEntityTooLarge, api.ErrorResponse{Error: "File is too large"})
	default:
		slog.Error("判定に失敗", "kind", kind, "filename", up.Filename, "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: fmt.Sprintf("Error processing %s: %v", kind, err)})
	}
}

func contentTypeMessage(kind entity.Kind) string {
	if kind == entity.KindImage {
		return "File must be an image"
	}
	return "File must be an audio file"
}

func toPredictionResponse(res entity.Result) api.PredictionResponse {
	return api.PredictionResponse{
		Prediction: res.Verdict.Label(),
		Confidence: res.Confidence,
		Status:     string(res.Status),
	}
}
