package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"deepfake_backend/internal/api"
	"deepfake_backend/internal/feature/detection/domain/entity"
)

// HistoryUsecase は判定履歴参照のユースケースインターフェースです。
type HistoryUsecase interface {
	Recent(ctx context.Context, limit int) ([]entity.DetectionRecord, error)
}

// HistoryHandler は判定履歴APIのHTTPリクエストを処理します。
type HistoryHandler struct {
	uc HistoryUsecase
}

// NewHistoryHandler はHistoryHandlerの新しいインスタンスを生成します。
func NewHistoryHandler(uc HistoryUsecase) *HistoryHandler {
	return &HistoryHandler{uc: uc}
}

// List は新しい順に判定履歴を返します。
//
// エンドポイント: GET /v1/history?limit=N
// 認証: Bearer JWT
func (h *HistoryHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	records, err := h.uc.Recent(c.Request.Context(), limit)
	if err != nil {
		slog.Error("判定履歴の取得に失敗", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load history"})
		return
	}

	out := make([]api.DetectionRecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, api.DetectionRecordResponse{
			ID:          r.ID,
			Kind:        string(r.Kind),
			Filename:    r.Filename,
			ContentType: r.ContentType,
			SizeBytes:   r.SizeBytes,
			Prediction:  r.Prediction,
			Confidence:  r.Confidence,
			Status:      string(r.Status),
			CreatedAt:   r.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}
