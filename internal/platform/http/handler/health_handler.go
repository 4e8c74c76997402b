// Package handler はプラットフォームレベルのエンドポイント用HTTPハンドラーを提供します。
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"deepfake_backend/internal/api"
)

// Capabilities はヘルスチェックが報告するモデルのロード状態です。
type Capabilities interface {
	AudioAvailable() bool
}

// NewHealth は /healthz ハンドラーを返します。
// 画像モデルは起動時に必須のため、プロセスが応答している時点で常にロード済みです。
func NewHealth(caps Capabilities) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 明示的にキャッシュを防止
		c.Header("Cache-Control", "no-store")

		switch c.Request.Method {
		case http.MethodHead:
			c.Status(http.StatusOK)
		case http.MethodOptions:
			c.Status(http.StatusNoContent)
		default:
			c.JSON(http.StatusOK, api.HealthResponse{
				Status:     "ok",
				ImageModel: true,
				AudioModel: caps != nil && caps.AudioAvailable(),
			})
		}
	}
}
