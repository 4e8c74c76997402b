package router

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	detectionhandler "deepfake_backend/internal/feature/detection/transport/handler"
	jwtmw "deepfake_backend/internal/platform/jwt"
	"deepfake_backend/internal/web"
)

// Handlers はルーターに登録するハンドラー一式です。History はnilなら登録しません。
type Handlers struct {
	Detection *detectionhandler.DetectionHandler
	History   *detectionhandler.HistoryHandler
	Health    gin.HandlerFunc
}

func NewRouter(h Handlers) *gin.Engine {
	r := gin.Default()

	// ブラウザから直接叩けるよう全オリジンを許可
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodHead, http.MethodOptions},
		AllowHeaders:    []string{"*"},
	}))

	// 認証不要
	// フロントエンド
	r.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", web.Index())
	})
	r.StaticFS("/static", http.FS(web.Static()))

	// 導通確認用
	r.GET("/healthz", h.Health)
	r.HEAD("/healthz", h.Health)
	r.OPTIONS("/healthz", h.Health)

	// 判定
	r.POST("/predict", h.Detection.PredictImage)
	r.POST("/predict_audio", h.Detection.PredictAudio)

	// 認証必須のルート
	if h.History != nil {
		auth := r.Group("/v1")
		auth.Use(jwtmw.AuthRequired())
		{
			auth.GET("/history", h.History.List)
		}
	}

	return r
}
