package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	redisv9 "github.com/redis/go-redis/v9"

	"deepfake_backend/internal/app/di"
	"deepfake_backend/internal/app/router"
	onnxadapters "deepfake_backend/internal/feature/detection/adapters/onnx"
	detectionhandler "deepfake_backend/internal/feature/detection/transport/handler"
	detectionusecase "deepfake_backend/internal/feature/detection/usecase"
	"deepfake_backend/internal/platform/config"
	infradb "deepfake_backend/internal/platform/db"
	infrahttp "deepfake_backend/internal/platform/http"
	"deepfake_backend/internal/platform/http/handler"
	jwtmw "deepfake_backend/internal/platform/jwt"
	"deepfake_backend/internal/platform/logger"
	"deepfake_backend/internal/platform/onnxrt"
	infraredis "deepfake_backend/internal/platform/redis"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file (missing file is ignored)")
	healthcheck := flag.Bool("healthcheck", false, "probe /healthz on the configured address and exit")
	flag.Parse()

	// .env はローカル開発用。無くてもよい
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := logger.Setup(os.Stderr, cfg.Logging.Level, cfg.Logging.Format); err != nil {
		slog.Error("failed to configure logger", "error", err)
		os.Exit(1)
	}

	if *healthcheck {
		os.Exit(probe(cfg.Server.Addr))
	}

	if err := run(cfg); err != nil {
		slog.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ONNX Runtime
	rt, err := onnxrt.Init(onnxrt.Config{
		SharedLibraryPath: cfg.ONNX.SharedLibraryPath,
		Device:            cfg.ONNX.Device,
		IntraOpThreads:    cfg.ONNX.IntraOpThreads,
		CUDADeviceID:      cfg.ONNX.CUDADeviceID,
	})
	if err != nil {
		return err
	}
	defer closeLogged("onnxruntime environment", rt)

	// 画像モデルは必須
	imageModel, err := onnxadapters.LoadImageModel(rt, cfg.Image.CheckpointPath)
	if err != nil {
		return err
	}
	defer closeLogged("image model session", imageModel)

	// 音声パイプラインは失敗してもプレースホルダーで継続
	models := di.Models{Image: imageModel}
	if cfg.Audio.Enabled {
		pipeline, err := onnxadapters.LoadAudioPipeline(rt, cfg.Audio.BundleDir)
		if err != nil {
			slog.Warn("audio pipeline unavailable, /predict_audio will return a placeholder", "error", err)
		} else {
			models.Audio = pipeline
			defer closeLogged("audio pipeline session", pipeline)
		}
	} else {
		slog.Info("audio pipeline disabled by config")
	}

	// Redis
	var rdb *redisv9.Client
	if cfg.Cache.Enabled {
		if tmp, err := infraredis.NewRedisClient(ctx, infraredis.Config{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		}); err != nil {
			slog.Warn("Redis unavailable. Running without cache.")
		} else {
			rdb = tmp
			defer func() {
				if err := rdb.Close(); err != nil {
					slog.Error("failed to close Redis client", "error", err)
				}
			}()
		}
	}

	// 判定履歴
	var history detectionusecase.HistoryRepository
	var historyH *detectionhandler.HistoryHandler
	if cfg.History.Enabled {
		db, err := infradb.OpenDB(infradb.Config{Driver: cfg.History.Driver, DSN: cfg.History.DSN})
		if err != nil {
			return err
		}
		history = di.NewHistoryRepository(db)
		historyH = detectionhandler.NewHistoryHandler(detectionusecase.NewHistoryUsecase(history))

		// JWT_SECRETチェック（開発中の注意喚起）
		if os.Getenv(jwtmw.EnvKeyJWTSecret) == "" {
			slog.Warn("JWT_SECRET is not set. /v1/history will answer 500 until it is.")
		}
	}

	detector := di.NewDetector(ctx, cfg, models, rdb, history)

	r := router.NewRouter(router.Handlers{
		Detection: detectionhandler.NewDetectionHandler(detector, detectionhandler.UploadLimits{
			MaxImageBytes: cfg.Server.MaxImageBytes,
			MaxAudioBytes: cfg.Server.MaxAudioBytes,
		}),
		History: historyH,
		Health:  handler.NewHealth(detector),
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.Server.Addr, "audio_model", detector.AudioAvailable())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// closeLogged はリソースを解放し、失敗した場合はログに残します。
func closeLogged(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		slog.Error("failed to release "+name, "error", err)
	}
}

// probe は起動中のサーバーの /healthz を叩き、終了コードを返します。
func probe(addr string) int {
	host := addr
	if len(host) > 0 && host[0] == ':' {
		host = "127.0.0.1" + host
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := infrahttp.Probe(ctx, infrahttp.NewHTTPClient(3*time.Second), "http://"+host+"/healthz"); err != nil {
		slog.Error("health probe failed", "error", err)
		return 1
	}
	return 0
}
