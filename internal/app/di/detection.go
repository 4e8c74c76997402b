// Package di provides dependency injection factories for creating application components.
package di

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	detectionadapters "deepfake_backend/internal/feature/detection/adapters"
	"deepfake_backend/internal/feature/detection/usecase"
	"deepfake_backend/internal/platform/cache"
	"deepfake_backend/internal/platform/config"
)

// Models holds the loaded classifiers. Audio is nil when the pipeline failed to load.
type Models struct {
	Image usecase.ImageClassifier
	Audio usecase.AudioClassifier
}

// NewDetector builds the detection usecase and layers the optional decorators.
// The order is history(cache(usecase)) so cache hits are still recorded.
func NewDetector(ctx context.Context, cfg *config.Config, m Models, rdb *redis.Client, history usecase.HistoryRepository) usecase.Detector {
	var d usecase.Detector = usecase.NewDetectionUsecase(m.Image, m.Audio, limitsFrom(cfg))

	if rdb != nil {
		cached := cache.NewCachingDetector(rdb, cfg.Cache.TTL, d, cfg.Cache.Namespace)
		if cfg.Cache.PurgeOnStart {
			if err := cached.Purge(ctx); err != nil {
				slog.Warn("failed to purge prediction cache", "error", err)
			}
		}
		d = cached
	}

	if history != nil {
		d = usecase.NewRecordingDetector(d, history)
	}
	return d
}

// NewHistoryRepository returns the GORM-backed history store, or nil without a DB.
func NewHistoryRepository(db *gorm.DB) usecase.HistoryRepository {
	if db == nil {
		return nil
	}
	return detectionadapters.NewHistoryGorm(db)
}

func limitsFrom(cfg *config.Config) usecase.Limits {
	return usecase.Limits{
		MaxImageBytes: cfg.Server.MaxImageBytes,
		MaxAudioBytes: cfg.Server.MaxAudioBytes,
	}
}
