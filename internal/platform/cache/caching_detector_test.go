package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"

	"deepfake_backend/internal/feature/detection/domain/entity"
	"deepfake_backend/internal/feature/detection/usecase"
)

// mockDetector はテスト用のDetectorモック実装です。
type mockDetector struct {
	imageFn func(ctx context.Context, up entity.Upload) (entity.Result, error)
	audioFn func(ctx context.Context, up entity.Upload) (entity.Result, error)
	audio   bool
	calls   int
}

func (m *mockDetector) PredictImage(ctx context.Context, up entity.Upload) (entity.Result, error) {
	m.calls++
	if m.imageFn != nil {
		return m.imageFn(ctx, up)
	}
	return entity.Result{}, nil
}

func (m *mockDetector) PredictAudio(ctx context.Context, up entity.Upload) (entity.Result, error) {
	m.calls++
	if m.audioFn != nil {
		return m.audioFn(ctx, up)
	}
	return entity.Unavailable(), nil
}

func (m *mockDetector) AudioAvailable() bool { return m.audio }

var (
	pngUpload = entity.Upload{Filename: "face.png", ContentType: "image/png", Data: []byte("png-bytes")}
	realImage = entity.Result{Verdict: entity.VerdictReal, Confidence: 73.11, Status: entity.StatusVerified}
)

func imageKey(up entity.Upload) string {
	return "predictions:image:" + usecase.Digest(up.Data)
}

// TestNewCachingDetector_Defaults はデフォルト値（TTLとnamespace）が正しく設定されることを検証します。
func TestNewCachingDetector_Defaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		ttl               time.Duration
		namespace         string
		expectedTTL       time.Duration
		expectedNamespace string
	}{
		{
			name:              "default values when zero/empty",
			expectedTTL:       10 * time.Minute,
			expectedNamespace: "predictions",
		},
		{
			name:              "negative ttl uses default",
			ttl:               -1 * time.Minute,
			expectedTTL:       10 * time.Minute,
			expectedNamespace: "predictions",
		},
		{
			name:              "custom values preserved",
			ttl:               time.Hour,
			namespace:         "custom",
			expectedTTL:       time.Hour,
			expectedNamespace: "custom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := NewCachingDetector(nil, tt.ttl, &mockDetector{}, tt.namespace)

			if c.ttl != tt.expectedTTL {
				t.Errorf("expected TTL %v, got %v", tt.expectedTTL, c.ttl)
			}
			if c.namespace != tt.expectedNamespace {
				t.Errorf("expected namespace %q, got %q", tt.expectedNamespace, c.namespace)
			}
		})
	}
}

// TestCachingDetector_NilRedis はRedisがnilの場合にキャッシュをバイパスすることを検証します。
func TestCachingDetector_NilRedis(t *testing.T) {
	t.Parallel()

	inner := &mockDetector{imageFn: func(ctx context.Context, up entity.Upload) (entity.Result, error) {
		return realImage, nil
	}}
	c := NewCachingDetector(nil, 0, inner, "")

	got, err := c.PredictImage(context.Background(), pngUpload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != realImage {
		t.Errorf("expected %+v, got %+v", realImage, got)
	}
	if err := c.Purge(context.Background()); err != nil {
		t.Errorf("purge without redis should be a no-op, got %v", err)
	}
}

// TestCachingDetector_CacheHit はキャッシュヒット時にモデルを呼ばないことを検証します。
func TestCachingDetector_CacheHit(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	cached, _ := json.Marshal(realImage)
	mock.ExpectGet(imageKey(pngUpload)).SetVal(string(cached))

	inner := &mockDetector{}
	c := NewCachingDetector(rdb, 0, inner, "")

	got, err := c.PredictImage(context.Background(), pngUpload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 0 {
		t.Error("inner detector should not be called on cache hit")
	}
	if got != realImage {
		t.Errorf("expected %+v, got %+v", realImage, got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled mock expectations: %v", err)
	}
}

// TestCachingDetector_CacheMiss はキャッシュミス時にモデルの結果を保存することを検証します。
func TestCachingDetector_CacheMiss(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	expected, _ := json.Marshal(realImage)
	mock.ExpectGet(imageKey(pngUpload)).RedisNil()
	mock.ExpectSet(imageKey(pngUpload), expected, 10*time.Minute).SetVal("OK")

	inner := &mockDetector{imageFn: func(ctx context.Context, up entity.Upload) (entity.Result, error) {
		return realImage, nil
	}}
	c := NewCachingDetector(rdb, 0, inner, "")

	got, err := c.PredictImage(context.Background(), pngUpload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != realImage {
		t.Errorf("expected %+v, got %+v", realImage, got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled mock expectations: %v", err)
	}
}

// TestCachingDetector_InnerErrorNotCached はエラーがキャッシュされず伝播されることを検証します。
func TestCachingDetector_InnerErrorNotCached(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	expectedErr := errors.New("inference error")
	mock.ExpectGet(imageKey(pngUpload)).RedisNil()

	inner := &mockDetector{imageFn: func(ctx context.Context, up entity.Upload) (entity.Result, error) {
		return entity.Result{}, expectedErr
	}}
	c := NewCachingDetector(rdb, 0, inner, "")

	_, err := c.PredictImage(context.Background(), pngUpload)
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled mock expectations: %v", err)
	}
}

// TestCachingDetector_CorruptedCache は破損したキャッシュを削除してモデルにフォールバックすることを検証します。
func TestCachingDetector_CorruptedCache(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	expected, _ := json.Marshal(realImage)
	mock.ExpectGet(imageKey(pngUpload)).SetVal("invalid json")
	mock.ExpectDel(imageKey(pngUpload)).SetVal(1)
	mock.ExpectSet(imageKey(pngUpload), expected, 10*time.Minute).SetVal("OK")

	inner := &mockDetector{imageFn: func(ctx context.Context, up entity.Upload) (entity.Result, error) {
		return realImage, nil
	}}
	c := NewCachingDetector(rdb, 0, inner, "")

	if _, err := c.PredictImage(context.Background(), pngUpload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled mock expectations: %v", err)
	}
}

// TestCachingDetector_BypassesRejectedUploads はContent-Type不一致や空ファイルでRedisに触れないことを検証します。
func TestCachingDetector_BypassesRejectedUploads(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		up   entity.Upload
	}{
		{name: "wrong content type", up: entity.Upload{ContentType: "text/plain", Data: []byte("png-bytes")}},
		{name: "empty payload", up: entity.Upload{ContentType: "image/png"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rdb, mock := redismock.NewClientMock()
			defer func() { _ = rdb.Close() }()

			inner := &mockDetector{}
			c := NewCachingDetector(rdb, 0, inner, "")

			_, _ = c.PredictImage(context.Background(), tt.up)

			if inner.calls != 1 {
				t.Errorf("expected inner detector to validate the upload, got %d calls", inner.calls)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unexpected redis traffic: %v", err)
			}
		})
	}
}

// TestCachingDetector_AudioUnavailable は音声モデル未ロード時にキャッシュを使わないことを検証します。
func TestCachingDetector_AudioUnavailable(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	c := NewCachingDetector(rdb, 0, &mockDetector{audio: false}, "")

	got, err := c.PredictAudio(context.Background(), entity.Upload{ContentType: "audio/wav", Data: []byte("RIFF")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != entity.Unavailable() {
		t.Errorf("expected placeholder, got %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected redis traffic: %v", err)
	}
}

// TestCachingDetector_AudioCacheMiss は音声結果がaudio名前空間に保存されることを検証します。
func TestCachingDetector_AudioCacheMiss(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	up := entity.Upload{ContentType: "audio/wav", Data: []byte("RIFF....WAVE")}
	res := entity.Result{Verdict: entity.VerdictFake, Confidence: 87, Status: entity.StatusWarning}
	key := "voice:audio:" + usecase.Digest(up.Data)
	expected, _ := json.Marshal(res)

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, expected, time.Minute).SetVal("OK")

	inner := &mockDetector{audio: true, audioFn: func(ctx context.Context, up entity.Upload) (entity.Result, error) {
		return res, nil
	}}
	c := NewCachingDetector(rdb, time.Minute, inner, "voice")

	got, err := c.PredictAudio(context.Background(), up)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != res {
		t.Errorf("expected %+v, got %+v", res, got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled mock expectations: %v", err)
	}
}

// TestCachingDetector_Purge は名前空間配下のキーがSCANとDELで削除されることを検証します。
func TestCachingDetector_Purge(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	mock.ExpectScan(0, "predictions:*", 200).SetVal([]string{"predictions:image:a", "predictions:audio:b"}, 0)
	mock.ExpectDel("predictions:image:a", "predictions:audio:b").SetVal(2)

	c := NewCachingDetector(rdb, 0, &mockDetector{}, "")
	if err := c.Purge(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled mock expectations: %v", err)
	}
}
