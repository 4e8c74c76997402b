package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"deepfake_backend/internal/api"
	"deepfake_backend/internal/feature/detection/domain/entity"
	"deepfake_backend/internal/feature/detection/transport/handler"
)

type mockHistoryUsecase struct {
	RecentFunc func(ctx context.Context, limit int) ([]entity.DetectionRecord, error)
	gotLimit   int
}

func (m *mockHistoryUsecase) Recent(ctx context.Context, limit int) ([]entity.DetectionRecord, error) {
	m.gotLimit = limit
	return m.RecentFunc(ctx, limit)
}

func TestHistoryHandler_List(t *testing.T) {
	gin.SetMode(gin.TestMode)
	created := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name           string
		query          string
		recentFunc     func(ctx context.Context, limit int) ([]entity.DetectionRecord, error)
		expectedStatus int
		expectedLimit  int
	}{
		{
			name:  "default limit is delegated to usecase",
			query: "",
			recentFunc: func(ctx context.Context, limit int) ([]entity.DetectionRecord, error) {
				return []entity.DetectionRecord{{
					ID: "rec-1", Kind: entity.KindAudio, Filename: "voice.wav", ContentType: "audio/wav",
					SizeBytes: 42, Prediction: "REAL", Confidence: 99.12, Status: entity.StatusVerified, CreatedAt: created,
				}}, nil
			},
			expectedStatus: http.StatusOK,
			expectedLimit:  0,
		},
		{
			name:  "explicit limit",
			query: "?limit=5",
			recentFunc: func(ctx context.Context, limit int) ([]entity.DetectionRecord, error) {
				return nil, nil
			},
			expectedStatus: http.StatusOK,
			expectedLimit:  5,
		},
		{
			name:           "invalid limit",
			query:          "?limit=abc",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:  "store error",
			query: "?limit=1",
			recentFunc: func(ctx context.Context, limit int) ([]entity.DetectionRecord, error) {
				return nil, errors.New("db down")
			},
			expectedStatus: http.StatusInternalServerError,
			expectedLimit:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockHistoryUsecase{RecentFunc: tt.recentFunc}
			r := gin.New()
			r.GET("/v1/history", handler.NewHistoryHandler(mock).List)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/history"+tt.query, nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.recentFunc != nil {
				assert.Equal(t, tt.expectedLimit, mock.gotLimit)
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}
			records := decode[[]api.DetectionRecordResponse](t, w)
			if tt.query == "" {
				if assert.Len(t, records, 1) {
					assert.Equal(t, "rec-1", records[0].ID)
					assert.Equal(t, "audio", records[0].Kind)
					assert.True(t, created.Equal(records[0].CreatedAt))
				}
			} else {
				assert.NotNil(t, records)
				assert.Empty(t, records)
			}
		})
	}
}
