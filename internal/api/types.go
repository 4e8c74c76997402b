// Package api はHTTPレイヤーで共有するリクエスト/レスポンスDTOを定義します。
package api

import "time"

// ErrorResponse はエラー時の共通レスポンスです。
type ErrorResponse struct {
	Error string `json:"error"`
}

// PredictionResponse は /predict と /predict_audio のレスポンスです。
type PredictionResponse struct {
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status"`
}

// DetectionRecordResponse は判定履歴1件分のレスポンスです。
type DetectionRecordResponse struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Prediction  string    `json:"prediction"`
	Confidence  float64   `json:"confidence"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// HealthResponse は /healthz のレスポンスです。
type HealthResponse struct {
	Status     string `json:"status"`
	ImageModel bool   `json:"image_model"`
	AudioModel bool   `json:"audio_model"`
}
