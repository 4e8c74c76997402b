package entity

import "time"

// DetectionRecord は判定履歴として永続化される1件分の記録です。
type DetectionRecord struct {
	ID          string
	Kind        Kind
	Filename    string
	ContentType string
	SizeBytes   int64
	Digest      string // ペイロードのblake2b-256（16進）
	Prediction  string
	Confidence  float64
	Status      Status
	CreatedAt   time.Time
}
