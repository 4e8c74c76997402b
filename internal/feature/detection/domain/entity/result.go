// Package entity はdetectionフィーチャーのドメインモデルを定義します。
package entity

// Kind は判定対象メディアの種類です。
type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// Verdict は判定結果の二値ラベルです。
type Verdict int

const (
	VerdictFake Verdict = iota
	VerdictReal
	// VerdictUnavailable は音声モデル未ロード時のプレースホルダーです。
	VerdictUnavailable
)

// Label はレスポンスに載せる表示用文字列を返します。
func (v Verdict) Label() string {
	switch v {
	case VerdictReal:
		return "REAL"
	case VerdictFake:
		return "FAKE (Deepfake Detected)"
	default:
		return "Analysis Unavailable"
	}
}

// Status は判定結果の表示ステータスです。
type Status string

const (
	StatusVerified Status = "verified"
	StatusWarning  Status = "warning"
	StatusError    Status = "error"
)

// StatusOf は判定に対応するステータスを返します。
func StatusOf(v Verdict) Status {
	switch v {
	case VerdictReal:
		return StatusVerified
	case VerdictFake:
		return StatusWarning
	default:
		return StatusError
	}
}

// Upload はアップロードされたファイルを表します。
type Upload struct {
	Filename    string // 元のファイル名
	ContentType string // 申告されたMIMEタイプ
	Data        []byte // ファイル本体
}

// Result は1リクエスト分の判定結果です。
type Result struct {
	Verdict    Verdict
	Confidence float64 // 0〜100、小数第2位で丸め済み
	Status     Status
}

// Unavailable は音声モデル未ロード時の固定結果です。
func Unavailable() Result {
	return Result{Verdict: VerdictUnavailable, Confidence: 0, Status: StatusError}
}

// LabelScore はパイプラインが返すラベルとスコアの組です。
type LabelScore struct {
	Label string
	Score float32
}
