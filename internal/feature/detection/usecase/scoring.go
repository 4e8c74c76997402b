package usecase

import (
	"encoding/hex"
	"math"
	"strings"

	"golang.org/x/crypto/blake2b"

	"deepfake_backend/internal/feature/detection/domain/entity"
)

// Softmax はロジットを確率分布に変換します。
func Softmax(logits []float32) []float64 {
	if len(logits) == 0 {
		return nil
	}
	maxLogit := math.Inf(-1)
	for _, l := range logits {
		maxLogit = math.Max(maxLogit, float64(l))
	}

	out := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(float64(l) - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// ArgMax は最大値のインデックスと値を返します。同値の場合は小さいインデックスを優先します。
func ArgMax(values []float64) (int, float64) {
	idx := 0
	best := math.Inf(-1)
	for i, v := range values {
		if v > best {
			idx, best = i, v
		}
	}
	return idx, best
}

// RoundPercent は確率をパーセントに変換し、小数第2位で丸めます。
func RoundPercent(p float64) float64 {
	v := math.Round(p*100*100) / 100
	return math.Min(100, math.Max(0, v))
}

// VerdictFromLabel は音声パイプラインのラベルを判定に変換します。
func VerdictFromLabel(label string) entity.Verdict {
	if strings.Contains(strings.ToLower(label), "real") {
		return entity.VerdictReal
	}
	return entity.VerdictFake
}

// Digest はペイロードのblake2b-256ダイジェストを16進文字列で返します。
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
