package preprocess

import "math"

// resampleHalfTaps は窓付きsincカーネルの片側タップ数です。
const resampleHalfTaps = 16

// Resample はHann窓付きsinc補間で波形のサンプリングレートを変換します。
// 出力長は ceil(len(x) * to / from) です。from == to の場合はコピーを返します。
func Resample(x []float32, from, to int) []float32 {
	if from <= 0 || to <= 0 || from == to {
		out := make([]float32, len(x))
		copy(out, x)
		return out
	}
	if len(x) == 0 {
		return []float32{}
	}

	ratio := float64(to) / float64(from)
	n := (len(x)*to + from - 1) / from
	out := make([]float32, n)

	// ダウンサンプリング時はカットオフを下げ、カーネルを広げてエイリアシングを抑える
	cutoff := math.Min(1.0, ratio)
	halfWidth := float64(resampleHalfTaps) / cutoff

	for i := 0; i < n; i++ {
		t := float64(i) / ratio
		lo := int(math.Ceil(t - halfWidth))
		hi := int(math.Floor(t + halfWidth))
		if lo < 0 {
			lo = 0
		}
		if hi > len(x)-1 {
			hi = len(x) - 1
		}

		var acc, norm float64
		for k := lo; k <= hi; k++ {
			d := t - float64(k)
			w := cutoff * sinc(cutoff*d) * hann(d, halfWidth)
			acc += w * float64(x[k])
			norm += w
		}
		if norm != 0 {
			acc /= norm
		}
		out[i] = float32(acc)
	}
	return out
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

func hann(d, halfWidth float64) float64 {
	if math.Abs(d) >= halfWidth {
		return 0
	}
	return 0.5 * (1 + math.Cos(math.Pi*d/halfWidth))
}
