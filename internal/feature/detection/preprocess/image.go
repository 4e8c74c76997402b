// Package preprocess はモデル入力の前処理（画像テンソル化・音声デコード・リサンプリング）を提供します。
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultImageSize は学習時の入力解像度（正方形）です。
	DefaultImageSize = 224
)

// ImageNetの平均・標準偏差（学習時の正規化定数）
var (
	DefaultMean = [3]float32{0.485, 0.456, 0.406}
	DefaultStd  = [3]float32{0.229, 0.224, 0.225}
)

// ImageTransform は画像前処理のパラメータです。
type ImageTransform struct {
	Size int
	Mean [3]float32
	Std  [3]float32
}

// DefaultImageTransform は学習時と同じ前処理パラメータを返します。
func DefaultImageTransform() ImageTransform {
	return ImageTransform{Size: DefaultImageSize, Mean: DefaultMean, Std: DefaultStd}
}

// ImageTensor は画像バイト列をデコードし、リサイズ・正規化したNCHW(1×3×Size×Size)のfloat32配列を返します。
func ImageTensor(data []byte, t ImageTransform) ([]float32, error) {
	if t.Size <= 0 {
		t.Size = DefaultImageSize
	}
	for c := 0; c < 3; c++ {
		if t.Std[c] == 0 {
			return nil, fmt.Errorf("std for channel %d is zero", c)
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	size := uint(t.Size)
	resized := resize.Resize(size, size, img, resize.Bilinear)

	bounds := resized.Bounds()
	plane := t.Size * t.Size
	out := make([]float32, 3*plane)

	for y := 0; y < t.Size; y++ {
		for x := 0; x < t.Size; x++ {
			// アルファは捨てて非乗算のRGB値を使う
			px := color.NRGBAModel.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			i := y*t.Size + x
			out[i] = (float32(px.R)/255.0 - t.Mean[0]) / t.Std[0]
			out[plane+i] = (float32(px.G)/255.0 - t.Mean[1]) / t.Std[1]
			out[2*plane+i] = (float32(px.B)/255.0 - t.Mean[2]) / t.Std[2]
		}
	}

	return out, nil
}
