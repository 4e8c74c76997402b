package preprocess

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"

	"deepfake_backend/internal/feature/detection/domain"
)

// TargetSampleRate は音声パイプラインが期待するサンプリングレートです。
const TargetSampleRate = 16000

// WAVのfmtチャンクのフォーマットコード
const (
	wavFormatPCM        = 1
	wavFormatIEEEFloat  = 3
	wavFormatExtensible = 0xFFFE
)

// Waveform はモノラルに変換済みの波形です。
type Waveform struct {
	Samples    []float32 // [-1, 1] に正規化済み
	SampleRate int
}

// DecodeAudio はWAV/MP3/FLACのバイト列をデコードし、モノラル波形を返します。
func DecodeAudio(data []byte) (Waveform, error) {
	var (
		w   Waveform
		err error
	)
	switch sniffAudio(data) {
	case "wav":
		w, err = decodeWAV(data)
	case "flac":
		w, err = decodeFLAC(data)
	case "mp3":
		w, err = decodeMP3(data)
	default:
		return Waveform{}, domain.ErrUnsupportedAudioFormat
	}
	if err != nil {
		return Waveform{}, err
	}
	if len(w.Samples) == 0 {
		return Waveform{}, errors.New("audio contains no samples")
	}
	return w, nil
}

// LoadAudio はデコードとリサンプリングをまとめて行います。
func LoadAudio(data []byte, sampleRate int) ([]float32, error) {
	w, err := DecodeAudio(data)
	if err != nil {
		return nil, err
	}
	return Resample(w.Samples, w.SampleRate, sampleRate), nil
}

func sniffAudio(data []byte) string {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return "wav"
	case len(data) >= 4 && string(data[0:4]) == "fLaC":
		return "flac"
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return "mp3"
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	}
	return ""
}

func decodeWAV(data []byte) (Waveform, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return Waveform{}, errors.New("invalid wav file")
	}
	// go-audio/wavはWAVE_FORMAT_EXTENSIBLEのSubFormatを公開しないので自前で読む
	format, err := wavSampleFormat(data)
	if err != nil {
		return Waveform{}, fmt.Errorf("decode wav: %w", err)
	}
	bitDepth := int(d.BitDepth)
	switch {
	case format == wavFormatPCM && (bitDepth == 8 || bitDepth == 16 || bitDepth == 24 || bitDepth == 32):
	case format == wavFormatIEEEFloat && bitDepth == 32:
	default:
		return Waveform{}, fmt.Errorf("%w: wav format %#x with %d-bit samples", domain.ErrUnsupportedAudioFormat, format, bitDepth)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Waveform{}, fmt.Errorf("decode wav: %w", err)
	}
	channels := buf.Format.NumChannels
	if channels <= 0 {
		return Waveform{}, errors.New("wav has no channels")
	}

	toFloat := func(v int) float32 {
		switch {
		case format == wavFormatIEEEFloat:
			return math.Float32frombits(uint32(v))
		case bitDepth == 8:
			// 8bit PCMは符号なし
			return float32(v-128) / 128.0
		default:
			return float32(v) / float32(int64(1)<<(bitDepth-1))
		}
	}

	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += toFloat(buf.Data[i*channels+ch])
		}
		samples[i] = sum / float32(channels)
	}
	return Waveform{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}

// wavSampleFormat はfmtチャンクの実効フォーマットコードを返します。
// WAVE_FORMAT_EXTENSIBLEの場合はSubFormat GUIDの先頭2バイトがコードです。
func wavSampleFormat(data []byte) (uint16, error) {
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := data[off+8:]
		if id != "fmt " {
			off += 8 + size + size&1
			continue
		}
		if size < 16 || len(body) < size {
			return 0, errors.New("wav fmt chunk is truncated")
		}
		format := binary.LittleEndian.Uint16(body[0:2])
		if format != wavFormatExtensible {
			return format, nil
		}
		if size < 40 {
			return 0, errors.New("wav extensible fmt chunk is truncated")
		}
		return binary.LittleEndian.Uint16(body[24:26]), nil
	}
	return 0, errors.New("wav has no fmt chunk")
}

func decodeMP3(data []byte) (Waveform, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Waveform{}, fmt.Errorf("decode mp3: %w", err)
	}
	// go-mp3は常に16bitリトルエンディアンのステレオを出力する
	pcm, err := io.ReadAll(d)
	if err != nil {
		return Waveform{}, fmt.Errorf("decode mp3: %w", err)
	}
	frames := len(pcm) / 4
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		l := int16(uint16(pcm[4*i]) | uint16(pcm[4*i+1])<<8)
		r := int16(uint16(pcm[4*i+2]) | uint16(pcm[4*i+3])<<8)
		samples[i] = (float32(l) + float32(r)) / 2 / 32768.0
	}
	return Waveform{Samples: samples, SampleRate: d.SampleRate()}, nil
}

func decodeFLAC(data []byte) (Waveform, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return Waveform{}, fmt.Errorf("decode flac: %w", err)
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	if channels == 0 {
		return Waveform{}, errors.New("flac has no channels")
	}
	scale := float32(int64(1) << (stream.Info.BitsPerSample - 1))

	var samples []float32
	for {
		f, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Waveform{}, fmt.Errorf("decode flac frame: %w", err)
		}
		n := f.Subframes[0].NSamples
		for i := 0; i < n; i++ {
			var sum float32
			for ch := 0; ch < channels; ch++ {
				sum += float32(f.Subframes[ch].Samples[i]) / scale
			}
			samples = append(samples, sum/float32(channels))
		}
	}
	return Waveform{Samples: samples, SampleRate: int(stream.Info.SampleRate)}, nil
}
