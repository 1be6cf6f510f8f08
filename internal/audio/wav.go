package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	ErrInvalidWAV     = errors.New("invalid wav file")
	ErrUnsupportedWAV = errors.New("unsupported wav format")
)

type Info struct {
	Duration   time.Duration
	SampleRate int
	Channels   int
	BitDepth   int
}

// Probe reads the WAV header and data chunk size of path.
func Probe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Info{}, ErrInvalidWAV
	}
	if err := dec.FwdToPCM(); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}

	info := Info{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}

	frameSize := int64(info.Channels) * int64(info.BitDepth/8)
	if frameSize <= 0 || info.SampleRate <= 0 {
		return Info{}, ErrUnsupportedWAV
	}

	frames := dec.PCMLen() / frameSize
	info.Duration = time.Duration(frames) * time.Second / time.Duration(info.SampleRate)
	return info, nil
}

// DecodeMono decodes path into mono float32 samples in [-1, 1] and returns
// them with the file's sample rate.
func DecodeMono(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, ErrInvalidWAV
	}
	if dec.WavAudioFormat != 1 {
		return nil, 0, fmt.Errorf("%w: audio format %d", ErrUnsupportedWAV, dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	if buf == nil {
		return nil, 0, ErrInvalidWAV
	}

	return ToMonoFloat32(buf), int(dec.SampleRate), nil
}

func ToMonoFloat32(buf *goaudio.IntBuffer) []float32 {
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))
	if bitDepth == 8 {
		// 8-bit PCM is unsigned and centered on 128.
		scale = 128
	}

	out := make([]float32, len(buf.Data)/channels)
	for i := range out {
		var sum float32
		for c := 0; c < channels; c++ {
			v := buf.Data[i*channels+c]
			if bitDepth == 8 {
				v -= 128
			}
			sum += float32(v) / scale
		}
		out[i] = sum / float32(channels)
	}
	return out
}
