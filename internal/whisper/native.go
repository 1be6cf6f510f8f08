//go:build whisper_cpp

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fmueller/whisperjson/internal/audio"
	whisperpkg "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"go.uber.org/zap"
)

func NativeAvailable() bool { return true }

// NativeEngine runs whisper.cpp in-process through its Go bindings. It reads
// 16 kHz WAV input only and has no VAD or device selection.
type NativeEngine struct {
	Logger *zap.Logger
}

func newNativeEngine(logger *zap.Logger) (Engine, error) {
	return &NativeEngine{Logger: logger}, nil
}

func (e *NativeEngine) Transcribe(ctx context.Context, req TranscriptionRequest) (Transcription, error) {
	samples, rate, err := audio.DecodeMono(req.AudioPath)
	if err != nil {
		return Transcription{}, err
	}
	if rate != engineSampleRate {
		return Transcription{}, fmt.Errorf("native engine requires %d Hz audio, got %d Hz", engineSampleRate, rate)
	}

	if req.VAD != nil {
		e.Logger.Debug("vad filtering is not available on the native engine; transcribing full audio")
	}
	if req.Device == DeviceCUDA {
		e.Logger.Debug("device selection is not available on the native engine")
	}

	model, err := whisperpkg.New(req.ModelPath)
	if err != nil {
		return Transcription{}, fmt.Errorf("load model: %w", err)
	}
	defer model.Close()

	wctx, err := model.NewContext()
	if err != nil {
		return Transcription{}, fmt.Errorf("create context: %w", err)
	}

	lang := normalizeLanguage(req.Language)
	if err := wctx.SetLanguage(lang); err != nil {
		return Transcription{}, fmt.Errorf("set language %q: %w", lang, err)
	}
	if req.Threads > 0 {
		wctx.SetThreads(uint(req.Threads))
	}
	if req.BeamSize > 0 {
		wctx.SetBeamSize(req.BeamSize)
	}

	if err := ctx.Err(); err != nil {
		return Transcription{}, err
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return Transcription{}, fmt.Errorf("process audio: %w", err)
	}

	var segments []Segment
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Transcription{}, fmt.Errorf("read segment: %w", err)
		}
		if isBlankSegment(seg.Text) {
			continue
		}
		segments = append(segments, Segment{
			ID:    len(segments),
			Start: seg.Start.Seconds(),
			End:   seg.End.Seconds(),
			Text:  seg.Text,
		})
	}

	result := Transcription{
		Segments: segments,
		Language: lang,
		Duration: time.Duration(len(samples)) * time.Second / engineSampleRate,
	}
	if lang == "auto" {
		// The bindings expose the detected code but not its probability.
		result.Language = wctx.DetectedLanguage()
	} else {
		result.LanguageProbability = 1
	}

	return result, nil
}
