package whisper

import (
	"context"
	"strings"
	"time"
)

const blankAudioToken = "[BLANK_AUDIO]"

type TranscriptionRequest struct {
	AudioPath string
	ModelPath string
	// Language is an ISO code; empty or "auto" lets the engine detect it.
	Language  string
	BeamSize  int
	Threads   int
	Device    Device
	Precision Precision
	VAD       *VADOptions
}

type VADOptions struct {
	ModelPath  string
	MinSilence time.Duration
}

type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type Transcription struct {
	Segments            []Segment
	Language            string
	LanguageProbability float64
	Duration            time.Duration
}

type Engine interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (Transcription, error)
}

// JoinedText trims every segment and joins the non-empty ones with a single space.
func (t Transcription) JoinedText() string {
	parts := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// RawText concatenates segment texts as the engine produced them.
func (t Transcription) RawText() string {
	var b strings.Builder
	for _, seg := range t.Segments {
		b.WriteString(seg.Text)
	}
	return strings.TrimSpace(b.String())
}

func (t Transcription) LastSegmentEnd() time.Duration {
	if len(t.Segments) == 0 {
		return 0
	}
	return time.Duration(t.Segments[len(t.Segments)-1].End * float64(time.Second))
}

func isBlankSegment(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}
	return strings.EqualFold(trimmed, blankAudioToken)
}

func normalizeLanguage(lang string) string {
	trimmed := strings.ToLower(strings.TrimSpace(lang))
	if trimmed == "" {
		return "auto"
	}
	return trimmed
}
