package whisper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJoinedTextTrimsAndJoinsSegments(t *testing.T) {
	t.Parallel()

	tr := Transcription{Segments: []Segment{
		{Text: "  Hello there.\n"},
		{Text: "   "},
		{Text: " General Kenobi. "},
	}}

	require.Equal(t, "Hello there. General Kenobi.", tr.JoinedText())
}

func TestJoinedTextEmpty(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", Transcription{}.JoinedText())
}

func TestRawTextKeepsEngineSpacing(t *testing.T) {
	t.Parallel()

	tr := Transcription{Segments: []Segment{{Text: " Hello"}, {Text: " world."}, {Text: "!"}}}
	require.Equal(t, "Hello world.!", tr.RawText())
}

func TestLastSegmentEnd(t *testing.T) {
	t.Parallel()

	require.Zero(t, Transcription{}.LastSegmentEnd())
	tr := Transcription{Segments: []Segment{{End: 1}, {End: 2.5}}}
	require.Equal(t, 2500*time.Millisecond, tr.LastSegmentEnd())
}

func TestIsBlankSegment(t *testing.T) {
	t.Parallel()

	require.True(t, isBlankSegment(""))
	require.True(t, isBlankSegment(" [blank_audio] "))
	require.False(t, isBlankSegment("hello"))
}

func TestNormalizeLanguage(t *testing.T) {
	t.Parallel()

	require.Equal(t, "auto", normalizeLanguage(""))
	require.Equal(t, "auto", normalizeLanguage("  "))
	require.Equal(t, "en", normalizeLanguage(" EN "))
}
