package cli

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fmueller/whisperjson/internal/config"
	"github.com/fmueller/whisperjson/internal/download"
	"github.com/fmueller/whisperjson/internal/whisper"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeEngine struct {
	mu       sync.Mutex
	result   whisper.Transcription
	err      error
	requests []whisper.TranscriptionRequest
}

func (f *fakeEngine) Transcribe(_ context.Context, req whisper.TranscriptionRequest) (whisper.Transcription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.result, f.err
}

func (f *fakeEngine) calls() []whisper.TranscriptionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]whisper.TranscriptionRequest(nil), f.requests...)
}

type testHarness struct {
	app       *appState
	stdout    *bytes.Buffer
	stderr    *bytes.Buffer
	logs      *observer.ObservedLogs
	engine    *fakeEngine
	modelDir  string
	downloads []download.Request
}

func newHarness(t *testing.T, engine *fakeEngine) *testHarness {
	t.Helper()

	core, logs := observer.New(zap.DebugLevel)
	h := &testHarness{
		stdout:   new(bytes.Buffer),
		stderr:   new(bytes.Buffer),
		logs:     logs,
		engine:   engine,
		modelDir: t.TempDir(),
	}

	app := newAppState()
	app.goos = "linux"
	app.out = h.stdout
	app.errOut = h.stderr
	app.logger = zap.New(core)
	app.engineFn = func(config.Config, *zap.Logger) (whisper.Engine, error) {
		if h.engine == nil {
			return nil, whisper.ErrEngineNotFound
		}
		return h.engine, nil
	}
	app.downloadFn = func(_ context.Context, req download.Request) error {
		h.downloads = append(h.downloads, req)
		if req.URL == "" {
			return errors.New("download URL is required")
		}
		return os.WriteFile(req.Destination, []byte("weights"), 0o644)
	}
	h.app = app
	return h
}

func (h *testHarness) run(newCmd func(*appState) *cobra.Command, args ...string) int {
	args = append(args, "--model-dir", h.modelDir, "--no-progress")
	return Run(newCmd(h.app), args)
}

func (h *testHarness) logMessages() []string {
	entries := h.logs.All()
	messages := make([]string, 0, len(entries))
	for _, entry := range entries {
		messages = append(messages, entry.Message)
	}
	return messages
}

func writeTestWAV(t *testing.T, samples []int16, sampleRate int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(path, makePCM16WAVForTest(samples, sampleRate, 1), 0o644))
	return path
}

func makePCM16WAVForTest(samples []int16, sampleRate int, channels int) []byte {
	bytesPerSample := 2
	dataSize := len(samples) * bytesPerSample
	fmtChunkSize := 16
	riffSize := 4 + (8 + fmtChunkSize) + (8 + dataSize)

	out := make([]byte, 12+8+fmtChunkSize+8+dataSize)
	off := 0

	copy(out[off:], []byte("RIFF"))
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(riffSize))
	off += 4
	copy(out[off:], []byte("WAVE"))
	off += 4

	copy(out[off:], []byte("fmt "))
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(fmtChunkSize))
	off += 4
	binary.LittleEndian.PutUint16(out[off:], 1)
	off += 2
	binary.LittleEndian.PutUint16(out[off:], uint16(channels))
	off += 2
	binary.LittleEndian.PutUint32(out[off:], uint32(sampleRate))
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(sampleRate*channels*bytesPerSample))
	off += 4
	binary.LittleEndian.PutUint16(out[off:], uint16(channels*bytesPerSample))
	off += 2
	binary.LittleEndian.PutUint16(out[off:], 16)
	off += 2

	copy(out[off:], []byte("data"))
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(dataSize))
	off += 4

	for _, s := range samples {
		binary.LittleEndian.PutUint16(out[off:], uint16(s))
		off += 2
	}

	return out
}
