package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseChecksumByFilename(t *testing.T) {
	t.Parallel()

	content := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa  foo.tar.gz\n" +
		"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb  checksums.txt\n")

	parsed, err := ParseChecksum(content, "foo.tar.gz")
	require.NoError(t, err)
	require.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", parsed)
}

func TestParseChecksumFallsBackToFirstDigest(t *testing.T) {
	t.Parallel()

	parsed, err := ParseChecksum([]byte("SHA256: CCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC\n"), "ggml-base.bin")
	require.NoError(t, err)
	require.Equal(t, "cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc", parsed)

	_, err = ParseChecksum([]byte("nothing here"), "ggml-base.bin")
	require.Error(t, err)
}

func TestFetchModelWithChecksumURL(t *testing.T) {
	t.Parallel()

	payload := []byte("hello-world")
	sum := sha256.Sum256(payload)
	sumHex := hex.EncodeToString(sum[:])

	destination := filepath.Join(t.TempDir(), "artifact.tar.gz")
	checksumBody := fmt.Sprintf("%s  %s\n", sumHex, filepath.Base(destination))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/artifact":
			_, _ = w.Write(payload)
		case "/checksums.txt":
			_, _ = w.Write([]byte(checksumBody))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	err := FetchModel(context.Background(), Request{
		URL:         server.URL + "/artifact",
		Destination: destination,
		ChecksumURL: server.URL + "/checksums.txt",
		NoProgress:  true,
		Attempts:    1,
	})
	require.NoError(t, err)

	onDisk, err := os.ReadFile(destination)
	require.NoError(t, err)
	require.Equal(t, payload, onDisk)
}

func TestResolveExpectedChecksum(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa  model.bin\n"))
	}))
	defer server.Close()

	checksum, err := ResolveExpectedChecksum(context.Background(), server.URL, "model.bin", nil)
	require.NoError(t, err)
	require.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", checksum)
}

func TestFetchModelRejectsChecksumMismatch(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte("corrupted"))
	}))
	defer server.Close()

	destination := filepath.Join(t.TempDir(), "ggml-base.bin")
	err := FetchModel(context.Background(), Request{
		Model:       "base",
		URL:         server.URL + "/ggml-base.bin",
		Destination: destination,
		SHA256:      "60ed5bc3dd14eea856493d334349b405782ddcaf0028d4b5df4088345fba2efe",
		NoProgress:  true,
		Attempts:    2,
		Backoff:     time.Millisecond,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "checksum mismatch for base")
	require.EqualValues(t, 2, requests.Load())

	_, statErr := os.Stat(destination)
	require.ErrorIs(t, statErr, os.ErrNotExist)
	_, statErr = os.Stat(destination + ".part")
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestFetchModelWithoutChecksumAcceptsPayload(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "whisperjson/1" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("vad-weights"))
	}))
	defer server.Close()

	destination := filepath.Join(t.TempDir(), "nested", "ggml-silero.bin")
	err := FetchModel(context.Background(), Request{
		URL:         server.URL,
		Destination: destination,
		NoProgress:  true,
		Attempts:    1,
	})
	require.NoError(t, err)

	onDisk, err := os.ReadFile(destination)
	require.NoError(t, err)
	require.Equal(t, "vad-weights", string(onDisk))
}

func TestFetchModelStopsRetryingWhenCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		cancel()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	err := FetchModel(ctx, Request{
		URL:         server.URL,
		Destination: filepath.Join(t.TempDir(), "model.bin"),
		NoProgress:  true,
		Attempts:    3,
	})
	require.Error(t, err)
	require.EqualValues(t, 1, requests.Load())
}

func TestFetchModelValidatesOptions(t *testing.T) {
	t.Parallel()

	require.EqualError(t, FetchModel(context.Background(), Request{}), "download URL is required")
	require.EqualError(t, FetchModel(context.Background(), Request{URL: "http://example.invalid"}), "destination path is required")
}

func TestFetchModelDoesNotRetryMissingModel(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	err := FetchModel(context.Background(), Request{
		Model:       "large-v3",
		URL:         server.URL + "/ggml-large-v3-q8_0.bin",
		Destination: filepath.Join(t.TempDir(), "ggml-large-v3-q8_0.bin"),
		NoProgress:  true,
		Attempts:    3,
		Backoff:     time.Millisecond,
	})
	require.ErrorIs(t, err, ErrModelNotPublished)
	require.EqualValues(t, 1, requests.Load())
}

func TestFetchModelRetriesTransientFailuresWithModelInLogs(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("weights"))
	}))
	defer server.Close()

	core, logs := observer.New(zap.DebugLevel)
	destination := filepath.Join(t.TempDir(), "ggml-tiny.bin")
	err := FetchModel(context.Background(), Request{
		Model:       "tiny",
		URL:         server.URL,
		Destination: destination,
		NoProgress:  true,
		Backoff:     time.Millisecond,
		Logger:      zap.New(core),
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, requests.Load())

	retries := logs.FilterMessage("retrying model download").All()
	require.Len(t, retries, 1)
	require.Equal(t, "tiny", retries[0].ContextMap()["model"])
	require.EqualValues(t, 2, retries[0].ContextMap()["attempt"])
	require.Contains(t, retries[0].ContextMap()["error"], "unexpected status code 502 for tiny")
}
