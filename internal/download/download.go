package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/term"
)

const (
	defaultAttempts = 3
	userAgent       = "whisperjson/1"
)

var (
	checksumPattern = regexp.MustCompile(`(?i)\b([a-f0-9]{64})\b`)

	// ErrModelNotPublished means the model host answered 404; retrying cannot help.
	ErrModelNotPublished = errors.New("model file is not published at the configured URL")
)

// Request describes one model file to place into the local model directory.
type Request struct {
	Model       string
	URL         string
	Destination string
	SHA256      string
	ChecksumURL string
	Attempts    int
	NoProgress  bool
	// Progress receives the byte progress bar; it is only drawn on a terminal.
	Progress io.Writer
	Client   *http.Client
	Logger   *zap.Logger
	// Backoff is the delay unit between attempts; attempt n waits n*Backoff.
	Backoff time.Duration
}

// FetchModel downloads req.URL to req.Destination through a ".part" file,
// verifying the sha256 when one is known. Transient failures are retried.
func FetchModel(ctx context.Context, req Request) error {
	if req.URL == "" {
		return errors.New("download URL is required")
	}
	if req.Destination == "" {
		return errors.New("destination path is required")
	}

	f := newFetcher(req)

	expected, err := f.expectedChecksum(ctx)
	if err != nil {
		return fmt.Errorf("fetch checksum for %s: %w", f.req.Model, err)
	}

	if err := os.MkdirAll(filepath.Dir(req.Destination), 0o755); err != nil {
		return fmt.Errorf("create model directory: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= f.req.Attempts; attempt++ {
		if attempt > 1 {
			f.log.Warn("retrying model download",
				zap.Int("attempt", attempt),
				zap.Int("max", f.req.Attempts),
				zap.Error(lastErr),
			)
			if err := f.wait(ctx, attempt); err != nil {
				return lastErr
			}
		}

		lastErr = f.fetchOnce(ctx, expected)
		if lastErr == nil {
			f.log.Debug("model download complete", zap.String("destination", req.Destination))
			return nil
		}
		if ctx.Err() != nil || errors.Is(lastErr, ErrModelNotPublished) {
			return lastErr
		}
	}

	return lastErr
}

type fetcher struct {
	req Request
	log *zap.Logger
}

func newFetcher(req Request) *fetcher {
	if req.Attempts <= 0 {
		req.Attempts = defaultAttempts
	}
	if req.Client == nil {
		req.Client = &http.Client{Timeout: 10 * time.Minute}
	}
	if req.Logger == nil {
		req.Logger = zap.NewNop()
	}
	if req.Model == "" {
		req.Model = filepath.Base(req.Destination)
	}
	if req.Progress == nil {
		req.Progress = os.Stderr
	}
	if req.Backoff <= 0 {
		req.Backoff = 300 * time.Millisecond
	}

	return &fetcher{
		req: req,
		log: req.Logger.With(zap.String("model", req.Model), zap.String("url", req.URL)),
	}
}

func (f *fetcher) wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(time.Duration(attempt) * f.req.Backoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (f *fetcher) expectedChecksum(ctx context.Context) (string, error) {
	if pinned := strings.ToLower(strings.TrimSpace(f.req.SHA256)); pinned != "" {
		return pinned, nil
	}
	if f.req.ChecksumURL == "" {
		f.log.Debug("no checksum known for model; download will not be verified")
		return "", nil
	}
	return ResolveExpectedChecksum(ctx, f.req.ChecksumURL, filepath.Base(f.req.Destination), f.req.Client)
}

func (f *fetcher) fetchOnce(ctx context.Context, expected string) error {
	partPath := f.req.Destination + ".part"
	_ = os.Remove(partPath)

	part, err := os.Create(partPath)
	if err != nil {
		return fmt.Errorf("create partial model file: %w", err)
	}

	keep := false
	defer func() {
		_ = part.Close()
		if !keep {
			_ = os.Remove(partPath)
		}
	}()

	resp, err := f.get(ctx, f.req.URL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	hash := sha256.New()
	sink := io.MultiWriter(part, hash)
	bar := f.progressBar(resp.ContentLength)
	if bar != nil {
		sink = io.MultiWriter(part, hash, bar)
	}

	if _, err := io.Copy(sink, resp.Body); err != nil {
		return fmt.Errorf("download %s: %w", f.req.Model, err)
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if actual := hex.EncodeToString(hash.Sum(nil)); expected != "" && actual != expected {
		return fmt.Errorf("checksum mismatch for %s: expected %s, got %s", f.req.Model, expected, actual)
	}

	if err := part.Sync(); err != nil {
		return fmt.Errorf("sync partial model file: %w", err)
	}
	if err := part.Close(); err != nil {
		return fmt.Errorf("close partial model file: %w", err)
	}
	if err := os.Rename(partPath, f.req.Destination); err != nil {
		return fmt.Errorf("move model into place: %w", err)
	}

	keep = true
	return nil
}

func (f *fetcher) get(ctx context.Context, url string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := f.req.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", f.req.Model, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp, nil
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrModelNotPublished, url)
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, f.req.Model)
	}
}

func (f *fetcher) progressBar(size int64) *progressbar.ProgressBar {
	if f.req.NoProgress || size <= 0 || !isTerminal(f.req.Progress) {
		return nil
	}

	return progressbar.NewOptions64(
		size,
		progressbar.OptionSetDescription(f.req.Model),
		progressbar.OptionSetWidth(20),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetWriter(f.req.Progress),
		progressbar.OptionClearOnFinish(),
	)
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

func ResolveExpectedChecksum(ctx context.Context, checksumURL, fileName string, client *http.Client) (string, error) {
	if strings.TrimSpace(checksumURL) == "" {
		return "", errors.New("checksum URL is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checksumURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return ParseChecksum(content, fileName)
}

// ParseChecksum picks the sha256 on the line naming fileName, falling back
// to the first digest in content.
func ParseChecksum(content []byte, fileName string) (string, error) {
	lines := strings.Split(string(content), "\n")

	if fileName != "" {
		for _, line := range lines {
			if !strings.Contains(line, fileName) {
				continue
			}
			if checksum := checksumFromLine(line); checksum != "" {
				return checksum, nil
			}
		}
	}

	for _, line := range lines {
		if checksum := checksumFromLine(line); checksum != "" {
			return checksum, nil
		}
	}

	return "", errors.New("sha256 checksum not found")
}

func checksumFromLine(line string) string {
	match := checksumPattern.FindStringSubmatch(line)
	if len(match) < 2 {
		return ""
	}
	return strings.ToLower(match[1])
}
