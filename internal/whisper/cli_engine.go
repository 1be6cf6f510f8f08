package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/fmueller/whisperjson/internal/platform"
	"go.uber.org/zap"
)

const engineSampleRate = 16000

var ErrEngineNotFound = errors.New("whisper engine not found")

var (
	detectedLanguagePattern = regexp.MustCompile(`auto-detected language:\s*([A-Za-z-]+)\s*\(p\s*=\s*([0-9.]+)\)`)
	processingPattern       = regexp.MustCompile(`processing '.*' \((\d+) samples, ([0-9.]+) sec\)`)
)

// CLIEngine runs transcriptions through a whisper-cli executable.
type CLIEngine struct {
	Executable string
	Logger     *zap.Logger
}

func NewCLIEngine(override string, logger *zap.Logger) (*CLIEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if override = strings.TrimSpace(override); override != "" {
		if err := ensureExecutable(override); err != nil {
			return nil, fmt.Errorf("%w: configured engine path is not executable: %v", ErrEngineNotFound, err)
		}
		return &CLIEngine{Executable: override, Logger: logger}, nil
	}

	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve adapter executable path: %w", err)
	}

	exe, err := ResolveEnginePath(self, exec.LookPath)
	if err != nil {
		return nil, err
	}

	return &CLIEngine{Executable: exe, Logger: logger}, nil
}

func ResolveEnginePath(adapterExecutable string, lookPath func(string) (string, error)) (string, error) {
	for _, candidate := range EnginePathCandidates(adapterExecutable) {
		if err := ensureExecutable(candidate); err == nil {
			return candidate, nil
		}
	}

	if lookPath != nil {
		if found, err := lookPath(engineBinaryName()); err == nil {
			return found, nil
		}
	}

	return "", fmt.Errorf("%w: expected %s at ../libexec/whisper/ next to %s or on PATH", ErrEngineNotFound, engineBinaryName(), adapterExecutable)
}

func EnginePathCandidates(adapterExecutable string) []string {
	binDir := filepath.Dir(adapterExecutable)
	engineName := engineBinaryName()
	host := platform.CurrentRuntime()
	hostTarget := fmt.Sprintf("%s_%s", host.OS, host.Arch)

	return []string{
		filepath.Join(binDir, "..", "libexec", "whisper", engineName),
		filepath.Join(binDir, "libexec", "whisper", engineName),
		filepath.Join(binDir, "packaging", "whisper", hostTarget, engineName),
		filepath.Join(binDir, engineName),
	}
}

func (e *CLIEngine) Transcribe(ctx context.Context, req TranscriptionRequest) (Transcription, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return Transcription{}, errors.New("audio path is required")
	}
	if strings.TrimSpace(req.ModelPath) == "" {
		return Transcription{}, errors.New("model path is required")
	}

	if err := ensureExecutable(e.Executable); err != nil {
		return Transcription{}, fmt.Errorf("whisper engine missing or not executable: %w", err)
	}

	workDir, err := os.MkdirTemp("", "whisperjson-*")
	if err != nil {
		return Transcription{}, fmt.Errorf("create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	outBase := filepath.Join(workDir, "transcript")
	args, err := buildCLIArgs(req, outBase)
	if err != nil {
		return Transcription{}, err
	}

	cmd := exec.CommandContext(ctx, e.Executable, args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	e.log().Debug("running whisper engine", zap.String("engine", e.Executable), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		errText := strings.TrimSpace(stderr.String())
		if isMissingSharedLibraryError(errText) {
			return Transcription{}, fmt.Errorf("whisper engine at %s is missing required shared libraries (%s); rebuild whisper-cli with BUILD_SHARED_LIBS=OFF", e.Executable, errText)
		}
		if isIllegalInstructionError(errText) || isIllegalInstructionError(err.Error()) {
			return Transcription{}, errors.New("whisper engine crashed with an illegal CPU instruction; " +
				"your CPU may lack required instruction set extensions; " +
				"point --engine-path at a whisper-cli binary built for your CPU")
		}
		return Transcription{}, fmt.Errorf("whisper transcribe failed: %w (%s)", err, lastLine(errText))
	}

	content, err := os.ReadFile(outBase + ".json")
	if err != nil {
		return Transcription{}, fmt.Errorf("read whisper output: %w", err)
	}

	result, err := parseCLIOutput(content)
	if err != nil {
		return Transcription{}, err
	}

	report := parseDiagnostics(stderr.String())
	if result.Language == "" {
		result.Language = report.language
	}

	requested := normalizeLanguage(req.Language)
	switch {
	case report.hasProbability:
		result.LanguageProbability = report.probability
	case requested != "auto":
		result.LanguageProbability = 1
	}
	if result.Language == "" && requested != "auto" {
		result.Language = requested
	}
	result.Duration = report.duration

	return result, nil
}

func (e *CLIEngine) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func buildCLIArgs(req TranscriptionRequest, outBase string) ([]string, error) {
	args := []string{
		"-m", req.ModelPath,
		"-f", req.AudioPath,
		"-l", normalizeLanguage(req.Language),
		"-oj", "-of", outBase,
	}

	if req.BeamSize > 0 {
		args = append(args, "-bs", strconv.Itoa(req.BeamSize))
	}
	if req.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(req.Threads))
	}

	switch req.Device {
	case "", DeviceCUDA:
	case DeviceCPU:
		args = append(args, "-ng")
	default:
		return nil, fmt.Errorf("unsupported device %q", req.Device)
	}

	if req.Precision == PrecisionFloat32 {
		args = append(args, "-nfa")
	}

	if req.VAD != nil {
		if strings.TrimSpace(req.VAD.ModelPath) == "" {
			return nil, errors.New("vad model path is required when vad is enabled")
		}
		args = append(args,
			"--vad",
			"-vm", req.VAD.ModelPath,
			"-vsd", strconv.FormatInt(req.VAD.MinSilence.Milliseconds(), 10),
		)
	}

	return args, nil
}

type cliOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func parseCLIOutput(content []byte) (Transcription, error) {
	var out cliOutput
	if err := json.Unmarshal(content, &out); err != nil {
		return Transcription{}, fmt.Errorf("decode whisper output: %w", err)
	}

	segments := make([]Segment, 0, len(out.Transcription))
	for _, entry := range out.Transcription {
		if isBlankSegment(entry.Text) {
			continue
		}
		segments = append(segments, Segment{
			ID:    len(segments),
			Start: float64(entry.Offsets.From) / 1000,
			End:   float64(entry.Offsets.To) / 1000,
			Text:  entry.Text,
		})
	}

	return Transcription{
		Segments: segments,
		Language: strings.TrimSpace(out.Result.Language),
	}, nil
}

type diagnostics struct {
	language       string
	probability    float64
	hasProbability bool
	duration       time.Duration
}

func parseDiagnostics(stderr string) diagnostics {
	var report diagnostics

	if match := detectedLanguagePattern.FindStringSubmatch(stderr); len(match) == 3 {
		report.language = strings.ToLower(match[1])
		if p, err := strconv.ParseFloat(match[2], 64); err == nil {
			report.probability = p
			report.hasProbability = true
		}
	}

	if match := processingPattern.FindStringSubmatch(stderr); len(match) == 3 {
		if samples, err := strconv.ParseInt(match[1], 10, 64); err == nil && samples > 0 {
			report.duration = time.Duration(samples) * time.Second / engineSampleRate
		} else if secs, err := strconv.ParseFloat(match[2], 64); err == nil {
			report.duration = time.Duration(secs * float64(time.Second))
		}
	}

	return report
}

func lastLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.LastIndexByte(text, '\n'); idx >= 0 {
		return strings.TrimSpace(text[idx+1:])
	}
	return text
}

func engineBinaryName() string {
	if runtime.GOOS == "windows" {
		return "whisper-cli.exe"
	}
	return "whisper-cli"
}

func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

func isMissingSharedLibraryError(stderr string) bool {
	value := strings.ToLower(strings.TrimSpace(stderr))
	if value == "" {
		return false
	}

	patterns := []string{
		"error while loading shared libraries",
		"cannot open shared object file",
		"dyld: library not loaded",
		"image not found",
	}

	for _, pattern := range patterns {
		if strings.Contains(value, pattern) {
			return true
		}
	}

	return false
}

func isIllegalInstructionError(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "illegal instruction")
}
