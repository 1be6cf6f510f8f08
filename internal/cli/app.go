package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/fmueller/whisperjson/internal/config"
	"github.com/fmueller/whisperjson/internal/download"
	"github.com/fmueller/whisperjson/internal/logging"
	"github.com/fmueller/whisperjson/internal/platform"
	"github.com/fmueller/whisperjson/internal/whisper"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type appState struct {
	verbose    bool
	jsonLogs   bool
	noProgress bool

	cfg     config.Config
	logger  *zap.Logger
	goos    string
	out     io.Writer
	errOut  io.Writer
	streams *streams

	engineFn   func(cfg config.Config, logger *zap.Logger) (whisper.Engine, error)
	downloadFn func(ctx context.Context, req download.Request) error
}

func newAppState() *appState {
	return &appState{
		goos:   runtime.GOOS,
		out:    os.Stdout,
		errOut: os.Stderr,
	}
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	cmd.Flags().BoolVar(&app.jsonLogs, "json-logs", app.jsonLogs, "Write diagnostics on stderr as JSON")
}

func bindProgressFlag(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func bindModelStorageFlags(cmd *cobra.Command) {
	cmd.Flags().String("model-dir", "", "Directory where models are stored (env WHISPER_MODEL_DIR)")
	cmd.Flags().Bool("auto-download", true, "Automatically download missing models (env WHISPER_AUTO_DOWNLOAD)")
}

func bindEngineFlags(cmd *cobra.Command) {
	cmd.Flags().String("engine", config.DefaultEngine, "Transcription engine: auto|cli|native (env WHISPER_ENGINE)")
	cmd.Flags().String("engine-path", "", "Path to the whisper-cli executable (env WHISPER_ENGINE_PATH)")
}

// setup runs once before any result is written. utf8Guard enables the
// Windows stream wrapping. Configuration is loaded later by loadConfig so
// that invalid settings still end up as a JSON result.
func (a *appState) setup(cmd *cobra.Command, utf8Guard bool) error {
	if a.streams == nil {
		goos := a.goos
		if !utf8Guard {
			goos = ""
		}
		a.streams = configureStreams(goos, a.outWriter(), a.errWriter())
		a.out = a.streams.out
		a.errOut = a.streams.errOut
		cmd.SetOut(a.out)
		cmd.SetErr(a.errOut)
	}

	if a.logger == nil {
		logOpts := logging.Options{Verbose: a.verbose, JSON: a.jsonLogs}
		if a.streams.wrapped {
			logOpts.Output = a.errOut
		}
		logger, err := logging.New(logOpts)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		a.logger = logger
	}

	return nil
}

func (a *appState) loadConfig(flags *pflag.FlagSet, opts config.Options) error {
	cfg, err := config.Load(flags, opts)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log().Debug("configuration loaded",
		zap.String("model", cfg.Model),
		zap.String("engine", cfg.Engine),
		zap.Bool("auto_download", cfg.AutoDownload),
	)
	return nil
}

func (a *appState) finish() {
	if a.streams == nil {
		return
	}
	if err := a.streams.flush(); err != nil {
		a.log().Debug("flush output streams", zap.Error(err))
	}
}

func (a *appState) newEngine() (whisper.Engine, error) {
	if a.engineFn != nil {
		return a.engineFn(a.cfg, a.log())
	}
	return whisper.NewEngine(whisper.EngineOptions{
		Backend:        a.cfg.Engine,
		ExecutablePath: a.cfg.EnginePath,
		Logger:         a.log(),
	})
}

func (a *appState) ensureModel(ctx context.Context, modelRef string, precision whisper.Precision) (whisper.ResolvedModel, error) {
	modelDir, err := a.modelStorageDir()
	if err != nil {
		return whisper.ResolvedModel{}, err
	}

	resolved, err := whisper.ResolveModel(modelRef, precision, modelDir)
	if err != nil {
		return whisper.ResolvedModel{}, err
	}
	return a.provision(ctx, resolved)
}

func (a *appState) ensureVADModel(ctx context.Context) (whisper.ResolvedModel, error) {
	modelDir, err := a.modelStorageDir()
	if err != nil {
		return whisper.ResolvedModel{}, err
	}

	resolved, err := whisper.ResolveVADModel(modelDir)
	if err != nil {
		return whisper.ResolvedModel{}, err
	}
	return a.provision(ctx, resolved)
}

func (a *appState) provision(ctx context.Context, resolved whisper.ResolvedModel) (whisper.ResolvedModel, error) {
	if !resolved.NeedsDownload {
		return resolved, nil
	}

	if !a.cfg.AutoDownload {
		return whisper.ResolvedModel{}, fmt.Errorf("model %q is missing at %s; rerun with --auto-download=true or place the file there", resolved.Name, resolved.Path)
	}

	downloadFn := a.downloadFn
	if downloadFn == nil {
		downloadFn = download.FetchModel
	}

	a.log().Info("model not found, downloading", zap.String("model", resolved.Name), zap.String("destination", resolved.Path))
	if err := downloadFn(ctx, download.Request{
		Model:       resolved.Name,
		URL:         resolved.URL,
		Destination: resolved.Path,
		SHA256:      resolved.SHA256,
		ChecksumURL: resolved.SHA256URL,
		NoProgress:  a.noProgress,
		Progress:    a.errWriter(),
		Logger:      a.log(),
	}); err != nil {
		return whisper.ResolvedModel{}, fmt.Errorf("download model %q: %w", resolved.Name, err)
	}

	resolved.NeedsDownload = false
	return resolved, nil
}

func (a *appState) modelStorageDir() (string, error) {
	dir, err := platform.ResolveModelDir(a.cfg.ModelDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory %s: %w", dir, err)
	}
	return dir, nil
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress || a.streams == nil {
		return false
	}
	return a.streams.terminal
}

func (a *appState) outWriter() io.Writer {
	if a.out == nil {
		return os.Stdout
	}
	return a.out
}

func (a *appState) errWriter() io.Writer {
	if a.errOut == nil {
		return os.Stderr
	}
	return a.errOut
}

func audioExists(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
