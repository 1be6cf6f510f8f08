package cli

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/fmueller/whisperjson/internal/audio"
	"github.com/fmueller/whisperjson/internal/config"
	"github.com/fmueller/whisperjson/internal/version"
	"github.com/fmueller/whisperjson/internal/whisper"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const (
	fastDefaultModel = "base"
	fastBeamSize     = 5
	fastMinSilence   = 500 * time.Millisecond
)

type fastOptions struct {
	audioPath   string
	language    string
	device      string
	computeType string
}

func NewFastCmd() *cobra.Command {
	return newFastCmd(newAppState())
}

func newFastCmd(app *appState) *cobra.Command {
	opts := fastOptions{}

	cmd := &cobra.Command{
		Use:           "faster-transcribe",
		Short:         "Transcribe an audio file with a quantized whisper model and print JSON",
		Version:       version.Resolve(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.setup(cmd, false)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer app.finish()
			payload, code := encodeFast(app.transcribeFast(cmd.Context(), cmd.Flags(), opts))
			return writeResult(app.outWriter(), payload, code)
		},
	}
	cmd.SetOut(app.outWriter())
	cmd.SetErr(app.errWriter())

	cmd.Flags().StringVar(&opts.audioPath, "audio", "", "Path to the audio file")
	cmd.Flags().StringVar(&opts.language, "language", "en", "Language code, or auto to detect it")
	cmd.Flags().String("model", fastDefaultModel, "Model tier (tiny, base, small, medium, large-v3, turbo) or path to a ggml file")
	cmd.Flags().StringVar(&opts.device, "device", string(whisper.DeviceCPU), "Inference device: cpu or cuda")
	cmd.Flags().StringVar(&opts.computeType, "compute_type", string(whisper.PrecisionInt8), "Compute precision: int8, float16 or float32")
	_ = cmd.MarkFlagRequired("audio")

	bindModelStorageFlags(cmd)
	bindEngineFlags(cmd)
	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)

	return cmd
}

// transcribeFast is the only place failures of the fast adapter are turned
// into results.
func (a *appState) transcribeFast(ctx context.Context, flags *pflag.FlagSet, opts fastOptions) result {
	runtimeFailure := func(err error) result {
		a.log().Debug("transcription failed", zap.Error(err))
		return failure{Kind: FailureRuntime, Category: "Transcription failed", Detail: err.Error()}
	}

	if err := a.loadConfig(flags, config.Options{DefaultModel: fastDefaultModel}); err != nil {
		return runtimeFailure(err)
	}

	engine, err := a.newEngine()
	if err != nil {
		return failure{Kind: FailureMissingDependency, Category: "whisper engine not installed", Detail: err.Error()}
	}

	if !audioExists(opts.audioPath) {
		return failure{Kind: FailureMissingInput, Category: "Audio file not found", Detail: "File not found: " + opts.audioPath}
	}

	a.log().Info("loading model",
		zap.String("model", a.cfg.Model),
		zap.String("device", opts.device),
		zap.String("compute_type", opts.computeType),
	)

	device, err := whisper.ParseDevice(opts.device)
	if err != nil {
		return runtimeFailure(err)
	}
	precision, err := whisper.ParsePrecision(opts.computeType)
	if err != nil {
		return runtimeFailure(err)
	}

	model, err := a.ensureModel(ctx, a.cfg.Model, precision)
	if err != nil {
		return runtimeFailure(err)
	}
	vadModel, err := a.ensureVADModel(ctx)
	if err != nil {
		return runtimeFailure(err)
	}

	a.log().Info("transcribing audio", zap.String("audio", opts.audioPath), zap.String("language", opts.language))
	stop := startSpinner(a.progressEnabled(), "transcribing", a.errWriter())
	transcription, err := engine.Transcribe(ctx, whisper.TranscriptionRequest{
		AudioPath: opts.audioPath,
		ModelPath: model.Path,
		Language:  opts.language,
		BeamSize:  fastBeamSize,
		Threads:   a.cfg.Threads,
		Device:    device,
		Precision: precision,
		VAD: &whisper.VADOptions{
			ModelPath:  vadModel.Path,
			MinSilence: fastMinSilence,
		},
	})
	stop()
	if err != nil {
		return runtimeFailure(err)
	}

	text := transcription.JoinedText()
	a.log().Info("transcription complete", zap.Int("characters", utf8.RuneCountInString(text)))

	return success{
		Text:                text,
		Language:            transcription.Language,
		LanguageProbability: transcription.LanguageProbability,
		Duration:            a.audioDuration(opts.audioPath, transcription).Seconds(),
	}
}

// audioDuration prefers the engine's report, then the WAV header, then the
// end of the last segment.
func (a *appState) audioDuration(path string, transcription whisper.Transcription) time.Duration {
	if transcription.Duration > 0 {
		return transcription.Duration
	}

	info, err := audio.Probe(path)
	if err == nil && info.Duration > 0 {
		return info.Duration
	}
	if err != nil {
		a.log().Debug("probe audio duration", zap.String("audio", path), zap.Error(err))
	}

	return transcription.LastSegmentEnd()
}
