package cli

import (
	"context"

	"github.com/fmueller/whisperjson/internal/config"
	"github.com/fmueller/whisperjson/internal/version"
	"github.com/fmueller/whisperjson/internal/whisper"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const (
	referenceDefaultModel = whisper.DefaultModel
	referenceModelEnv     = "WHISPER_MODEL"
)

type referenceOptions struct {
	audioPath string
	language  string
}

func NewReferenceCmd() *cobra.Command {
	return newReferenceCmd(newAppState())
}

func newReferenceCmd(app *appState) *cobra.Command {
	opts := referenceOptions{}

	cmd := &cobra.Command{
		Use:           "whisper-transcribe",
		Short:         "Transcribe an audio file with a full-precision whisper model and print JSON",
		Version:       version.Resolve(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.setup(cmd, true)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer app.finish()
			payload, code := encodeReference(app.transcribeReference(cmd.Context(), cmd.Flags(), opts))
			return writeResult(app.outWriter(), payload, code)
		},
	}
	cmd.SetOut(app.outWriter())
	cmd.SetErr(app.errWriter())

	cmd.Flags().StringVar(&opts.audioPath, "audio", "", "Path to the audio file")
	cmd.Flags().String("model", referenceDefaultModel, "Model name or path to a ggml file (env WHISPER_MODEL)")
	cmd.Flags().StringVar(&opts.language, "language", "", "Language hint; detected automatically when empty")
	_ = cmd.MarkFlagRequired("audio")

	bindModelStorageFlags(cmd)
	bindEngineFlags(cmd)
	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)

	return cmd
}

// transcribeReference is the only place failures of the reference adapter
// are turned into results.
func (a *appState) transcribeReference(ctx context.Context, flags *pflag.FlagSet, opts referenceOptions) result {
	if err := a.loadConfig(flags, config.Options{
		DefaultModel: referenceDefaultModel,
		ModelEnv:     referenceModelEnv,
	}); err != nil {
		a.log().Debug("invalid configuration", zap.Error(err))
		return failure{Kind: FailureRuntime, Category: err.Error()}
	}

	engine, err := a.newEngine()
	if err != nil {
		a.log().Debug("whisper engine unavailable", zap.Error(err))
		return failure{Kind: FailureMissingDependency, Category: "Whisper library not installed", Detail: err.Error()}
	}

	if !audioExists(opts.audioPath) {
		return failure{Kind: FailureMissingInput, Category: "Audio file not found: " + opts.audioPath}
	}

	transcription, err := a.runReference(ctx, engine, opts)
	if err != nil {
		a.log().Debug("transcription failed", zap.Error(err))
		return failure{Kind: FailureRuntime, Category: err.Error()}
	}

	return success{
		Text:     transcription.RawText(),
		Language: transcription.Language,
		Segments: transcription.Segments,
		Model:    a.cfg.Model,
	}
}

func (a *appState) runReference(ctx context.Context, engine whisper.Engine, opts referenceOptions) (whisper.Transcription, error) {
	a.log().Debug("loading model", zap.String("model", a.cfg.Model))
	model, err := a.ensureModel(ctx, a.cfg.Model, whisper.PrecisionFloat32)
	if err != nil {
		return whisper.Transcription{}, err
	}

	stop := startSpinner(a.progressEnabled(), "transcribing", a.errWriter())
	defer stop()

	transcription, err := engine.Transcribe(ctx, whisper.TranscriptionRequest{
		AudioPath: opts.audioPath,
		ModelPath: model.Path,
		Language:  opts.language,
		Threads:   a.cfg.Threads,
		Precision: whisper.PrecisionFloat32,
	})
	if err != nil {
		return whisper.Transcription{}, err
	}
	return transcription, nil
}
