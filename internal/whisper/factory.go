package whisper

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	BackendAuto   = "auto"
	BackendCLI    = "cli"
	BackendNative = "native"
)

var ErrNativeUnavailable = errors.New("native whisper engine not compiled in (build with -tags whisper_cpp)")

type EngineOptions struct {
	Backend        string
	ExecutablePath string
	Logger         *zap.Logger
}

// NewEngine selects a backend. "auto" prefers the native bindings when they
// are compiled in and falls back to whisper-cli otherwise.
func NewEngine(opts EngineOptions) (Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend == "" {
		backend = BackendAuto
	}

	switch backend {
	case BackendAuto:
		if NativeAvailable() && strings.TrimSpace(opts.ExecutablePath) == "" {
			logger.Debug("using native whisper engine")
			return newNativeEngine(logger)
		}
		return NewCLIEngine(opts.ExecutablePath, logger)
	case BackendCLI:
		return NewCLIEngine(opts.ExecutablePath, logger)
	case BackendNative:
		if !NativeAvailable() {
			return nil, ErrNativeUnavailable
		}
		return newNativeEngine(logger)
	default:
		return nil, fmt.Errorf("unknown engine backend %q (expected auto, cli or native)", opts.Backend)
	}
}
