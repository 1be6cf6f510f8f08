//go:build !whisper_cpp

package whisper

import "go.uber.org/zap"

func NativeAvailable() bool { return false }

func newNativeEngine(_ *zap.Logger) (Engine, error) {
	return nil, ErrNativeUnavailable
}
