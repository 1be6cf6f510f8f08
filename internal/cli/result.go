package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fmueller/whisperjson/internal/whisper"
)

type FailureKind int

const (
	FailureRuntime FailureKind = iota
	FailureMissingDependency
	FailureMissingInput
)

// result is either success or failure; every adapter run produces exactly one.
type result interface {
	isResult()
}

type success struct {
	Text                string
	Language            string
	LanguageProbability float64
	Duration            float64
	Segments            []whisper.Segment
	Model               string
}

type failure struct {
	Kind     FailureKind
	Category string
	Detail   string
}

func (success) isResult() {}
func (failure) isResult() {}

// ExitError carries a process exit code after the result has been written.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

type fastSuccessPayload struct {
	Text                string  `json:"text"`
	Language            string  `json:"language"`
	LanguageProbability float64 `json:"language_probability"`
	Duration            float64 `json:"duration"`
}

type fastFailurePayload struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

type referenceSuccessPayload struct {
	Text     string            `json:"text"`
	Language string            `json:"language"`
	Segments []whisper.Segment `json:"segments"`
	Model    string            `json:"model"`
}

type referenceFailurePayload struct {
	Error string `json:"error"`
}

func encodeFast(r result) (any, int) {
	switch v := r.(type) {
	case success:
		return fastSuccessPayload{
			Text:                v.Text,
			Language:            v.Language,
			LanguageProbability: clampProbability(v.LanguageProbability),
			Duration:            v.Duration,
		}, 0
	case failure:
		return fastFailurePayload{Error: v.Category, Detail: v.Detail}, 1
	default:
		return fastFailurePayload{Error: "Transcription failed", Detail: fmt.Sprintf("unexpected result %T", r)}, 1
	}
}

func encodeReference(r result) (any, int) {
	switch v := r.(type) {
	case success:
		segments := v.Segments
		if segments == nil {
			segments = []whisper.Segment{}
		}
		return referenceSuccessPayload{
			Text:     v.Text,
			Language: v.Language,
			Segments: segments,
			Model:    v.Model,
		}, 0
	case failure:
		return referenceFailurePayload{Error: v.Category}, referenceExitCode(v.Kind)
	default:
		return referenceFailurePayload{Error: fmt.Sprintf("unexpected result %T", r)}, 3
	}
}

func referenceExitCode(kind FailureKind) int {
	switch kind {
	case FailureMissingDependency:
		return 1
	case FailureMissingInput:
		return 2
	default:
		return 3
	}
}

func clampProbability(p float64) float64 {
	switch {
	case p != p || p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}

// writeResult prints payload as a single JSON line and returns an
// *ExitError for nonzero codes.
func writeResult(w io.Writer, payload any, code int) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}
