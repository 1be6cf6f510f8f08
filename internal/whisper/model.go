package whisper

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	DefaultModel = "small"
	VADModelName = "silero-v5.1.2"

	modelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"
)

type Model struct {
	Name      string
	FileName  string
	URL       string
	SHA256    string
	SHA256URL string
}

type ResolvedModel struct {
	Name          string
	Path          string
	URL           string
	SHA256        string
	SHA256URL     string
	NeedsDownload bool
	IsCustomPath  bool
}

var aliases = map[string]string{
	"turbo": "large-v3-turbo",
}

// registry holds the f16 ggml weights used for float16 and float32 inference.
var registry = map[string]Model{
	"tiny": {
		Name:     "tiny",
		FileName: "ggml-tiny.bin",
		URL:      modelBaseURL + "ggml-tiny.bin",
		SHA256:   "be07e048e1e599ad46341c8d2a135645097a538221678b7acdd1b1919c6e1b21",
	},
	"base": {
		Name:     "base",
		FileName: "ggml-base.bin",
		URL:      modelBaseURL + "ggml-base.bin",
		SHA256:   "60ed5bc3dd14eea856493d334349b405782ddcaf0028d4b5df4088345fba2efe",
	},
	"small": {
		Name:     "small",
		FileName: "ggml-small.bin",
		URL:      modelBaseURL + "ggml-small.bin",
		SHA256:   "1be3a9b2063867b937e64e2ec7483364a79917e157fa98c5d94b5c1fffea987b",
	},
	"medium": {
		Name:     "medium",
		FileName: "ggml-medium.bin",
		URL:      modelBaseURL + "ggml-medium.bin",
		SHA256:   "6c14d5adee5f86394037b4e4e8b59f1673b6cee10e3cf0b11bbdbee79c156208",
	},
	"large-v3": {
		Name:     "large-v3",
		FileName: "ggml-large-v3.bin",
		URL:      modelBaseURL + "ggml-large-v3.bin",
		SHA256:   "64d182b440b98d5203c4f9bd541544d84c605196c4f7b845dfa11fb23594d1e2",
	},
	"large-v3-turbo": {
		Name:     "large-v3-turbo",
		FileName: "ggml-large-v3-turbo.bin",
		URL:      modelBaseURL + "ggml-large-v3-turbo.bin",
	},
}

// quantized holds the weights selected by int8 precision. large-v3 is only
// published as q5_0. Checksums are not pinned upstream, so downloads are only
// verified when a checksum is known.
var quantized = map[string]Model{
	"tiny":           quantizedModel("tiny", "q8_0"),
	"base":           quantizedModel("base", "q8_0"),
	"small":          quantizedModel("small", "q8_0"),
	"medium":         quantizedModel("medium", "q8_0"),
	"large-v3":       quantizedModel("large-v3", "q5_0"),
	"large-v3-turbo": quantizedModel("large-v3-turbo", "q8_0"),
}

var vadModel = Model{
	Name:     VADModelName,
	FileName: "ggml-silero-v5.1.2.bin",
	URL:      "https://huggingface.co/ggml-org/whisper-vad/resolve/main/ggml-silero-v5.1.2.bin",
}

func quantizedModel(name, quantization string) Model {
	fileName := fmt.Sprintf("ggml-%s-%s.bin", name, quantization)
	return Model{
		Name:     name,
		FileName: fileName,
		URL:      modelBaseURL + fileName,
	}
}

func ModelNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func LookupModel(name string, precision Precision) (Model, bool) {
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	if precision.Quantized() {
		model, ok := quantized[name]
		return model, ok
	}
	model, ok := registry[name]
	return model, ok
}

func ResolveModel(modelRef string, precision Precision, modelDir string) (ResolvedModel, error) {
	modelRef = strings.TrimSpace(modelRef)
	if modelRef == "" {
		modelRef = DefaultModel
	}

	if model, ok := LookupModel(modelRef, precision); ok {
		return resolveNamed(model, modelDir)
	}

	if !looksLikePath(modelRef) {
		if _, known := LookupModel(modelRef, PrecisionFloat16); known && precision.Quantized() {
			return ResolvedModel{}, fmt.Errorf("model %q has no %s variant", modelRef, precision)
		}
		return ResolvedModel{}, fmt.Errorf("unknown model %q (known models: %s)", modelRef, strings.Join(ModelNames(), ", "))
	}

	customPath := filepath.Clean(modelRef)
	if _, err := os.Stat(customPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ResolvedModel{}, fmt.Errorf("custom model path does not exist: %s", customPath)
		}
		return ResolvedModel{}, fmt.Errorf("stat custom model path: %w", err)
	}

	return ResolvedModel{
		Name:         modelRef,
		Path:         customPath,
		IsCustomPath: true,
	}, nil
}

func ResolveVADModel(modelDir string) (ResolvedModel, error) {
	return resolveNamed(vadModel, modelDir)
}

func resolveNamed(model Model, modelDir string) (ResolvedModel, error) {
	if strings.TrimSpace(modelDir) == "" {
		return ResolvedModel{}, errors.New("model directory must not be empty for named model")
	}

	modelPath := filepath.Join(modelDir, model.FileName)
	_, statErr := os.Stat(modelPath)
	needsDownload := errors.Is(statErr, os.ErrNotExist)
	if statErr != nil && !needsDownload {
		return ResolvedModel{}, fmt.Errorf("stat model path: %w", statErr)
	}

	return ResolvedModel{
		Name:          model.Name,
		Path:          modelPath,
		URL:           model.URL,
		SHA256:        model.SHA256,
		SHA256URL:     model.SHA256URL,
		NeedsDownload: needsDownload,
	}, nil
}

func looksLikePath(input string) bool {
	return strings.ContainsRune(input, os.PathSeparator) || strings.ContainsRune(input, '/') || strings.HasSuffix(strings.ToLower(input), ".bin")
}
