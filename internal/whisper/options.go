package whisper

import (
	"fmt"
	"strings"
)

type Device string

const (
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
)

func ParseDevice(value string) (Device, error) {
	switch Device(strings.ToLower(strings.TrimSpace(value))) {
	case DeviceCPU:
		return DeviceCPU, nil
	case DeviceCUDA:
		return DeviceCUDA, nil
	default:
		return "", fmt.Errorf("unsupported device %q (expected cpu or cuda)", value)
	}
}

type Precision string

const (
	PrecisionInt8    Precision = "int8"
	PrecisionFloat16 Precision = "float16"
	PrecisionFloat32 Precision = "float32"
)

func ParsePrecision(value string) (Precision, error) {
	switch Precision(strings.ToLower(strings.TrimSpace(value))) {
	case PrecisionInt8:
		return PrecisionInt8, nil
	case PrecisionFloat16:
		return PrecisionFloat16, nil
	case PrecisionFloat32:
		return PrecisionFloat32, nil
	default:
		return "", fmt.Errorf("unsupported compute type %q (expected int8, float16 or float32)", value)
	}
}

// Quantized reports whether the precision selects quantized model weights.
func (p Precision) Quantized() bool {
	return p == PrecisionInt8
}
