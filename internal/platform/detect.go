package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appDirName = "whisperjson"

type Runtime struct {
	OS   string
	Arch string
}

func CurrentRuntime() Runtime {
	return Runtime{
		OS:   runtime.GOOS,
		Arch: NormalizeArch(runtime.GOARCH),
	}
}

func NormalizeArch(arch string) string {
	switch arch {
	case "x86_64":
		return "amd64"
	case "aarch64":
		return "arm64"
	default:
		return arch
	}
}

// DefaultModelDirFor returns the model directory for goos. dataHome is
// $XDG_DATA_HOME on Linux and %LocalAppData% on Windows; it is ignored on macOS.
func DefaultModelDirFor(goos, homeDir, dataHome string) (string, error) {
	dataDir, err := defaultDataDirFor(goos, homeDir, dataHome)
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "models"), nil
}

func ResolveModelDir(override string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	return DefaultModelDirFor(runtime.GOOS, homeDir, dataHomeEnv(runtime.GOOS))
}

func dataHomeEnv(goos string) string {
	if goos == "windows" {
		return os.Getenv("LOCALAPPDATA")
	}
	return os.Getenv("XDG_DATA_HOME")
}

func defaultDataDirFor(goos, homeDir, dataHome string) (string, error) {
	if homeDir == "" {
		return "", errors.New("home directory is empty")
	}

	switch goos {
	case "linux", "freebsd":
		if dataHome != "" {
			return filepath.Join(dataHome, appDirName), nil
		}
		return filepath.Join(homeDir, ".local", "share", appDirName), nil
	case "darwin":
		return filepath.Join(homeDir, "Library", "Application Support", appDirName), nil
	case "windows":
		if dataHome != "" {
			return filepath.Join(dataHome, appDirName), nil
		}
		return filepath.Join(homeDir, "AppData", "Local", appDirName), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", goos)
	}
}
