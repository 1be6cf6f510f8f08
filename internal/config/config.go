package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	KeyModel        = "model"
	KeyModelDir     = "model_dir"
	KeyAutoDownload = "auto_download"
	KeyEngine       = "engine"
	KeyEnginePath   = "engine_path"
	KeyThreads      = "threads"

	DefaultEngine = "auto"
)

// Config holds the settings shared by both adapters. Flags win over
// environment variables, which win over defaults.
type Config struct {
	Model        string `mapstructure:"model"`
	ModelDir     string `mapstructure:"model_dir"`
	AutoDownload bool   `mapstructure:"auto_download"`
	Engine       string `mapstructure:"engine"`
	EnginePath   string `mapstructure:"engine_path"`
	Threads      int    `mapstructure:"threads"`
}

type Options struct {
	DefaultModel string
	// ModelEnv is consulted for the model when --model is not given.
	// Empty means the model is taken from flags only.
	ModelEnv string
}

var envKeys = map[string]string{
	KeyModelDir:     "WHISPER_MODEL_DIR",
	KeyAutoDownload: "WHISPER_AUTO_DOWNLOAD",
	KeyEngine:       "WHISPER_ENGINE",
	KeyEnginePath:   "WHISPER_ENGINE_PATH",
	KeyThreads:      "WHISPER_THREADS",
}

var flagKeys = map[string]string{
	KeyModel:        "model",
	KeyModelDir:     "model-dir",
	KeyAutoDownload: "auto-download",
	KeyEngine:       "engine",
	KeyEnginePath:   "engine-path",
}

func Load(flags *pflag.FlagSet, opts Options) (Config, error) {
	v := viper.New()
	v.SetDefault(KeyModel, opts.DefaultModel)
	v.SetDefault(KeyModelDir, "")
	v.SetDefault(KeyAutoDownload, true)
	v.SetDefault(KeyEngine, DefaultEngine)
	v.SetDefault(KeyEnginePath, "")
	v.SetDefault(KeyThreads, 0)

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("config: bind %s: %w", env, err)
		}
	}
	if opts.ModelEnv != "" {
		if err := v.BindEnv(KeyModel, opts.ModelEnv); err != nil {
			return Config{}, fmt.Errorf("config: bind %s: %w", opts.ModelEnv, err)
		}
	}

	if flags != nil {
		for key, name := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Config{}, fmt.Errorf("config: bind --%s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	c.Model = strings.TrimSpace(c.Model)
	c.Engine = strings.ToLower(strings.TrimSpace(c.Engine))
	switch c.Engine {
	case "":
		c.Engine = DefaultEngine
	case "auto", "cli", "native":
	default:
		return fmt.Errorf("config: unknown engine %q (expected auto, cli or native)", c.Engine)
	}
	if c.Threads < 0 {
		return fmt.Errorf("config: threads must be >= 0, got %d", c.Threads)
	}
	return nil
}
