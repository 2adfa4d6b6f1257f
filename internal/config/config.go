package config

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"GusMove/pkg/engine"
)

// Progress modes accepted by ui.progress.
const (
	ProgressAuto = "auto"
	ProgressTTY  = "tty"
	ProgressLog  = "log"
	ProgressNone = "none"
)

type TransferConfig struct {
	Concurrency int  `mapstructure:"concurrency"`
	BufferSize  int  `mapstructure:"buffer_size"`
	Truncate    bool `mapstructure:"truncate"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
	JSON  bool   `mapstructure:"json"`
}

type JournalConfig struct {
	Path string `mapstructure:"path"`
}

type UIConfig struct {
	Progress string `mapstructure:"progress"`
}

type Config struct {
	Transfer TransferConfig `mapstructure:"transfer"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Journal  JournalConfig  `mapstructure:"journal"`
	UI       UIConfig       `mapstructure:"ui"`
}

// SetDefaults registers every key with its default value. Keys must be known
// to viper before Unmarshal for GUSMOVE_* environment overrides to apply.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("transfer.concurrency", engine.DefaultConcurrency)
	v.SetDefault("transfer.buffer_size", engine.DefaultBufferSize)
	v.SetDefault("transfer.truncate", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.json", false)
	v.SetDefault("journal.path", "")
	v.SetDefault("ui.progress", ProgressAuto)
}

// Load reads configuration into v and decodes it. configFile, when set, is
// read directly and must exist; otherwise config.yaml is looked up in the
// usual places and silently skipped when absent.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.gusmove")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/gusmove")
	}

	v.SetEnvPrefix("GUSMOVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, engine.SyntaxError("failed to read config: %v", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, engine.SyntaxError("failed to decode config: %v", err)
	}
	return &cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Transfer.Concurrency < 1 {
		return engine.SyntaxError("concurrency must be at least 1, got %d", c.Transfer.Concurrency)
	}
	if c.Transfer.BufferSize < 2 {
		return engine.SyntaxError("buffer size must be at least 2 bytes, got %d", c.Transfer.BufferSize)
	}
	switch c.UI.Progress {
	case ProgressAuto, ProgressTTY, ProgressLog, ProgressNone:
	default:
		return engine.SyntaxError("unknown progress mode %q", c.UI.Progress)
	}
	return nil
}

// CheckPaths rejects a destination equal to or inside the source, and a
// journal inside the source, since both would be moved or deleted along
// with it.
func CheckPaths(src, dst, journal string) error {
	srcAbs, err := filepath.Abs(src)
	if err != nil {
		return engine.SyntaxError("invalid source %q: %v", src, err)
	}
	dstAbs, err := filepath.Abs(dst)
	if err != nil {
		return engine.SyntaxError("invalid destination %q: %v", dst, err)
	}
	if within(srcAbs, dstAbs) {
		return engine.SyntaxError("destination %q is inside source %q", dst, src)
	}
	if journal != "" {
		jAbs, err := filepath.Abs(journal)
		if err != nil {
			return engine.SyntaxError("invalid journal path %q: %v", journal, err)
		}
		if within(srcAbs, jAbs) {
			return engine.SyntaxError("journal %q is inside source %q", journal, src)
		}
	}
	return nil
}

// within reports whether path is root or below it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
