// Package config loads engine settings from defaults, an optional typepack.yaml,
// environment variables prefixed TYPEPACK_ and command-line flags.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/openfluke/typepack/dispatch"
)

// MaxNestingLevelEnv overrides the dispatcher depth limit.
const MaxNestingLevelEnv = "TYPEPACK_MAX_NESTING_LEVEL"

type Config struct {
	// MaxNestingLevel is resolved from the raw setting by ParseMaxNestingLevel.
	MaxNestingLevel int        `mapstructure:"-"`
	Backend         string     `mapstructure:"backend"`
	LogLevel        string     `mapstructure:"log_level"`
	Host            HostConfig `mapstructure:"host"`
	GPU             GPUConfig  `mapstructure:"gpu"`
}

type HostConfig struct {
	// Workers bounds the goroutines running groups concurrently. 0 means GOMAXPROCS.
	Workers int `mapstructure:"workers"`
}

type GPUConfig struct {
	SyncTimeout time.Duration `mapstructure:"sync_timeout"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
	Logger     *zap.Logger
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		MaxNestingLevel: dispatch.DefaultMaxDepth,
		Backend:         BackendHost,
		LogLevel:        "info",
		Host:            HostConfig{Workers: 0},
		GPU:             GPUConfig{SyncTimeout: 2 * time.Second},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("max-nesting-level", strconv.Itoa(defaults.MaxNestingLevel), "Deepest layout routed to a specialized routine")
	fs.String("backend", defaults.Backend, "Execution backend (host|webgpu)")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.Int("host-workers", defaults.Host.Workers, "Concurrent goroutines on the host grid, 0 for GOMAXPROCS")
	fs.Duration("gpu-sync-timeout", defaults.GPU.SyncTimeout, "How long to wait for WebGPU completion")
}

func Load(opts LoadOptions) (Config, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	v.SetEnvPrefix("TYPEPACK")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("max_nesting_level", MaxNestingLevelEnv); err != nil {
		return Config{}, fmt.Errorf("bind nesting env var: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("typepack")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.MaxNestingLevel = ParseMaxNestingLevel(v.GetString("max_nesting_level"), log)

	backend, err := NormalizeBackend(cfg.Backend)
	if err != nil {
		return Config{}, err
	}
	cfg.Backend = backend
	if cfg.Host.Workers < 0 {
		return Config{}, fmt.Errorf("invalid host workers %d", cfg.Host.Workers)
	}

	return cfg, nil
}

// ParseMaxNestingLevel reads the depth limit. An empty value selects the default
// silently; a malformed or negative one selects it with a warning.
func ParseMaxNestingLevel(raw string, log *zap.Logger) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return dispatch.DefaultMaxDepth
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		log.Warn("ignoring invalid max nesting level",
			zap.String("value", raw),
			zap.Int("default", dispatch.DefaultMaxDepth))
		return dispatch.DefaultMaxDepth
	}
	return n
}

// Level parses LogLevel, defaulting to info.
func (c Config) Level() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("max_nesting_level", strconv.Itoa(c.MaxNestingLevel))
	v.SetDefault("backend", c.Backend)
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("host.workers", c.Host.Workers)
	v.SetDefault("gpu.sync_timeout", c.GPU.SyncTimeout)
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"max-nesting-level": "max_nesting_level",
	"backend":           "backend",
	"log-level":         "log_level",
	"host-workers":      "host.workers",
	"gpu-sync-timeout":  "gpu.sync_timeout",
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}
