package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeBinder struct {
	fs *pflag.FlagSet
}

func (f *fakeBinder) Flags() *pflag.FlagSet { return f.fs }

func newFlagBinder(defaults Config) *fakeBinder {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)
	return &fakeBinder{fs: fs}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxNestingLevel != 3 {
		t.Errorf("MaxNestingLevel = %d; want 3", cfg.MaxNestingLevel)
	}
	if cfg.Backend != BackendHost {
		t.Errorf("Backend = %q; want %q", cfg.Backend, BackendHost)
	}
	if cfg.GPU.SyncTimeout != 2*time.Second {
		t.Errorf("GPU.SyncTimeout = %v; want 2s", cfg.GPU.SyncTimeout)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("Load() = %+v; want %+v", cfg, DefaultConfig())
	}
}

func TestLoadEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(MaxNestingLevelEnv, "1")
	t.Setenv("TYPEPACK_BACKEND", "GPU")
	t.Setenv("TYPEPACK_HOST_WORKERS", "3")
	t.Setenv("TYPEPACK_GPU_SYNC_TIMEOUT", "5s")

	cfg, err := Load(LoadOptions{Cmd: newFlagBinder(DefaultConfig()), Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxNestingLevel != 1 {
		t.Errorf("MaxNestingLevel = %d; want 1", cfg.MaxNestingLevel)
	}
	if cfg.Backend != BackendWebGPU {
		t.Errorf("Backend = %q; want %q", cfg.Backend, BackendWebGPU)
	}
	if cfg.Host.Workers != 3 {
		t.Errorf("Host.Workers = %d; want 3", cfg.Host.Workers)
	}
	if cfg.GPU.SyncTimeout != 5*time.Second {
		t.Errorf("GPU.SyncTimeout = %v; want 5s", cfg.GPU.SyncTimeout)
	}
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(MaxNestingLevelEnv, "1")

	b := newFlagBinder(DefaultConfig())
	if err := b.fs.Parse([]string{"--max-nesting-level=4", "--log-level=debug"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(LoadOptions{Cmd: b, Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxNestingLevel != 4 {
		t.Errorf("MaxNestingLevel = %d; want 4", cfg.MaxNestingLevel)
	}
	if cfg.Level() != zapcore.DebugLevel {
		t.Errorf("Level() = %v; want debug", cfg.Level())
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "typepack.yaml")
	data := "max_nesting_level: 2\nbackend: webgpu\nhost:\n  workers: 8\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, opts := range []LoadOptions{
		{Defaults: DefaultConfig(), ConfigFile: path},
		{Defaults: DefaultConfig()},
	} {
		cfg, err := Load(opts)
		if err != nil {
			t.Fatalf("Load(%q): %v", opts.ConfigFile, err)
		}
		if cfg.MaxNestingLevel != 2 || cfg.Backend != BackendWebGPU || cfg.Host.Workers != 8 {
			t.Errorf("Load(%q) = %+v", opts.ConfigFile, cfg)
		}
	}
}

func TestLoadInvalid(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Run("backend", func(t *testing.T) {
		t.Setenv("TYPEPACK_BACKEND", "tpu")
		if _, err := Load(LoadOptions{Defaults: DefaultConfig()}); err == nil {
			t.Fatal("expected error for unknown backend")
		}
	})
	t.Run("workers", func(t *testing.T) {
		t.Setenv("TYPEPACK_HOST_WORKERS", "-2")
		if _, err := Load(LoadOptions{Defaults: DefaultConfig()}); err == nil {
			t.Fatal("expected error for negative workers")
		}
	})
	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(LoadOptions{Defaults: DefaultConfig(), ConfigFile: "nope.yaml"}); err == nil {
			t.Fatal("expected error for missing config file")
		}
	})
}

func TestMalformedNestingLevelFallsBack(t *testing.T) {
	t.Chdir(t.TempDir())
	core, logs := observer.New(zapcore.WarnLevel)
	t.Setenv(MaxNestingLevelEnv, "three")

	cfg, err := Load(LoadOptions{Defaults: DefaultConfig(), Logger: zap.New(core)})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxNestingLevel != 3 {
		t.Errorf("MaxNestingLevel = %d; want 3", cfg.MaxNestingLevel)
	}
	if logs.Len() != 1 {
		t.Fatalf("got %d warnings; want 1", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["value"]; got != "three" {
		t.Errorf("warning value = %v; want three", got)
	}
}

func TestParseMaxNestingLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want int
		warn bool
	}{
		{"", 3, false},
		{"0", 0, false},
		{" 2 ", 2, false},
		{"7", 7, false},
		{"-1", 3, true},
		{"2.5", 3, true},
		{"deep", 3, true},
	}
	for _, tt := range tests {
		core, logs := observer.New(zapcore.WarnLevel)
		if got := ParseMaxNestingLevel(tt.raw, zap.New(core)); got != tt.want {
			t.Errorf("ParseMaxNestingLevel(%q) = %d; want %d", tt.raw, got, tt.want)
		}
		if warned := logs.Len() > 0; warned != tt.warn {
			t.Errorf("ParseMaxNestingLevel(%q) warned = %v; want %v", tt.raw, warned, tt.warn)
		}
	}
}

func TestNormalizeBackend(t *testing.T) {
	tests := []struct {
		raw, want string
		ok        bool
	}{
		{"", BackendHost, true},
		{"host", BackendHost, true},
		{"CPU", BackendHost, true},
		{" webgpu ", BackendWebGPU, true},
		{"wgpu", BackendWebGPU, true},
		{"cuda", "", false},
	}
	for _, tt := range tests {
		got, err := NormalizeBackend(tt.raw)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("NormalizeBackend(%q) = %q, %v", tt.raw, got, err)
		}
	}
}
