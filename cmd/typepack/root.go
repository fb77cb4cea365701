package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/openfluke/typepack/config"
	"github.com/openfluke/typepack/dispatch"
	"github.com/openfluke/typepack/gpu"
	"github.com/openfluke/typepack/host"
	"github.com/openfluke/typepack/layout"
	"github.com/openfluke/typepack/pup"
)

var (
	cfgFile   string
	activeCfg config.Config
	loaded    bool
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "typepack",
		Short:         "Pack and unpack nested memory layouts on host or WebGPU devices",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := setupLogger(zapcore.InfoLevel)
			cfg, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
				Logger:     log,
			})
			if err != nil {
				return err
			}
			activeCfg = cfg
			loaded = true
			setupLogger(cfg.Level())
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newDetectCmd())
	cmd.AddCommand(newPlanCmd())
	cmd.AddCommand(newOffsetsCmd())
	cmd.AddCommand(newRunCmd())

	return cmd
}

// setupLogger installs a console logger on stderr for the engine packages.
func setupLogger(lvl zapcore.Level) *zap.Logger {
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.DisableStacktrace = true
	log, err := zc.Build()
	if err != nil {
		log = zap.NewNop()
	}
	pup.SetLogger(log)
	gpu.SetLogger(log)
	return log
}

func requireConfig() (config.Config, error) {
	if !loaded {
		return config.Config{}, fmt.Errorf("configuration not loaded")
	}
	return activeCfg, nil
}

// catalogFor returns the routine catalog of a backend without opening a device.
func catalogFor(backend string) *dispatch.Catalog[pup.Routine] {
	if backend == config.BackendWebGPU {
		return gpu.NewCatalog()
	}
	return host.New().Catalog()
}

// openDevice returns the configured device and a function releasing it.
func openDevice(cfg config.Config) (pup.Device, func(), error) {
	if cfg.Backend == config.BackendWebGPU {
		d, err := gpu.New(gpu.WithSyncTimeout(cfg.GPU.SyncTimeout))
		if err != nil {
			return nil, nil, err
		}
		return d, d.Close, nil
	}
	return host.New(host.WithWorkers(cfg.Host.Workers)), func() {}, nil
}

func loadLayout(path string) (*layout.Node, error) {
	spec, err := layout.LoadSpec(path)
	if err != nil {
		return nil, err
	}
	return spec.Build()
}
