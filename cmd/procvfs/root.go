package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/platinummonkey/procvfs/pkg/builtin"
	"github.com/platinummonkey/procvfs/pkg/config"
	"github.com/platinummonkey/procvfs/pkg/observability"
	"github.com/platinummonkey/procvfs/pkg/plugins"
	"github.com/platinummonkey/procvfs/pkg/vfs"
)

var version = "dev"

// app carries the state shared by every command
type app struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
	log     *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:          "procvfs",
		Short:        "A process virtual file system served by loadable modules",
		Long:         `procvfs exposes a virtual file system whose directories and files are provided by built-in, native and scripted modules.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "",
		"config file (default: ./procvfs.yaml, ~/.config/procvfs/procvfs.yaml or /etc/procvfs/procvfs.yaml)")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.String("log-format", "", "log format (text or json)")
	flags.String("plugin-dir", "", "directory scanned for native modules")

	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = a.v.BindPFlag("plugin_dir", flags.Lookup("plugin-dir"))

	rootCmd.AddCommand(
		newModulesCmd(a),
		newLsCmd(a),
		newCatCmd(a),
		newWriteCmd(a),
		newServeCmd(a),
	)

	return rootCmd
}

func (a *app) init(logOut io.Writer) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}

	log, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, logOut)
	if err != nil {
		return err
	}
	syncStandardLogger(log)

	a.cfg = cfg
	a.log = log
	return nil
}

// syncStandardLogger mirrors log onto the logrus standard logger, which
// modules loaded from shared libraries log through
func syncStandardLogger(log *logrus.Logger) {
	std := logrus.StandardLogger()
	std.SetOutput(log.Out)
	std.SetFormatter(log.Formatter)
	std.SetLevel(log.GetLevel())
}

// configPath is where the resolved runtime directory is persisted
func (a *app) configPath() string {
	if used := a.v.ConfigFileUsed(); used != "" {
		return used
	}
	if a.cfgFile != "" {
		return a.cfgFile
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "procvfs", "procvfs.yaml")
	}
	return "procvfs.yaml"
}

// engine is an initialized module registry behind a file system
type engine struct {
	registry *plugins.Registry
	loader   *plugins.Loader
	fs       *vfs.FS
}

// open initializes every module. The caller must Close the engine.
func (a *app) open(ctx context.Context, stats plugins.Statistics) (*engine, error) {
	cfg := a.cfg

	registry := plugins.NewRegistry(
		plugins.WithCapacity(cfg.Capacity),
		plugins.WithRegistryLogger(a.log),
	)
	loader := plugins.NewLoader(registry,
		plugins.WithBuiltins(builtin.Modules(registry)...),
		plugins.WithPluginDir(cfg.PluginDir),
		plugins.WithPattern(cfg.Pattern),
		plugins.WithSystemInfo(cfg.System),
		plugins.WithRuntimeHost(cfg.RuntimeHost.Plugins()),
		plugins.WithRuntimeDirHook(func(dir string) error {
			path := a.configPath()
			a.log.Infof("Recording runtime directory %s in %s", dir, path)
			return config.SaveRuntimeDir(path, dir)
		}),
		plugins.WithLoaderLogger(a.log),
	)
	if err := loader.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initializing modules: %w", err)
	}

	processes, err := vfs.NewHostProcesses(cfg.Processes.CacheSize)
	if err != nil {
		loader.Close()
		return nil, err
	}

	dispatcher := plugins.NewDispatcher(registry,
		plugins.WithStatistics(stats),
		plugins.WithDispatcherLogger(a.log),
	)

	return &engine{
		registry: registry,
		loader:   loader,
		fs:       vfs.New(registry, dispatcher, vfs.WithProcesses(processes), vfs.WithLogger(a.log)),
	}, nil
}

// Close tears down every module
func (e *engine) Close() {
	e.loader.Close()
}
