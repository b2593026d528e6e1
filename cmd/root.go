package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/activesave/internal/config"
	"github.com/zjrosen/activesave/internal/log"
)

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config
	logClose  func()
)

var rootCmd = &cobra.Command{
	Use:   "activesave",
	Short: "Autosave HTML forms to a local cache and submit them on demand",
	Long: `activesave keeps the forms of an HTML document in sync with a durable
local cache. Cached values are restored into the document, edits are
snapshotted into the cache, and forms are submitted to their action
endpoints when persisted or unloaded.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initLogging()
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if logClose != nil {
			logClose()
			logClose = nil
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/activesave/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"write debug logs (to log_file, or debug.log)")
	rootCmd.PersistentFlags().String("scope", "", "cache scope for tracked forms (overrides config)")
	rootCmd.PersistentFlags().String("base-url", "", "base URL relative form actions resolve against")
	rootCmd.PersistentFlags().String("backend", "", `cache backend: "sqlite", "leveldb" or "memory"`)
	rootCmd.PersistentFlags().String("cache", "", "cache database path")

	_ = viper.BindPFlag("scope", rootCmd.PersistentFlags().Lookup("scope"))
	_ = viper.BindPFlag("base_url", rootCmd.PersistentFlags().Lookup("base-url"))
	_ = viper.BindPFlag("cache.backend", rootCmd.PersistentFlags().Lookup("backend"))
	_ = viper.BindPFlag("cache.path", rootCmd.PersistentFlags().Lookup("cache"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func initConfig() {
	setDefaults(viper.GetViper(), config.Defaults())

	viper.SetEnvPrefix("ACTIVESAVE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .activesave/config.yaml (current directory)
		// 2. ~/.config/activesave/config.yaml (user config)
		if _, err := os.Stat(localConfigPath); err == nil {
			viper.SetConfigFile(localConfigPath)
		} else if dir := config.ConfigDir(); dir != "" {
			viper.AddConfigPath(dir)
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "warning: reading config: %v\n", err)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: decoding config: %v\n", err)
	}
}

const localConfigPath = ".activesave/config.yaml"

func setDefaults(v *viper.Viper, d config.Config) {
	v.SetDefault("scope", d.Scope)
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.path", d.Cache.Path)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("submit.timeout", d.Submit.Timeout)
	v.SetDefault("submit.status_header", d.Submit.StatusHeader)
	v.SetDefault("unload.timeout", d.Unload.Timeout)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("validation.enabled", d.Validation.Enabled)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

// initLogging enables the file logger when debug is on, via flag, config or
// ACTIVESAVE_DEBUG.
func initLogging() error {
	if !cfg.Debug && !debugFlag {
		return nil
	}
	logPath := cfg.LogFile
	if logPath == "" {
		logPath = "debug.log"
	}
	if dir := filepath.Dir(logPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
	}
	cleanup, err := log.Init(logPath)
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	logClose = cleanup
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetMinLevel(level)
	}
	log.Info(log.CatConfig, "activesave starting", "version", version, "config", viper.ConfigFileUsed())
	return nil
}

// configPath is where config edits are written: the loaded file, or the
// user config when none was found.
func configPath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	if dir := config.ConfigDir(); dir != "" {
		return filepath.Join(dir, "config.yaml")
	}
	return localConfigPath
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
