package main

import (
	"github.com/spf13/cobra"

	"minerva/internal/config"
	"minerva/internal/observability/ops"
	"minerva/internal/storage"
	logx "minerva/pkg/logx"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "minerva",
		Short:         "Minerva: expand prompt templates and feed them to connected clients",
		Long:          "minerva expands wildcard prompt templates and broadcasts them over websocket to connected image-generation clients, pacing dispatch by the completion reports they send back.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "./minerva.yaml", "path to config file (json, yaml or toml)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newExpandCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

func logConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
		Sink: logx.SinkConfig{
			Enabled:    c.Sink.Enabled,
			MinLevel:   c.Sink.MinLevel,
			RatePerSec: c.Sink.RatePerSec,
		},
	}
}

func storageConfig(c config.StorageConfig) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", c.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: c.Driver, Path: c.Path, BusyTimeout: busy}, nil
}

func opsConfig(c config.DebugConfig) ops.Config {
	return ops.Config{Enabled: c.Enabled, Addr: c.Addr, Token: c.Token, AllowInsecure: c.AllowInsecure}
}
