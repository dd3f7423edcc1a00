// Copyright © 2018 One Concern

package cmd

import (
	"github.com/oneconcern/smartes/pkg/cache"
	"github.com/oneconcern/smartes/pkg/dlogger"
	"github.com/oneconcern/smartes/pkg/httpd"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	portFlag = "port"
)

// bind a flag to a configuration key, so that the flag overrides the config file and the environment
func bind(key string, fs *pflag.FlagSet, name string) {
	if err := viper.BindPFlag(key, fs.Lookup(name)); err != nil {
		panic(err)
	}
}

func addRepositoryFlag(cmd *cobra.Command) string {
	repository := "repository"
	cmd.PersistentFlags().String(repository, ".", "Path to the git repository to serve")
	bind(repository, cmd.PersistentFlags(), repository)
	return repository
}

func addEntryFlag(cmd *cobra.Command) string {
	entry := "entry"
	cmd.PersistentFlags().String(entry, "", "Path of the entry module in the repository, e.g. src/index.js")
	bind(entry, cmd.PersistentFlags(), entry)
	return entry
}

func addCacheFileFlag(cmd *cobra.Command) string {
	c := "cache-file"
	cmd.PersistentFlags().String(c, cache.DefaultFile, "The file where computed schemas are persisted")
	bind("cache.file", cmd.PersistentFlags(), c)
	return c
}

func addLogLevelFlag(cmd *cobra.Command) string {
	c := "log-level"
	cmd.PersistentFlags().String(c, dlogger.LogLevelInfo, "The logging level: debug, info, warn, error or none")
	bind("log.level", cmd.PersistentFlags(), c)
	return c
}

func addLogFormatFlag(cmd *cobra.Command) string {
	c := "log-format"
	cmd.PersistentFlags().String(c, dlogger.FormatJSON, "The format of logs: json or console")
	bind("log.format", cmd.PersistentFlags(), c)
	return c
}

func addHostFlag(cmd *cobra.Command) string {
	host := "host"
	cmd.Flags().String(host, "", "The IP to listen on (defaults to all interfaces)")
	bind(host, cmd.Flags(), host)
	return host
}

func addPortFlag(cmd *cobra.Command) string {
	cmd.Flags().Int(portFlag, httpd.DefaultPort, "The port to listen on. The PORT environment variable takes precedence over the config file")
	bind(portFlag, cmd.Flags(), portFlag)
	return portFlag
}

func addDebugFlag(cmd *cobra.Command) string {
	debug := "debug"
	cmd.Flags().Bool(debug, false, "Expose schemas and error details in responses")
	bind(debug, cmd.Flags(), debug)
	return debug
}

func addCacheBypassFlag(cmd *cobra.Command) string {
	c := "cache-bypass"
	cmd.Flags().StringSlice(c, nil, "Revisions whose cached schema is recomputed once, e.g. after a change of the import syntax")
	bind("cache.bypass", cmd.Flags(), c)
	return c
}

func addMetricsAddrFlag(cmd *cobra.Command) string {
	c := "metrics-addr"
	cmd.Flags().String(c, "", "Address of the admin listener serving /metrics and /healthz, e.g. localhost:9090 (disabled when empty)")
	bind("metrics.addr", cmd.Flags(), c)
	return c
}

func addBlobCacheSizeFlag(cmd *cobra.Command) string {
	c := "blob-cache-size"
	cmd.PersistentFlags().Int(c, defaultBlobCacheSize, "Number of file contents kept in memory")
	bind(c, cmd.PersistentFlags(), c)
	return c
}

func addCPUProfileFlag(cmd *cobra.Command) string {
	c := "cpu-profile"
	cmd.PersistentFlags().StringVar(&cpuProfile, c, "", "Write a CPU profile of the command to this file")
	return c
}
