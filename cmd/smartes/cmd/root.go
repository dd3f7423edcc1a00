// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime/pprof"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "smartes",
	Short: "smartes serves ES modules straight from a git repository",
	Long: `smartes serves the files of a git repository over HTTP, at /{branch|tag|hash}/{path}.

Every file but the entry module is served under a versioned path (lib/util-3.js) which
changes whenever its content changes, and imports are rewritten to point at these paths.
Versioned responses can therefore be cached forever by browsers and CDNs.

The version of each file is derived by replaying the history of the requested reference,
and the outcome is persisted in a cache file so that only new commits are ever processed.
`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cpuProfile != "" {
			f, err := os.Create(cpuProfile)
			if err != nil {
				wrapFatalln("cannot create cpu profile", err)
				return
			}
			_ = pprof.StartCPUProfile(f)
		}
	},
	// upstream api note:  *PostRun functions aren't called in case of a panic() in Run
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if cpuProfile != "" {
			pprof.StopCPUProfile()
		}
	},
}

var cpuProfile string

var config *Config

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
	}
}

func init() {
	log.SetFlags(0)
	cobra.OnInitialize(initConfig)

	addRepositoryFlag(rootCmd)
	addEntryFlag(rootCmd)
	addCacheFileFlag(rootCmd)
	addBlobCacheSizeFlag(rootCmd)
	addLogLevelFlag(rootCmd)
	addLogFormatFlag(rootCmd)
	addCPUProfileFlag(rootCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	setDefaults(viper.GetViper())
	if os.Getenv("SMARTES_CONFIG") != "" {
		viper.SetConfigFile(os.Getenv("SMARTES_CONFIG"))
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.smartes")
		viper.AddConfigPath("/etc/smartes")
		viper.SetConfigName("smartes")
	}

	bindEnv(viper.GetViper()) // read in environment variables that match

	if err := viper.ReadInConfig(); err == nil {
		infoLogger.Println("Using config file:", viper.ConfigFileUsed())
	} else if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
		wrapFatalln("failed to read config file", err)
		return
	}

	var err error
	config, err = newConfig(viper.GetViper())
	if err != nil {
		wrapFatalln("invalid configuration", err)
	}
}
