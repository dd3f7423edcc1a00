package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nightlyone/lockfile"
	"github.com/oneconcern/smartes/pkg/cache"
	"github.com/oneconcern/smartes/pkg/core"
	"github.com/oneconcern/smartes/pkg/dlogger"
	"github.com/oneconcern/smartes/pkg/httpd"
	"github.com/oneconcern/smartes/pkg/revision"
	"github.com/oneconcern/smartes/pkg/storage/localfs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const defaultBlobCacheSize = 4096

// Config describes the smartes configuration.
type Config struct {
	Entry         string        `mapstructure:"entry" yaml:"entry"`
	Repository    string        `mapstructure:"repository" yaml:"repository"`
	Host          string        `mapstructure:"host" yaml:"host"`
	Port          int           `mapstructure:"port" yaml:"port"`
	Debug         bool          `mapstructure:"debug" yaml:"debug"`
	BlobCacheSize int           `mapstructure:"blob-cache-size" yaml:"blob-cache-size"`
	Cache         CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Log           LogConfig     `mapstructure:"log" yaml:"log"`
	Metrics       MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// CacheConfig locates the schema cache
type CacheConfig struct {
	File   string   `mapstructure:"file" yaml:"file"`
	Bypass []string `mapstructure:"bypass" yaml:"bypass"`
}

// LogConfig for the zap logger
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig for the admin listener
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// setDefaults declares every key, so that environment variables are picked up when unmarshalling
func setDefaults(v *viper.Viper) {
	v.SetDefault("entry", "")
	v.SetDefault("repository", ".")
	v.SetDefault("host", "")
	v.SetDefault("port", httpd.DefaultPort)
	v.SetDefault("debug", false)
	v.SetDefault("blob-cache-size", defaultBlobCacheSize)
	v.SetDefault("cache.file", cache.DefaultFile)
	v.SetDefault("cache.bypass", []string{})
	v.SetDefault("log.level", dlogger.LogLevelInfo)
	v.SetDefault("log.format", dlogger.FormatJSON)
	v.SetDefault("metrics.addr", "")
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("smartes")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

func newConfig(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config.Port < 0 || config.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", config.Port)
	}
	if config.Repository == "" {
		config.Repository = "."
	}
	if config.Cache.File == "" {
		config.Cache.File = cache.DefaultFile
	}
	return &config, nil
}

func (c *Config) requireEntry() error {
	if core.CleanPath(c.Entry) == "" {
		return fmt.Errorf(`an entry module is required: set "entry" in the config file, SMARTES_ENTRY or --entry`)
	}
	return nil
}

func (c *Config) logger() (*zap.Logger, error) {
	return dlogger.GetLoggerWithFormat(c.Log.Level, c.Log.Format)
}

// lockCache prevents other smartes processes from writing the cache file until the returned func is called.
//
// A process writes the whole table it holds in memory, so that concurrent writers would undo each other.
func (c *Config) lockCache() (func(), error) {
	p, err := filepath.Abs(c.Cache.File)
	if err != nil {
		return nil, err
	}
	if err = os.MkdirAll(filepath.Dir(p), 0700); err != nil {
		return nil, err
	}
	lock, err := lockfile.New(p + ".lock")
	if err != nil {
		return nil, err
	}
	if err = lock.TryLock(); err != nil {
		if owner, e := lock.GetOwner(); e == nil {
			return nil, fmt.Errorf("cache %s is in use by process %d: %w", p, owner.Pid, err)
		}
		return nil, fmt.Errorf("cannot lock cache %s: %w", p, err)
	}
	return func() {
		_ = lock.Unlock()
	}, nil
}

// openCache opens the schema cache file. Its parent directory also holds the staging area of atomic writes.
func (c *Config) openCache(ctx context.Context, l *zap.Logger) (*cache.SchemaCache, error) {
	p, err := filepath.Abs(c.Cache.File)
	if err != nil {
		return nil, err
	}
	store, err := localfs.NewAtomic(afero.NewBasePathFs(afero.NewOsFs(), filepath.Dir(p)))
	if err != nil {
		return nil, err
	}
	return cache.New(ctx, store,
		cache.Key(filepath.Base(p)),
		cache.Logger(l),
		cache.Bypass(c.Cache.Bypass...),
	), nil
}

// newService assembles the file service. Metrics are registered on reg, unless nil.
func (c *Config) newService(ctx context.Context, l *zap.Logger, reg prometheus.Registerer) (*core.Service, *cache.SchemaCache, error) {
	if err := c.requireEntry(); err != nil {
		return nil, nil, err
	}
	resolver, err := revision.Open(c.Repository,
		revision.Logger(l),
		revision.BlobCacheSize(c.BlobCacheSize),
	)
	if err != nil {
		return nil, nil, err
	}
	schemas, err := c.openCache(ctx, l)
	if err != nil {
		return nil, nil, err
	}
	svc, err := core.New(c.Entry, resolver, schemas,
		core.Logger(l),
		core.WithMetrics(core.NewMetrics(reg)),
	)
	if err != nil {
		return nil, nil, err
	}
	return svc, schemas, nil
}
