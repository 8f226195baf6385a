// Package config loads ravent settings from defaults, the config file,
// RAVENT_* environment variables and command line flags, in that order of
// increasing precedence.
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	AppName = "ravent"

	DefaultAPIURL      = "http://localhost:8000/api"
	DefaultStoragePath = "~/.ravent/storage.db"
	DefaultRAGPath     = "/rag/%s"
	DefaultLogLevel    = "info"
	DefaultRedisAddr   = "localhost:6379"
	DefaultRedisStream = "ravent.conversation"
)

type RedisSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
	Stream  string `mapstructure:"stream" yaml:"stream"`
}

type Settings struct {
	APIURL      string        `mapstructure:"api-url" yaml:"api-url"`
	StoragePath string        `mapstructure:"storage" yaml:"storage"`
	Ephemeral   bool          `mapstructure:"ephemeral" yaml:"ephemeral"`
	RAGPath     string        `mapstructure:"rag-path" yaml:"rag-path"`
	LogLevel    string        `mapstructure:"log-level" yaml:"log-level"`
	LogFile     string        `mapstructure:"log-file" yaml:"log-file"`
	Redis       RedisSettings `mapstructure:"redis" yaml:"redis"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("api-url", DefaultAPIURL)
	v.SetDefault("storage", DefaultStoragePath)
	v.SetDefault("ephemeral", false)
	v.SetDefault("rag-path", DefaultRAGPath)
	v.SetDefault("log-level", DefaultLogLevel)
	v.SetDefault("log-file", "")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", DefaultRedisAddr)
	v.SetDefault("redis.stream", DefaultRedisStream)
}

// AddFlags registers the persistent flags that map onto Settings.
func AddFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Config file (default ~/.ravent/config.yaml)")
	fs.String("api-url", DefaultAPIURL, "Base URL of the RavenT API")
	fs.String("storage", DefaultStoragePath, "Path of the local session storage")
	fs.Bool("ephemeral", false, "Keep the session in memory only")
	fs.String("log-level", DefaultLogLevel, "Log level (trace, debug, info, warn, error)")
	fs.String("log-file", "", "Write logs to this file instead of stderr")
}

// InitViper wires a viper instance to the root command's persistent flags,
// the environment and the config file. A missing config file is not an error.
func InitViper(v *viper.Viper, rootCmd *cobra.Command) error {
	SetDefaults(v)

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	flags := rootCmd.PersistentFlags()
	for _, name := range []string{"api-url", "storage", "ephemeral", "log-level", "log-file"} {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(name, f); err != nil {
				return errors.Wrapf(err, "bind flag %s", name)
			}
		}
	}

	configFile := ""
	if f := flags.Lookup("config"); f != nil {
		configFile = f.Value.String()
	}
	if configFile != "" {
		p, err := homedir.Expand(configFile)
		if err != nil {
			return errors.Wrap(err, "expand config path")
		}
		v.SetConfigFile(p)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, "."+AppName))
		}
		v.AddConfigPath(filepath.Join("/etc", AppName))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		if configFile == "" && os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "read config")
	}
	return nil
}

// Load reads Settings out of v and expands home-relative paths.
func Load(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, errors.Wrap(err, "decode settings")
	}
	s.APIURL = strings.TrimRight(strings.TrimSpace(s.APIURL), "/")
	for _, p := range []*string{&s.StoragePath, &s.LogFile} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return Settings{}, errors.Wrapf(err, "expand %s", *p)
		}
		*p = expanded
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) Validate() error {
	if s.APIURL == "" {
		return errors.New("api-url must be set")
	}
	u, err := url.Parse(s.APIURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.Errorf("api-url %q is not an http(s) URL", s.APIURL)
	}
	if !s.Ephemeral && strings.TrimSpace(s.StoragePath) == "" {
		return errors.New("storage must be set unless ephemeral is enabled")
	}
	if !strings.Contains(s.RAGPath, "%s") {
		return errors.Errorf("rag-path %q must contain %%s for the mode", s.RAGPath)
	}
	if _, err := zerolog.ParseLevel(s.LogLevel); err != nil {
		return errors.Wrapf(err, "log-level %q", s.LogLevel)
	}
	if s.Redis.Enabled {
		if s.Redis.Addr == "" {
			return errors.New("redis.addr must be set when redis is enabled")
		}
		if s.Redis.Stream == "" {
			return errors.New("redis.stream must be set when redis is enabled")
		}
	}
	return nil
}
