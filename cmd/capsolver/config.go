package main

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "CAPSOLVER"

// Config holds the settings shared by every command. Values come from flags,
// then CAPSOLVER_* environment variables, then capsolver.yaml.
type Config struct {
	APIKey   string        `mapstructure:"api-key"`
	APIBase  string        `mapstructure:"api-base"`
	APIProxy string        `mapstructure:"api-proxy"`
	AppID    string        `mapstructure:"app-id"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Verbose  bool          `mapstructure:"verbose"`
	JSON     bool          `mapstructure:"json"`

	Proxy       string        `mapstructure:"proxy"`
	Interval    time.Duration `mapstructure:"interval"`
	MaxAttempts int           `mapstructure:"max-attempts"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// loadConfig binds the command's flags, reads the config file if there is
// one, and decodes the merged settings.
func loadConfig(v *viper.Viper, flags *pflag.FlagSet, configFile string) (Config, error) {
	if err := v.BindPFlags(flags); err != nil {
		return Config{}, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("capsolver")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/capsolver")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	return cfg, nil
}
