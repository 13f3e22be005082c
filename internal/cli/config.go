// Package cli implements the notifywatch terminal client.
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "NOTIFYWATCH"

// Config is the notifywatch configuration. Values come from flags, then
// NOTIFYWATCH_* environment variables, then the YAML config file.
type Config struct {
	APIURL      string `mapstructure:"api_url"`
	WSURL       string `mapstructure:"ws_url"`
	Token       string `mapstructure:"token"`
	ServiceKey  string `mapstructure:"service_key"`
	Desktop     bool   `mapstructure:"desktop"`
	LogLevel    string `mapstructure:"log_level"`
	KeyringDir  string `mapstructure:"keyring_dir"`
	KeyringFile bool   `mapstructure:"keyring_file_only"`
}

// DefaultConfigPath returns ~/.config/notifywatch/config.yaml
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "notifywatch", "config.yaml")
}

func defaultKeyringDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "credentials")
	}
	return filepath.Join(home, ".config", "notifywatch", "credentials")
}

// Flags declares the command line flags understood by LoadConfig
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("notifywatch", pflag.ContinueOnError)
	fs.String("config", DefaultConfigPath(), "path to the YAML config file")
	fs.String("api-url", "", "notification API base url")
	fs.String("ws-url", "", "websocket url (derived from api-url when empty)")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.Bool("desktop", true, "show notifications as terminal toasts")
	return fs
}

// LoadConfig resolves the configuration. A missing config file is not an error.
func LoadConfig(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("api_url", "http://localhost:8000")
	v.SetDefault("ws_url", "")
	v.SetDefault("token", "")
	v.SetDefault("service_key", "")
	v.SetDefault("desktop", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("keyring_dir", defaultKeyringDir())
	v.SetDefault("keyring_file_only", false)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	path := DefaultConfigPath()
	if fs != nil {
		if f := fs.Lookup("config"); f != nil {
			path = f.Value.String()
		}
		bindFlag(v, fs, "api_url", "api-url")
		bindFlag(v, fs, "ws_url", "ws-url")
		bindFlag(v, fs, "log_level", "log-level")
		bindFlag(v, fs, "desktop", "desktop")
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			var pathErr *os.PathError
			if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &cfg, nil
}

// bindFlag binds only flags the user actually set so file values are not
// shadowed by flag defaults
func bindFlag(v *viper.Viper, fs *pflag.FlagSet, key, name string) {
	if f := fs.Lookup(name); f != nil && f.Changed {
		_ = v.BindPFlag(key, f)
	}
}
