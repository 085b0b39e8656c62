// Package config loads the server configuration from an optional YAML file
// and the environment. Environment variables win over the file.
package config

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/stevemurr/pokedex-api/store"
)

// ConfigEnv names the variable holding the YAML file path.
const ConfigEnv = "POKEDEX_CONFIG"

type Config struct {
	Host           string        `yaml:"host"`
	Port           string        `yaml:"port"`
	DataDir        string        `yaml:"data_dir"`
	StoreBackend   string        `yaml:"store_backend"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	AssetsDir      string        `yaml:"assets_dir"`
	AssetBaseURL   string        `yaml:"asset_base_url"`
	MongoURI       string        `yaml:"mongo_uri"`
	MongoDatabase  string        `yaml:"mongo_database"`
	MongoTimeout   time.Duration `yaml:"mongo_timeout"`
	LogLevel       string        `yaml:"log_level"`
	Debug          bool          `yaml:"debug"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           "3000",
		DataDir:        "./data",
		StoreBackend:   "json",
		AllowedOrigins: []string{"*"},
		AssetsDir:      "./assets",
		AssetBaseURL:   "http://localhost:3000/assets",
		MongoURI:       "mongodb://localhost:27017",
		MongoDatabase:  "pokedex",
		MongoTimeout:   10 * time.Second,
		LogLevel:       "info",
	}
}

// Load reads the file named by POKEDEX_CONFIG, if any, then applies
// environment overrides.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv(ConfigEnv); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse config %s", path)
		}
	}
	return cfg, cfg.applyEnv()
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (c *Config) applyEnv() error {
	c.Host = env("HOST", c.Host)
	c.Port = env("PORT", c.Port)
	c.DataDir = env("DATA_DIR", c.DataDir)
	c.StoreBackend = env("STORE_BACKEND", c.StoreBackend)
	c.AssetsDir = env("ASSETS_DIR", c.AssetsDir)
	c.AssetBaseURL = env("ASSET_BASE_URL", c.AssetBaseURL)
	c.MongoURI = env("MONGO_URI", c.MongoURI)
	c.MongoDatabase = env("MONGO_DATABASE", c.MongoDatabase)
	c.LogLevel = env("LOG_LEVEL", c.LogLevel)

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}
	if v := os.Getenv("MONGO_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "MONGO_TIMEOUT")
		}
		c.MongoTimeout = d
	}
	if v := os.Getenv("DEBUG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "DEBUG")
		}
		c.Debug = b
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// AllowAllOrigins reports whether the origin list is the wildcard.
func (c Config) AllowAllOrigins() bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return len(c.AllowedOrigins) == 0
}

// StoreOptions converts the backend settings for store.New.
func (c Config) StoreOptions() store.Options {
	return store.Options{
		Backend:       c.StoreBackend,
		DataDir:       c.DataDir,
		AssetBaseURL:  c.AssetBaseURL,
		MongoURI:      c.MongoURI,
		MongoDatabase: c.MongoDatabase,
		MongoTimeout:  c.MongoTimeout,
	}
}
