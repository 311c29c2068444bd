// Package config loads the daemon's bootstrap configuration: where its
// store lives, which actors to register at startup, and where its HTTP
// endpoints bind.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/katalog/pkg/types"
)

// ActorConfig declares one actor to register at bootstrap.
type ActorConfig struct {
	Name        string         `yaml:"name"`
	PluginID    string         `yaml:"plugin_id"`
	Type        string         `yaml:"type"`
	IdentityKey string         `yaml:"identity_key"`
	Disabled    bool           `yaml:"disabled"`
	Config      map[string]any `yaml:"config"`
}

// ActorType returns the actor's type as a types.ActorType, defaulting to
// source when unset.
func (a ActorConfig) ActorType() types.ActorType {
	if a.Type == "" {
		return types.ActorTypeSource
	}
	return types.ActorType(a.Type)
}

// Config is the top-level daemon configuration.
type Config struct {
	DataDir         string        `yaml:"data_dir"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	QueryAddr       string        `yaml:"query_addr"`
	LogLevel        string        `yaml:"log_level"`
	LogJSON         bool          `yaml:"log_json"`
	Actors          []ActorConfig `yaml:"actors"`
	WorkerBin       string        `yaml:"worker_bin"`
	ThreadPoolSize  int64         `yaml:"thread_pool_size"`
	ProcessPoolSize int64         `yaml:"process_pool_size"`
}

// Default returns the configuration used when no file is given: a
// local data directory, a single bound-in fake source plus its md5
// hash processor for demos, and standard logging.
func Default() Config {
	return Config{
		DataDir:         "./katalog-data",
		MetricsAddr:     "127.0.0.1:9090",
		QueryAddr:       "127.0.0.1:8090",
		LogLevel:        "info",
		WorkerBin:       "katalogd-worker",
		ThreadPoolSize:  4,
		ProcessPoolSize: 2,
		Actors: []ActorConfig{
			{
				Name: "fake", PluginID: "fake.assets", Type: "source",
				IdentityKey: "fake:default",
				Config:      map[string]any{"namespace": "fake", "total_assets": 250, "seed": 1},
			},
			{
				Name: "md5", PluginID: "katalog.processors.md5_hash", Type: "processor",
				IdentityKey: "md5:default",
			},
		},
	}
}

// Load reads and parses a YAML config file at path, overlaying it onto
// Default() so a partial file only needs to specify what it changes.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
