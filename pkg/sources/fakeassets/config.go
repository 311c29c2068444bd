package fakeassets

import (
	"encoding/json"
	"fmt"
)

// Config is this source's validated configuration. Zero-value fields
// left out of an actor's raw config fall back to the defaults below.
type Config struct {
	Namespace         string  `json:"namespace"`
	TotalAssets       int     `json:"total_assets"`
	BatchSize         int     `json:"batch_size"`
	BatchDelayMS      float64 `json:"batch_delay_ms"`
	BatchJitterMS     float64 `json:"batch_jitter_ms"`
	Seed              int64   `json:"seed"`
	IncludeCollection bool    `json:"include_collection"`
	HiddenPathRatio   float64 `json:"hidden_path_ratio"`
}

func defaultConfig() Config {
	return Config{
		Namespace:         "fake",
		TotalAssets:       250,
		BatchSize:         50,
		Seed:              1,
		IncludeCollection: true,
		HiddenPathRatio:   0.02,
	}
}

// decodeConfig overlays raw (an actor's stored config map) onto the
// defaults via a JSON round-trip: the kernel has no struct-tag mapper
// dependency, and a plain map decode keeps this free of a new import
// for what's a one-shot, infrequently-called conversion.
func decodeConfig(raw map[string]any) (Config, error) {
	cfg := defaultConfig()
	if len(raw) == 0 {
		return cfg, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return cfg, fmt.Errorf("fakeassets: encode config: %w", err)
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("fakeassets: decode config: %w", err)
	}

	if cfg.TotalAssets < 0 {
		cfg.TotalAssets = 0
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.HiddenPathRatio < 0 {
		cfg.HiddenPathRatio = 0
	}
	if cfg.HiddenPathRatio > 1 {
		cfg.HiddenPathRatio = 1
	}
	return cfg, nil
}
