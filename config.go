package gofetch

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// HandlerDefaults is the YAML-shaped global-defaults layer (§3's "global
// defaults" merge precedence level), grounded on Amr-9-Sayl's
// pkg/config.LoadConfig for the read-file/yaml.Unmarshal pattern (values
// are not validated here but when MergeOptions processes them), adapted from that tool's load-test config to a handler's
// option defaults.
type HandlerDefaults struct {
	BaseURI        string            `yaml:"base_uri,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty"`
	TimeoutSeconds int               `yaml:"timeout,omitempty"`
	Retries        int               `yaml:"retries,omitempty"`
	RetryDelayMs   int               `yaml:"retry_delay_ms,omitempty"`
	Cache          struct {
		Enabled        bool `yaml:"enabled,omitempty"`
		TTLSeconds     int  `yaml:"ttl,omitempty"`
		RespectHeaders bool `yaml:"respect_headers,omitempty"`
		IsSharedCache  bool `yaml:"is_shared_cache,omitempty"`
	} `yaml:"cache,omitempty"`
	Debug    bool `yaml:"debug,omitempty"`
	Profiler bool `yaml:"profiler,omitempty"`
}

// LoadDefaults reads and parses a HandlerDefaults document from path.
func LoadDefaults(path string) (*HandlerDefaults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gofetch: reading defaults file %q: %w", path, err)
	}
	var d HandlerDefaults
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("gofetch: parsing defaults file %q: %w", path, err)
	}
	return &d, nil
}

// RawOptions renders the defaults as a RawOptions layer, ready to sit at
// the "global defaults" precedence level ahead of handler-scoped and
// per-call layers in MergeOptions.
func (d *HandlerDefaults) RawOptions() RawOptions {
	out := RawOptions{}
	if d.BaseURI != "" {
		out["base_uri"] = d.BaseURI
	}
	if len(d.Headers) > 0 {
		out["headers"] = d.Headers
	}
	if d.TimeoutSeconds > 0 {
		out["timeout"] = d.TimeoutSeconds
	}
	if d.Retries > 0 {
		out["retries"] = d.Retries
	}
	if d.RetryDelayMs > 0 {
		out["retry_delay"] = d.RetryDelayMs
	}
	cache := map[string]any{}
	if d.Cache.Enabled {
		cache["enabled"] = true
	}
	if d.Cache.TTLSeconds > 0 {
		cache["ttl"] = d.Cache.TTLSeconds
	}
	if d.Cache.RespectHeaders {
		cache["respect_headers"] = true
	}
	if d.Cache.IsSharedCache {
		cache["is_shared_cache"] = true
	}
	if len(cache) > 0 {
		out["cache"] = cache
	}
	if d.Debug {
		out["debug"] = true
	}
	if d.Profiler {
		out["profiler"] = true
	}
	return out
}
