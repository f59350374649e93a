package buildio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig is the YAML form of the transfer engine settings. Zero
// values keep the engine defaults.
type EngineConfig struct {
	MaxRedirects   *int   `yaml:"max_redirects"`
	BufferSize     int    `yaml:"buffer_size"`
	ImmutableLinks string `yaml:"immutable_links"`
	ConnectTimeout string `yaml:"connect_timeout"`
	StallTimeout   string `yaml:"stall_timeout"`
	UserAgent      string `yaml:"user_agent"`

	// Concurrency is the number of parallel transfers for bulk downloads
	Concurrency int `yaml:"concurrency"`

	Cache *CacheConfig `yaml:"cache"`
}

// CacheConfig configures a BinaryCache
type CacheConfig struct {
	URI             string `yaml:"uri"`
	TryFallback     bool   `yaml:"try_fallback"`
	DisableDuration string `yaml:"disable_duration"`
}

// LoadEngineConfig reads an EngineConfig from a YAML file
func LoadEngineConfig(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &OpError{Op: OpConfig, Path: path, Err: err}
	}
	cfg, err := ParseEngineConfig(data)
	if err != nil {
		return nil, &OpError{Op: OpConfig, Path: path, Err: err}
	}
	return cfg, nil
}

// ParseEngineConfig decodes an EngineConfig. Unknown keys are rejected.
func ParseEngineConfig(data []byte) (*EngineConfig, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var cfg EngineConfig
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &cfg, nil
}

// Options converts the configuration into engine options
func (c *EngineConfig) Options() ([]Option, error) {
	var opts []Option
	if c.MaxRedirects != nil {
		if *c.MaxRedirects < 0 {
			return nil, fmt.Errorf("max_redirects: must not be negative, got %d", *c.MaxRedirects)
		}
		opts = append(opts, WithMaxRedirects(*c.MaxRedirects))
	}
	if c.BufferSize < 0 {
		return nil, fmt.Errorf("buffer_size: must not be negative, got %d", c.BufferSize)
	}
	if c.BufferSize > 0 {
		opts = append(opts, WithBufferSize(c.BufferSize))
	}

	switch c.ImmutableLinks {
	case "":
	case "first":
		opts = append(opts, WithImmutableLinkPolicy(FirstImmutableLink))
	case "last":
		opts = append(opts, WithImmutableLinkPolicy(LastImmutableLink))
	default:
		return nil, fmt.Errorf("immutable_links: want \"first\" or \"last\", got %q", c.ImmutableLinks)
	}

	if c.ConnectTimeout != "" {
		d, err := parseDuration("connect_timeout", c.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithConnectTimeout(d))
	}
	if c.StallTimeout != "" {
		d, err := parseDuration("stall_timeout", c.StallTimeout)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithStallTimeout(d))
	}
	if c.UserAgent != "" {
		opts = append(opts, WithUserAgent(c.UserAgent))
	}
	return opts, nil
}

// CacheOptions converts the cache section into binary cache options
func (c *CacheConfig) CacheOptions() ([]BinaryCacheOption, error) {
	opts := []BinaryCacheOption{WithTryFallback(c.TryFallback)}
	if c.DisableDuration != "" {
		d, err := parseDuration("cache.disable_duration", c.DisableDuration)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithDisableDuration(d))
	}
	return opts, nil
}

func parseDuration(field, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative, got %s", field, s)
	}
	return d, nil
}
