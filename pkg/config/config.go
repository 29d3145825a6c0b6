// Package config loads the arbor configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Graph sources.
const (
	SourceYAML   = "yaml"
	SourceLoam   = "loam"
	SourceSQLite = "sqlite"
)

// Index backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete arbor configuration.
type Config struct {
	LogLevel string  `mapstructure:"log_level" yaml:"log_level"`
	Engine   Engine  `mapstructure:"engine" yaml:"engine"`
	Publish  Publish `mapstructure:"publish" yaml:"publish"`
	Graph    Graph   `mapstructure:"graph" yaml:"graph"`
	Index    Index   `mapstructure:"index" yaml:"index"`
	HTTP     HTTP    `mapstructure:"http" yaml:"http"`
}

// Engine configures the transition engine.
type Engine struct {
	DefaultEvent string `mapstructure:"default_event" yaml:"default_event"`
	Trace        bool   `mapstructure:"trace" yaml:"trace"`
	MaxHops      int    `mapstructure:"max_hops" yaml:"max_hops"`
}

// Publish configures the publish cache. Durations given as bare numbers are minutes.
type Publish struct {
	TTL             time.Duration `mapstructure:"ttl" yaml:"ttl"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	PersistInterval time.Duration `mapstructure:"persist_interval" yaml:"persist_interval"`
	IgnoreParams    []string      `mapstructure:"ignore_params" yaml:"ignore_params"`
	MaxPathLength   int           `mapstructure:"max_path_length" yaml:"max_path_length"`
	Root            string        `mapstructure:"root" yaml:"root"`
	Server          string        `mapstructure:"server" yaml:"server"`
	Rules           []string      `mapstructure:"rules" yaml:"rules"`
	LockWait        time.Duration `mapstructure:"lock_wait" yaml:"lock_wait"`
}

// Graph selects the graph definition source.
type Graph struct {
	Source string `mapstructure:"source" yaml:"source"`
	Path   string `mapstructure:"path" yaml:"path"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
	Watch  bool   `mapstructure:"watch" yaml:"watch"`
}

// Index selects the durable store of the publish index.
type Index struct {
	Backend     string `mapstructure:"backend" yaml:"backend"`
	Path        string `mapstructure:"path" yaml:"path"`
	RedisAddr   string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPrefix string `mapstructure:"redis_prefix" yaml:"redis_prefix"`
	// DistributedLock serializes artifact writers across instances through redis.
	DistributedLock bool `mapstructure:"distributed_lock" yaml:"distributed_lock"`
}

// HTTP configures the HTTP surface.
type HTTP struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel: "info",
		Engine: Engine{
			DefaultEvent: "continue",
			MaxHops:      10000,
		},
		Publish: Publish{
			TTL:             60 * time.Minute,
			SweepInterval:   5 * time.Minute,
			PersistInterval: 10 * time.Minute,
			MaxPathLength:   240,
			Root:            "public",
			Rules:           []string{"dynamic", "republish"},
			LockWait:        5 * time.Second,
		},
		Graph: Graph{
			Source: SourceYAML,
			Path:   "graph.yaml",
		},
		Index: Index{
			Backend:     BackendFile,
			Path:        ".arbor/index",
			RedisPrefix: "arbor:",
		},
		HTTP: HTTP{
			Addr: ":8080",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if raw == nil {
		return cfg, cfg.Validate()
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &cfg,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			minutesHook,
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

var durationType = reflect.TypeOf(time.Duration(0))

// minutesHook reads bare numbers, and numeric strings, as minutes.
func minutesHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return time.Duration(v) * time.Minute, nil
	case int64:
		return time.Duration(v) * time.Minute, nil
	case float64:
		return time.Duration(v * float64(time.Minute)), nil
	case string:
		s := strings.TrimSpace(v)
		if s != "" && strings.Trim(s, "0123456789") == "" {
			return s + "m", nil
		}
	}
	return data, nil
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	var errs []error
	if c.Engine.MaxHops <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_hops must be positive, got %d", c.Engine.MaxHops))
	}
	if c.Publish.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("publish.sweep_interval must be positive"))
	}
	if c.Publish.PersistInterval <= 0 {
		errs = append(errs, fmt.Errorf("publish.persist_interval must be positive"))
	}
	if c.Publish.TTL < 0 {
		errs = append(errs, fmt.Errorf("publish.ttl must not be negative"))
	}
	if c.Publish.MaxPathLength < 16 {
		errs = append(errs, fmt.Errorf("publish.max_path_length too small: %d", c.Publish.MaxPathLength))
	}

	switch c.Graph.Source {
	case SourceYAML, SourceLoam:
		if c.Graph.Path == "" {
			errs = append(errs, fmt.Errorf("graph.path is required for source %q", c.Graph.Source))
		}
	case SourceSQLite:
		if c.Graph.DSN == "" {
			errs = append(errs, fmt.Errorf("graph.dsn is required for source %q", c.Graph.Source))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown graph.source %q", c.Graph.Source))
	}

	switch c.Index.Backend {
	case BackendMemory:
	case BackendFile, BackendSQLite:
		if c.Index.Path == "" {
			errs = append(errs, fmt.Errorf("index.path is required for backend %q", c.Index.Backend))
		}
	case BackendRedis:
		if c.Index.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("index.redis_addr is required for backend %q", c.Index.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown index.backend %q", c.Index.Backend))
	}
	if c.Index.DistributedLock && c.Index.RedisAddr == "" {
		errs = append(errs, fmt.Errorf("index.distributed_lock requires index.redis_addr"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
